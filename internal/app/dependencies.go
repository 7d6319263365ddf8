package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/hotel-booking/internal/health"
	"github.com/vladislavdragonenkov/hotel-booking/internal/lock"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/audit"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/holds"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/idempotency"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/notify"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/outbox"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/payment"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/pricing"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/reservation"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/rooms"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/postgres"
	"github.com/vladislavdragonenkov/hotel-booking/internal/transport/httpapi"
)

const redisPingTimeout = 2 * time.Second

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Repos Repositories

	Locker       lock.Locker
	Timeline     *audit.Recorder
	Pricing      *pricing.Calculator
	Rooms        *rooms.Catalog
	Reservations *reservation.Manager
	Payments     *payment.Manager
	Idempotency  *idempotency.Guard
	Notifier     *notify.Notifier
	Auth         *httpapi.Authenticator

	OutboxWorker  *outbox.Worker
	CleanupWorker *idempotency.CleanupWorker
	// Reaper создаётся только в режиме HoldExpiryEager.
	Reaper *holds.Reaper

	store  *postgres.Store
	redis  *redis.Client
	broker brokerPublishers
	logger *log.Entry
}

// NewDependencies создаёт и связывает зависимости по конфигурации.
// При ошибке уже открытые соединения закрываются.
func NewDependencies(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (_ *Dependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	d := &Dependencies{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.Repos, d.store, err = openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	d.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err = d.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		d.Locker = lock.NewRedisLocker(d.redis,
			lock.WithTTL(cfg.LockTTL),
			lock.WithRedisLogger(logger.WithField("component", "redis-locker")),
		)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis payment locks")
	}

	d.broker, err = openBroker(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open broker: %w", err)
	}

	booking := metrics.NewBookingMetricsWithRegisterer(registerer)
	cleanup := metrics.NewCleanupMetrics(registerer)

	d.Timeline = audit.NewRecorder(d.Repos.Timeline, logger.WithField("component", "timeline"))
	d.Pricing = pricing.NewCalculator(d.Repos.Discounts, d.Repos.Reservations,
		pricing.WithPolicy(cfg.DiscountPolicy),
		pricing.WithLocation(cfg.Location()),
		pricing.WithLogger(logger.WithField("component", "pricing")),
	)
	d.Rooms = rooms.NewCatalog(d.Repos.Rooms, d.Repos.Reservations, d.Repos.Reservations,
		rooms.WithLocation(cfg.Location()),
		rooms.WithLogger(logger.WithField("component", "room-catalog")),
	)
	d.Reservations = reservation.NewManager(d.Repos.Rooms, d.Repos.Reservations, d.Repos.Reservations, d.Repos.Services, d.Pricing,
		reservation.WithHoldTTL(cfg.HoldTTL),
		reservation.WithTimeline(d.Timeline),
		reservation.WithMetrics(booking),
		reservation.WithLogger(logger.WithField("component", "reservation-manager")),
	)
	d.Notifier = notify.NewNotifier(d.Repos.Reservations, d.Repos.Outbox,
		notify.WithBufferSize(cfg.NotifierBuffer),
		notify.WithMetrics(booking),
		notify.WithLogger(logger.WithField("component", "confirmation-notifier")),
	)
	d.Payments = payment.NewManager(d.Repos.Payments, d.Repos.Reservations, d.Reservations, payment.NewSimulator(),
		payment.WithLocker(d.Locker),
		payment.WithNotifier(d.Notifier),
		payment.WithRooms(d.Repos.Rooms),
		payment.WithReuseWindow(cfg.PaymentReuseWindow),
		payment.WithTimeline(d.Timeline),
		payment.WithMetrics(booking),
		payment.WithLogger(logger.WithField("component", "payment-manager")),
	)
	d.Idempotency = idempotency.NewGuard(d.Repos.Idempotency,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithGuardLogger(logger.WithField("component", "idempotency")),
	)

	var authOpts []httpapi.AuthOption
	if cfg.JWTIssuer != "" {
		authOpts = append(authOpts, httpapi.WithIssuer(cfg.JWTIssuer))
	}
	d.Auth = httpapi.NewAuthenticator([]byte(cfg.JWTSecret), authOpts...)

	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if d.broker.dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(d.broker.dlq))
	}
	d.OutboxWorker = outbox.NewWorker(d.Repos.Outbox, d.broker.events, outboxOpts...)

	d.CleanupWorker = idempotency.NewCleanupWorker(d.Repos.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(cleanup),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	if cfg.HoldExpiryMode == HoldExpiryEager {
		d.Reaper = holds.NewReaper(d.Repos.Reservations, d.Reservations,
			holds.WithInterval(cfg.ReaperInterval),
			holds.WithMetrics(cleanup),
			holds.WithLogger(logger.WithField("component", "holds-reaper")),
		)
	}

	return d, nil
}

// Workers возвращает фоновые задачи; каждая работает до отмены ctx.
func (d *Dependencies) Workers() map[string]func(context.Context) {
	workers := map[string]func(context.Context){
		"outbox":                d.OutboxWorker.Run,
		"idempotency-cleanup":   d.CleanupWorker.Run,
		"confirmation-notifier": d.Notifier.Run,
	}
	if d.Reaper != nil {
		workers["holds-reaper"] = d.Reaper.Run
	}
	return workers
}

// RegisterHealth добавляет проверки хранилища, Redis и очереди outbox.
func (d *Dependencies) RegisterHealth(h *healthcheck.Handler, outboxThreshold int) {
	if d.store != nil {
		h.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", d.store.Ping))
	}
	if d.redis != nil {
		h.RegisterChecker("redis", healthcheck.NewPingChecker("redis", func(ctx context.Context) error {
			return d.redis.Ping(ctx).Err()
		}))
	}
	h.RegisterOptional("outbox", healthcheck.NewBacklogChecker("outbox", outboxThreshold, func(ctx context.Context) (int, error) {
		stats, err := d.Repos.Outbox.Stats(ctx)
		return stats.PendingCount, err
	}))
}

// Close закрывает брокер, Redis и пул БД.
func (d *Dependencies) Close() error {
	closeBroker(d.broker, d.logger)

	var errs []error
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}
