// Package holds снимает истёкшие удержания комнат в режиме eager.
package holds

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 100

	workerName = "holds"
)

// ExpiredHoldFinder находит удержания, у которых истёк срок.
type ExpiredHoldFinder interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

// HoldExpirer отменяет одно удержание, если оно всё ещё не оплачено.
type HoldExpirer interface {
	ExpireHold(ctx context.Context, id string) (bool, error)
}

// Option настраивает Reaper.
type Option func(*Reaper)

// WithInterval задаёт период опроса.
func WithInterval(interval time.Duration) Option {
	return func(r *Reaper) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithBatchSize задаёт размер батча.
func WithBatchSize(size int) Option {
	return func(r *Reaper) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics подключает метрики чисток.
func WithMetrics(m *metrics.CleanupMetrics) Option {
	return func(r *Reaper) { r.metrics = m }
}

// Reaper периодически отменяет брони pending_payment с истёкшим LockedUntil.
type Reaper struct {
	finder    ExpiredHoldFinder
	expirer   HoldExpirer
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *log.Entry
	metrics   *metrics.CleanupMetrics
}

// NewReaper создаёт Reaper.
func NewReaper(finder ExpiredHoldFinder, expirer HoldExpirer, opts ...Option) *Reaper {
	r := &Reaper{
		finder:    finder,
		expirer:   expirer,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.WithField("component", "hold-reaper"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run выполняет ReapOnce каждые interval до отмены ctx.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	released, err := r.ReapOnce(ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	r.metrics.RecordRun(workerName, released, err)
	if err != nil {
		r.logger.WithError(err).Warn("hold reaper run failed")
		return
	}
	if released > 0 {
		r.logger.WithField("released", released).Info("expired holds released")
	}
}

// ReapOnce отменяет один батч истёкших удержаний и возвращает число снятых.
// Ошибка на отдельной брони не прерывает батч.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	expired, err := r.finder.ListExpiredHolds(ctx, r.now(), r.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range expired {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		ok, err := r.expirer.ExpireHold(ctx, res.ID)
		if err != nil {
			r.logger.WithError(err).WithField("reservation_id", res.ID).Warn("failed to expire hold")
			continue
		}
		if ok {
			released++
		}
	}
	return released, nil
}
