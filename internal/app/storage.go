package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/postgres"
)

// ReservationStore — хранилище броней, которое также отвечает на вопрос о свободных датах.
type ReservationStore interface {
	domain.ReservationRepository
	domain.AvailabilityOracle
}

// Repositories — все хранилища сервиса.
type Repositories struct {
	Rooms        domain.RoomRepository
	Reservations ReservationStore
	Payments     domain.PaymentRepository
	Discounts    domain.DiscountRepository
	Services     domain.ServiceRepository
	Outbox       domain.OutboxRepository
	Idempotency  domain.IdempotencyRepository
	Timeline     domain.TimelineRepository
}

// openStorage выбирает хранилище по cfg.StorageDriver. Store равен nil для memory.
func openStorage(ctx context.Context, cfg Config, logger *log.Entry) (Repositories, *postgres.Store, error) {
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case StorageDriverMemory:
		repos := memoryRepositories()
		if err := seedCatalog(ctx, repos); err != nil {
			return Repositories{}, nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("using in-memory storage")
		return repos, nil, nil
	default:
		return Repositories{}, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func memoryRepositories() Repositories {
	return Repositories{
		Rooms:        memory.NewRoomRepository(),
		Reservations: memory.NewReservationRepository(),
		Payments:     memory.NewPaymentRepository(),
		Discounts:    memory.NewDiscountRepository(),
		Services:     memory.NewServiceRepository(),
		Outbox:       memory.NewOutboxRepository(),
		Idempotency:  memory.NewIdempotencyRepository(),
		Timeline:     memory.NewTimelineRepository(),
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *log.Entry) (Repositories, *postgres.Store, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.PostgresMaxOpen,
		MaxIdleConns:    cfg.PostgresMaxIdle,
		ConnMaxLifetime: cfg.PostgresConnMaxLife,
	})
	if err != nil {
		return Repositories{}, nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return Repositories{}, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		status, err := store.Status(ctx)
		if err == nil {
			logger.WithField("schema_version", status.CurrentVersion).Info("postgres schema is up to date")
		}
	}

	logger.Info("using postgres storage")
	return Repositories{
		Rooms:        postgres.NewRoomRepository(store),
		Reservations: postgres.NewReservationRepository(store),
		Payments:     postgres.NewPaymentRepository(store),
		Discounts:    postgres.NewDiscountRepository(store),
		Services:     postgres.NewServiceRepository(store),
		Outbox:       postgres.NewOutboxRepository(store),
		Idempotency:  postgres.NewIdempotencyRepository(store),
		Timeline:     postgres.NewTimelineRepository(store),
	}, store, nil
}
