package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateReservation,
		AggregateID:   "res-1",
		EventType:     domain.EventReservationConfirmed,
		Payload:       []byte(`{"reservation_id":"res-1"}`),
		CreatedAt:     time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "res-2"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := repo.PullPending(ctx, 1)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected oldest message first, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateReservation})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if got := repo.AllPending(); len(got) != 0 {
		t.Fatalf("sent message must leave backlog, got %d", len(got))
	}

	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}
