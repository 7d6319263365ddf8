package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
)

type failingTimeline struct{ calls int }

func (f *failingTimeline) Append(context.Context, domain.TimelineEvent) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingTimeline) List(context.Context, string) ([]domain.TimelineEvent, error) {
	return nil, nil
}

func TestRecorder_AppendsEvents(t *testing.T) {
	rec := NewRecorder(memory.NewTimelineRepository(), nil)
	ctx := context.Background()

	rec.Record(ctx, "res-1", domain.TimelineReservationCreated, "")
	rec.Record(ctx, "res-1", domain.TimelineReservationCancelled, "owner")

	events, err := rec.List(ctx, "res-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[1].Reason != "owner" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	repo := &failingTimeline{}
	rec := NewRecorder(repo, nil)

	rec.Record(context.Background(), "res-1", domain.TimelineReservationCreated, "")
	if repo.calls != 1 {
		t.Fatalf("expected append to be attempted once, got %d", repo.calls)
	}

	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), "res-1", domain.TimelineReservationCreated, "")
}
