package domain

import (
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func pendingReservation(now time.Time) Reservation {
	lock := now.Add(15 * time.Minute)
	return Reservation{
		ID:          "res-1",
		UserID:      "user-1",
		RoomID:      "room-1",
		CheckIn:     date("2025-01-10"),
		CheckOut:    date("2025-01-13"),
		Guests:      2,
		TotalMinor:  300,
		Status:      ReservationStatusPendingPayment,
		LockedUntil: &lock,
	}
}

func TestReservation_CheckInvariants(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name     string
		mut      func(r *Reservation)
		errCount int
	}{
		{name: "valid hold", mut: func(r *Reservation) {}, errCount: 0},
		{name: "missing user", mut: func(r *Reservation) { r.UserID = "" }, errCount: 1},
		{name: "missing room", mut: func(r *Reservation) { r.RoomID = "" }, errCount: 1},
		{name: "same day", mut: func(r *Reservation) { r.CheckOut = r.CheckIn }, errCount: 1},
		{name: "no guests", mut: func(r *Reservation) { r.Guests = 0 }, errCount: 1},
		{name: "negative total", mut: func(r *Reservation) { r.TotalMinor = -1 }, errCount: 1},
		{name: "pending without lock", mut: func(r *Reservation) { r.LockedUntil = nil }, errCount: 1},
		{
			name: "confirmed with lock",
			mut: func(r *Reservation) {
				r.Status = ReservationStatusConfirmed
			},
			errCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pendingReservation(now)
			tt.mut(&r)
			if errs := r.CheckInvariants(); len(errs) != tt.errCount {
				t.Fatalf("expected %d errors, got %v", tt.errCount, errs)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	all := []ReservationStatus{
		ReservationStatusPendingPayment,
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
		ReservationStatusCompleted,
	}
	allowed := map[[2]ReservationStatus]bool{
		{ReservationStatusPendingPayment, ReservationStatusConfirmed}: true,
		{ReservationStatusPendingPayment, ReservationStatusCancelled}: true,
		{ReservationStatusConfirmed, ReservationStatusCancelled}:      true,
		{ReservationStatusPendingPayment, ReservationStatusCompleted}: true,
		{ReservationStatusConfirmed, ReservationStatusCompleted}:      true,
		{ReservationStatusCancelled, ReservationStatusCompleted}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]ReservationStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
	if CanTransition(ReservationStatusConfirmed, ReservationStatusPendingPayment) {
		t.Fatalf("no transition may lead back to pending_payment")
	}
}

func TestReservation_TransitionClearsLock(t *testing.T) {
	now := time.Now().UTC()
	for _, to := range []ReservationStatus{
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
		ReservationStatusCompleted,
	} {
		r := pendingReservation(now)
		if err := r.Transition(to, now); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if r.LockedUntil != nil {
			t.Fatalf("locked_until must be cleared after %s", to)
		}
		if errs := r.CheckInvariants(); len(errs) != 0 {
			t.Fatalf("invariants broken after %s: %v", to, errs)
		}
	}
}

func TestReservation_TransitionRejected(t *testing.T) {
	now := time.Now().UTC()
	r := pendingReservation(now)
	r.Status = ReservationStatusCancelled
	r.LockedUntil = nil

	err := r.Transition(ReservationStatusConfirmed, now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if r.Status != ReservationStatusCancelled {
		t.Fatalf("status must stay cancelled, got %s", r.Status)
	}
}

func TestReservation_Holds(t *testing.T) {
	now := time.Now().UTC()

	r := pendingReservation(now)
	if !r.Holds(now) {
		t.Fatalf("fresh hold must occupy the room")
	}
	if r.Holds(now.Add(16 * time.Minute)) {
		t.Fatalf("expired hold must not occupy the room")
	}
	if !r.HoldExpired(now.Add(16 * time.Minute)) {
		t.Fatalf("expected hold to be expired")
	}

	_ = r.Transition(ReservationStatusCancelled, now)
	if r.Holds(now) {
		t.Fatalf("cancelled reservation must not occupy the room")
	}
}

func TestReservation_Overlaps(t *testing.T) {
	r := pendingReservation(time.Now())

	cases := []struct {
		in, out string
		want    bool
	}{
		{"2025-01-13", "2025-01-15", false},
		{"2025-01-08", "2025-01-10", false},
		{"2025-01-12", "2025-01-14", true},
		{"2025-01-01", "2025-01-31", true},
	}
	for _, c := range cases {
		if got := r.Overlaps(date(c.in), date(c.out)); got != c.want {
			t.Errorf("Overlaps(%s, %s) = %v, want %v", c.in, c.out, got, c.want)
		}
	}
}

func TestNightsBetween(t *testing.T) {
	if got := NightsBetween(date("2025-01-10"), date("2025-01-13")); got != 3 {
		t.Fatalf("expected 3 nights, got %d", got)
	}

	lima := time.FixedZone("PET", -5*3600)
	in := time.Date(2025, 1, 10, 23, 30, 0, 0, lima)
	out := time.Date(2025, 1, 13, 0, 15, 0, 0, lima)
	if got := NightsBetween(in, out); got != 3 {
		t.Fatalf("time of day must be ignored, got %d nights", got)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-01-10T22:00:00-05:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(date("2025-01-10")) {
		t.Fatalf("expected date part only, got %s", got)
	}

	if _, err := ParseDate("10/01/2025"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCivilDate(t *testing.T) {
	lima := time.FixedZone("PET", -5*3600)
	utc := time.Date(2025, 1, 11, 3, 0, 0, 0, time.UTC)

	got := CivilDate(utc, lima)
	if !got.Equal(date("2025-01-10")) {
		t.Fatalf("expected civil date in Lima to be 2025-01-10, got %s", got)
	}
}

func TestCalendarDate(t *testing.T) {
	lima := time.FixedZone("PET", -5*3600)

	// Дата без времени суток не сдвигается часовым поясом отеля.
	if got := CalendarDate(date("2025-01-10"), lima); !got.Equal(date("2025-01-10")) {
		t.Fatalf("date-only value shifted to %s", got)
	}

	// Момент времени переводится в пояс отеля: 03:00 UTC в Лиме ещё предыдущий день.
	instant := time.Date(2025, 1, 11, 3, 0, 0, 0, time.UTC)
	if got := CalendarDate(instant, lima); !got.Equal(date("2025-01-10")) {
		t.Fatalf("expected 2025-01-10 in Lima, got %s", got)
	}
	if got := CalendarDate(instant, nil); !got.Equal(date("2025-01-11")) {
		t.Fatalf("nil location must keep the value's own zone, got %s", got)
	}
}

func TestNightsIn(t *testing.T) {
	lima := time.FixedZone("PET", -5*3600)

	// 11.01 03:00 UTC в Лиме это вечер 10.01, поэтому ночей три, а не две.
	in := time.Date(2025, 1, 11, 3, 0, 0, 0, time.UTC)
	out := date("2025-01-13")
	if got := NightsIn(in, out, lima); got != 3 {
		t.Fatalf("expected 3 nights in Lima, got %d", got)
	}
	if got := NightsIn(in, out, nil); got != 2 {
		t.Fatalf("expected 2 nights in UTC, got %d", got)
	}
	if got := NightsIn(date("2025-01-10"), date("2025-01-13"), lima); got != 3 {
		t.Fatalf("date-only stay must not depend on location, got %d", got)
	}
}
