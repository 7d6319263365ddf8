package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const reservationColumns = `id, user_id, room_id, check_in, check_out, guests, guest_details,
	total_minor, status, locked_until, version, created_at, updated_at`

// ReservationRepository хранит брони в PostgreSQL и отвечает на вопросы о доступности.
type ReservationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) *ReservationRepository {
	return &ReservationRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// IsAvailable реализует AvailabilityOracle: истёкшие удержания комнату не занимают.
func (r *ReservationRepository) IsAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var busy bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM reservations
			WHERE room_id = $1
			  AND daterange(check_in, check_out) && daterange($2::date, $3::date)
			  AND (status = 'confirmed' OR (status = 'pending_payment' AND locked_until >= $4))
		)
	`, roomID, dateArg(checkIn), dateArg(checkOut), r.now()).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("check room availability: %w", err)
	}
	return !busy, nil
}

// Create сохраняет бронь и её услуги одной транзакцией. Истёкшие удержания той же
// комнаты на пересекающиеся даты сначала отменяются, иначе их увидит exclusion constraint.
func (r *ReservationRepository) Create(ctx context.Context, res domain.Reservation, lines []domain.ReservationServiceLine) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	if _, err = tx.ExecContext(ctx, `
		WITH released AS (
			UPDATE reservations
			SET status = 'cancelled', locked_until = NULL, version = version + 1, updated_at = $4
			WHERE room_id = $1
			  AND status = 'pending_payment'
			  AND locked_until < $4
			  AND daterange(check_in, check_out) && daterange($2::date, $3::date)
			RETURNING id
		)
		INSERT INTO timeline_events (reservation_id, type, reason, occurred)
		SELECT id, $5, 'released for a new reservation', $4 FROM released
	`, res.RoomID, dateArg(res.CheckIn), dateArg(res.CheckOut), now, domain.TimelineHoldExpired); err != nil {
		return fmt.Errorf("release expired holds: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4::date,$5::date,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		res.ID, res.UserID, res.RoomID, dateArg(res.CheckIn), dateArg(res.CheckOut), res.Guests,
		jsonArg(res.GuestDetails), res.TotalMinor, string(res.Status), res.LockedUntil,
		res.Version, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		switch {
		case isExclusionViolation(err):
			return domain.ErrRoomUnavailable
		case isUniqueViolation(err):
			return domain.ErrReservationVersionConflict
		case isForeignKeyViolation(err):
			return domain.ErrRoomNotFound
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	for _, line := range lines {
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO reservation_services (id, reservation_id, service_id, quantity, subtotal_minor)
			VALUES ($1,$2,$3,$4,$5)
		`, line.ID, res.ID, line.ServiceID, line.Quantity, line.SubtotalMinor); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrServiceNotFound
			}
			return fmt.Errorf("insert reservation service: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create reservation: %w", err)
	}
	return nil
}

// Get возвращает бронь или ErrReservationNotFound.
func (r *ReservationRepository) Get(ctx context.Context, id string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	return res, nil
}

// ListByUser возвращает брони пользователя, новые первыми.
func (r *ReservationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Reservation, error) {
	return r.list(ctx, domain.ReservationFilter{Limit: limit}, userID)
}

// List возвращает брони по фильтру, новые первыми.
func (r *ReservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	return r.list(ctx, filter, "")
}

func (r *ReservationRepository) list(ctx context.Context, filter domain.ReservationFilter, userID string) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if userID != "" {
		add("user_id = $%d", userID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("check_in >= $%d::date", dateArg(filter.From))
	}
	if !filter.To.IsZero() {
		add("check_in <= $%d::date", dateArg(filter.To))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return r.query(ctx, query, args...)
}

// CountByUser считает брони пользователя в любом статусе.
func (r *ReservationRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return count, nil
}

// Save применяет изменения с проверкой версии.
func (r *ReservationRepository) Save(ctx context.Context, res domain.Reservation) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1,
		    locked_until = $2,
		    total_minor = $3,
		    guests = $4,
		    guest_details = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(res.Status), res.LockedUntil, res.TotalMinor, res.Guests, jsonArg(res.GuestDetails),
		res.UpdatedAt, res.ID, res.Version,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return domain.ErrRoomUnavailable
		}
		return fmt.Errorf("update reservation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, res.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check reservation exists: %w", err)
		}
		if !exists {
			return domain.ErrReservationNotFound
		}
		return domain.ErrReservationVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save reservation: %w", err)
	}
	return nil
}

// ListExpiredHolds возвращает pending_payment брони с истёкшим удержанием.
func (r *ReservationRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'pending_payment' AND locked_until < $1
		ORDER BY locked_until ASC
		LIMIT $2
	`, now, limit)
}

// Services возвращает услуги брони.
func (r *ReservationRepository) Services(ctx context.Context, reservationID string) ([]domain.ReservationServiceLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reservation_id, service_id, quantity, subtotal_minor
		FROM reservation_services
		WHERE reservation_id = $1
		ORDER BY id
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list reservation services: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.ReservationServiceLine, 0)
	for rows.Next() {
		var line domain.ReservationServiceLine
		if err := rows.Scan(&line.ID, &line.ReservationID, &line.ServiceID, &line.Quantity, &line.SubtotalMinor); err != nil {
			return nil, fmt.Errorf("scan reservation service: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation services: %w", err)
	}
	return lines, nil
}

// AddDiscount сохраняет применённую скидку.
func (r *ReservationRepository) AddDiscount(ctx context.Context, d domain.ReservationDiscount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservation_discounts (reservation_id, discount_id, amount_minor, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (reservation_id, discount_id) DO NOTHING
	`, d.ReservationID, d.DiscountID, d.AmountMinor, d.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReservationNotFound
		}
		return fmt.Errorf("insert reservation discount: %w", err)
	}
	return nil
}

// Discounts возвращает скидки брони.
func (r *ReservationRepository) Discounts(ctx context.Context, reservationID string) ([]domain.ReservationDiscount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT reservation_id, discount_id, amount_minor, created_at
		FROM reservation_discounts
		WHERE reservation_id = $1
		ORDER BY created_at
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list reservation discounts: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ReservationDiscount, 0)
	for rows.Next() {
		var d domain.ReservationDiscount
		if err := rows.Scan(&d.ReservationID, &d.DiscountID, &d.AmountMinor, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation discount: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation discounts: %w", err)
	}
	return result, nil
}

// Stats считает агрегаты для панели администратора.
func (r *ReservationRepository) Stats(ctx context.Context, day time.Time) (domain.ReservationStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	start := domain.CivilDate(day, nil)
	var stats domain.ReservationStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending_payment'),
			COUNT(*) FILTER (WHERE status = 'confirmed' AND updated_at >= $1 AND updated_at < $2)
		FROM reservations
	`, start, start.Add(24*time.Hour)).Scan(&stats.TotalReservations, &stats.PendingPayments, &stats.ConfirmedToday)
	if err != nil {
		return domain.ReservationStats{}, fmt.Errorf("reservation stats: %w", err)
	}
	return stats, nil
}

func (r *ReservationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return result, nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		res         domain.Reservation
		status      string
		details     []byte
		lockedUntil sql.NullTime
	)
	if err := row.Scan(
		&res.ID, &res.UserID, &res.RoomID, &res.CheckIn, &res.CheckOut, &res.Guests, &details,
		&res.TotalMinor, &status, &lockedUntil, &res.Version, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return domain.Reservation{}, err
	}
	res.Status = domain.ReservationStatus(status)
	res.CheckIn = domain.CivilDate(res.CheckIn, nil)
	res.CheckOut = domain.CivilDate(res.CheckOut, nil)
	if len(details) > 0 {
		res.GuestDetails = details
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		res.LockedUntil = &t
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return res, nil
}

func dateArg(t time.Time) string {
	return t.Format(time.DateOnly)
}

func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var (
	_ domain.ReservationRepository = (*ReservationRepository)(nil)
	_ domain.AvailabilityOracle    = (*ReservationRepository)(nil)
)
