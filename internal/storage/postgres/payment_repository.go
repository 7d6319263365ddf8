package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const paymentColumns = `id, reservation_id, method, amount_minor, status, transaction_ref, metadata, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(ctx context.Context, p domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		p.ID, p.ReservationID, string(p.Method), p.AmountMinor, string(p.Status),
		p.TransactionRef, metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrStatusConflict
		case isForeignKeyViolation(err):
			return domain.ErrReservationNotFound
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) FindRecentPending(ctx context.Context, reservationID string, since time.Time) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE reservation_id = $1 AND status = 'pending' AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, reservationID, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("find recent pending payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) ListByReservation(ctx context.Context, reservationID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE reservation_id = $1
		ORDER BY created_at DESC, id DESC
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return result, nil
}

func (r *paymentRepository) HasSuccess(ctx context.Context, reservationID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE reservation_id = $1 AND status = 'success')
	`, reservationID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check success payment: %w", err)
	}
	return exists, nil
}

// Transition выполняет compare-and-swap по статусу. Второй успешный платёж брони
// отсекается частичным уникальным индексом payments_one_success_uidx.
func (r *paymentRepository) Transition(ctx context.Context, id string, upd domain.PaymentUpdate) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	patch, err := marshalMetadata(upd.Metadata)
	if err != nil {
		return domain.Payment{}, err
	}
	at := upd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $3,
		    metadata = metadata || $4::jsonb,
		    updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns,
		id, string(upd.From), string(upd.To), patch, at,
	))
	switch {
	case err == nil:
		return p, nil
	case isUniqueViolation(err):
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return domain.Payment{}, domain.ErrAlreadyCompleted
		}
		return current, domain.ErrAlreadyCompleted
	case errors.Is(err, sql.ErrNoRows):
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return domain.Payment{}, getErr
		}
		return current, domain.ErrStatusConflict
	default:
		return domain.Payment{}, fmt.Errorf("transition payment: %w", err)
	}
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p        domain.Payment
		method   string
		status   string
		metadata []byte
	)
	if err := row.Scan(
		&p.ID, &p.ReservationID, &method, &p.AmountMinor, &status,
		&p.TransactionRef, &metadata, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Payment{}, err
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return domain.Payment{}, fmt.Errorf("decode metadata of payment %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal payment metadata: %w", err)
	}
	return string(raw), nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
