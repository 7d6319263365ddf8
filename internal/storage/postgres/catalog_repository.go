package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const discountColumns = `id, code, type, value, valid_from, valid_until, min_nights, active, created_at`

type discountRepository struct {
	db *sql.DB
}

// NewDiscountRepository создаёт PostgreSQL-реализацию DiscountRepository.
func NewDiscountRepository(store *Store) domain.DiscountRepository {
	return &discountRepository{db: store.DB()}
}

func (r *discountRepository) Create(ctx context.Context, d domain.Discount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discounts (`+discountColumns+`)
		VALUES ($1,$2,$3,$4,COALESCE($5, NOW()),$6,$7,$8,COALESCE($9, NOW()))
		ON CONFLICT (id) DO UPDATE
		SET code = EXCLUDED.code, type = EXCLUDED.type, value = EXCLUDED.value,
		    valid_until = EXCLUDED.valid_until, min_nights = EXCLUDED.min_nights, active = EXCLUDED.active
	`,
		d.ID, d.Code, string(d.Type), d.Value, nullTime(d.ValidFrom), d.ValidUntil,
		d.MinNights, d.Active, nullTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert discount: %w", err)
	}
	return nil
}

func (r *discountRepository) Get(ctx context.Context, id string) (domain.Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	d, err := scanDiscount(r.db.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Discount{}, domain.ErrDiscountNotFound
		}
		return domain.Discount{}, fmt.Errorf("select discount: %w", err)
	}
	return d, nil
}

func (r *discountRepository) ListActive(ctx context.Context) ([]domain.Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Discount, 0)
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discounts: %w", err)
	}
	return result, nil
}

func scanDiscount(row rowScanner) (domain.Discount, error) {
	var (
		d          domain.Discount
		kind       string
		validUntil sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.Code, &kind, &d.Value, &d.ValidFrom, &validUntil, &d.MinNights, &d.Active, &d.CreatedAt); err != nil {
		return domain.Discount{}, err
	}
	d.Type = domain.DiscountType(kind)
	if validUntil.Valid {
		t := validUntil.Time.UTC()
		d.ValidUntil = &t
	}
	return d, nil
}

type serviceRepository struct {
	db *sql.DB
}

// NewServiceRepository создаёт PostgreSQL-реализацию каталога услуг.
func NewServiceRepository(store *Store) domain.ServiceRepository {
	return &serviceRepository{db: store.DB()}
}

func (r *serviceRepository) Create(ctx context.Context, s domain.Service) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, price_minor, icon, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
		    price_minor = EXCLUDED.price_minor, icon = EXCLUDED.icon, active = EXCLUDED.active
	`, s.ID, s.Name, s.Description, s.PriceMinor, s.Icon, s.Active)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func (r *serviceRepository) Get(ctx context.Context, id string) (domain.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var s domain.Service
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price_minor, icon, active
		FROM services
		WHERE id = $1 AND active
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.PriceMinor, &s.Icon, &s.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, domain.ErrServiceNotFound
		}
		return domain.Service{}, fmt.Errorf("select service: %w", err)
	}
	return s, nil
}

func (r *serviceRepository) ListActive(ctx context.Context) ([]domain.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price_minor, icon, active
		FROM services
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.PriceMinor, &s.Icon, &s.Active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return result, nil
}

var (
	_ domain.DiscountRepository = (*discountRepository)(nil)
	_ domain.ServiceRepository  = (*serviceRepository)(nil)
)
