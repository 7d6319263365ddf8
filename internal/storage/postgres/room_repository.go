package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const roomColumns = `id, code, type, description, price_minor, capacity, status, amenities, created_at, updated_at`

type roomRepository struct {
	db *sql.DB
}

// NewRoomRepository создаёт PostgreSQL-реализацию RoomRepository.
func NewRoomRepository(store *Store) domain.RoomRepository {
	return &roomRepository{db: store.DB()}
}

func (r *roomRepository) Create(ctx context.Context, room domain.Room) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	amenities, err := marshalAmenities(room.Amenities)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		room.ID, room.Code, room.Type, room.Description, room.PriceMinor, room.Capacity,
		string(room.Status), amenities, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrRoomCodeTaken
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *roomRepository) Get(ctx context.Context, id string) (domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	room, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (r *roomRepository) List(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
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
	if filter.OnlyAvailable {
		add("status = $%d", string(domain.RoomStatusAvailable))
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.MinPriceMinor > 0 {
		add("price_minor >= $%d", filter.MinPriceMinor)
	}
	if filter.MaxPriceMinor > 0 {
		add("price_minor <= $%d", filter.MaxPriceMinor)
	}
	if len(filter.Amenities) > 0 {
		required := make(map[string]bool, len(filter.Amenities))
		for _, a := range filter.Amenities {
			required[a] = true
		}
		raw, err := json.Marshal(required)
		if err != nil {
			return nil, fmt.Errorf("marshal amenities filter: %w", err)
		}
		add("amenities @> $%d::jsonb", string(raw))
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY price_minor ASC, code ASC`

	return r.query(ctx, query, args...)
}

func (r *roomRepository) ListByCode(ctx context.Context) ([]domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY code ASC`)
}

func (r *roomRepository) Update(ctx context.Context, room domain.Room) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	amenities, err := marshalAmenities(room.Amenities)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms
		SET code = $2, type = $3, description = $4, price_minor = $5,
		    capacity = $6, status = $7, amenities = $8, updated_at = $9
		WHERE id = $1
	`,
		room.ID, room.Code, room.Type, room.Description, room.PriceMinor,
		room.Capacity, string(room.Status), amenities, room.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrRoomCodeTaken
		}
		return fmt.Errorf("update room: %w", err)
	}
	return expectOneRow(res, domain.ErrRoomNotFound)
}

func (r *roomRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrRoomInUse
		}
		return fmt.Errorf("delete room: %w", err)
	}
	return expectOneRow(res, domain.ErrRoomNotFound)
}

func (r *roomRepository) query(ctx context.Context, query string, args ...any) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		room      domain.Room
		status    string
		amenities []byte
	)
	if err := row.Scan(
		&room.ID, &room.Code, &room.Type, &room.Description, &room.PriceMinor, &room.Capacity,
		&status, &amenities, &room.CreatedAt, &room.UpdatedAt,
	); err != nil {
		return domain.Room{}, err
	}
	room.Status = domain.RoomStatus(status)
	if len(amenities) > 0 {
		if err := json.Unmarshal(amenities, &room.Amenities); err != nil {
			return domain.Room{}, fmt.Errorf("decode amenities of room %s: %w", room.ID, err)
		}
	}
	return room, nil
}

func marshalAmenities(amenities map[string]bool) ([]byte, error) {
	if amenities == nil {
		amenities = map[string]bool{}
	}
	raw, err := json.Marshal(amenities)
	if err != nil {
		return nil, fmt.Errorf("marshal amenities: %w", err)
	}
	return raw, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.RoomRepository = (*roomRepository)(nil)
