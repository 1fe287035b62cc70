package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	rooms "classroom-sentinel/internal/rooms/domain"
)

const defaultRoomsTable = "rooms"

// RoomRepository is a Postgres implementation for monitored rooms.
type RoomRepository struct {
	db    *sql.DB
	table string
}

// NewRoomRepository constructs a repository.
func NewRoomRepository(db *sql.DB, opts ...RoomOption) *RoomRepository {
	repo := &RoomRepository{db: db, table: defaultRoomsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RoomOption configures the repository.
type RoomOption func(*RoomRepository)

// WithRoomTable overrides the default table name.
func WithRoomTable(table string) RoomOption {
	return func(repo *RoomRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetByID loads a room by id.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*rooms.Room, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("room repo: nil db")
	}
	if id == "" {
		return nil, errors.New("room repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, current_status, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var room rooms.Room
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Status,
		&room.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.UpdatedAt = room.UpdatedAt.UTC()
	return &room, nil
}

// List loads all rooms ordered by id.
func (r *RoomRepository) List(ctx context.Context) ([]rooms.Room, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("room repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, current_status, updated_at
FROM %s
ORDER BY id ASC`, r.table)

	result, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var list []rooms.Room
	for result.Next() {
		var room rooms.Room
		if err := result.Scan(
			&room.ID,
			&room.Name,
			&room.Status,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}
		room.UpdatedAt = room.UpdatedAt.UTC()
		list = append(list, room)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// UpsertStatus creates the room if absent and sets its status. The
// provided name is used only on first insert; existing rooms keep
// their name.
func (r *RoomRepository) UpsertStatus(ctx context.Context, id, name, status string, at time.Time) (*rooms.Room, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("room repo: nil db")
	}
	if id == "" {
		return nil, errors.New("room repo: empty id")
	}
	if !rooms.ValidStatus(status) {
		return nil, errors.New("room repo: invalid status")
	}
	if name == "" {
		name = rooms.DefaultName(id)
	}
	if at.IsZero() {
		at = time.Now()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	current_status,
	updated_at
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (id)
DO UPDATE SET
	current_status = EXCLUDED.current_status,
	updated_at = EXCLUDED.updated_at
RETURNING id, name, current_status, updated_at`, r.table)

	var room rooms.Room
	if err := r.db.QueryRowContext(ctx, query, id, name, status, at.UTC()).Scan(
		&room.ID,
		&room.Name,
		&room.Status,
		&room.UpdatedAt,
	); err != nil {
		return nil, err
	}
	room.UpdatedAt = room.UpdatedAt.UTC()
	return &room, nil
}
