package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// AlertRepository is a Postgres implementation for alert records.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB, opts ...AlertOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AlertOption configures the repository.
type AlertOption func(*AlertRepository)

// WithAlertTable overrides the default table name.
func WithAlertTable(table string) AlertOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert persists a new alert record. Records are immutable once
// written.
func (r *AlertRepository) Insert(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	var metadata []byte
	if alert.Metadata != nil {
		encoded, err := json.Marshal(alert.Metadata)
		if err != nil {
			return err
		}
		metadata = encoded
	}
	var snapshotRef sql.NullString
	if alert.SnapshotRef != "" {
		snapshotRef = sql.NullString{String: alert.SnapshotRef, Valid: true}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	room_id,
	alert_type,
	ts,
	snapshot_ref,
	metadata
) VALUES (
	$1, $2, $3, $4, $5, $6
)`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.RoomID,
		string(alert.Type),
		alert.Timestamp.UTC(),
		snapshotRef,
		metadata,
	)
	return err
}

// GetByID loads one alert.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if id == "" {
		return nil, errors.New("alert repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, room_id, alert_type, ts, snapshot_ref, metadata
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

// List loads alerts newest first, optionally filtered by room, type
// and time range. A zero time bound means unbounded; a non-positive
// limit applies a default of 100.
func (r *AlertRepository) List(ctx context.Context, roomID, alertType string, from, to time.Time, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any
	if roomID != "" {
		args = append(args, roomID)
		conditions = append(conditions, "room_id = $"+strconv.Itoa(len(args)))
	}
	if alertType != "" {
		args = append(args, alertType)
		conditions = append(conditions, "alert_type = $"+strconv.Itoa(len(args)))
	}
	if !from.IsZero() {
		args = append(args, from.UTC())
		conditions = append(conditions, "ts >= $"+strconv.Itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		conditions = append(conditions, "ts <= $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT id, room_id, alert_type, ts, snapshot_ref, metadata
FROM %s
%s
ORDER BY ts DESC
LIMIT $%d`, r.table, where, len(args))

	result, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var list []alerts.Alert
	for result.Next() {
		alert, err := scanAlert(result)
		if err != nil {
			return nil, err
		}
		list = append(list, *alert)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var alertType string
	var snapshotRef sql.NullString
	var metadata []byte
	if err := row.Scan(
		&alert.ID,
		&alert.RoomID,
		&alertType,
		&alert.Timestamp,
		&snapshotRef,
		&metadata,
	); err != nil {
		return nil, err
	}
	alert.Type = alerts.AlertType(alertType)
	alert.Timestamp = alert.Timestamp.UTC()
	if snapshotRef.Valid {
		alert.SnapshotRef = snapshotRef.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
			return nil, err
		}
	}
	return &alert, nil
}
