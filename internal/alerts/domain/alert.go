package alerts

import (
	"errors"
	"time"

	rooms "classroom-sentinel/internal/rooms/domain"
)

// AlertType identifies the rule that produced an alert.
type AlertType string

const (
	TypeEmptyClass     AlertType = "empty_class"
	TypeMischief       AlertType = "mischief"
	TypeLoudNoise      AlertType = "loud_noise"
	TypeMissingTeacher AlertType = "missing_teacher"
)

// Valid returns true when the alert type is supported.
func (t AlertType) Valid() bool {
	switch t {
	case TypeEmptyClass, TypeMischief, TypeLoudNoise, TypeMissingTeacher:
		return true
	default:
		return false
	}
}

// RoomStatus maps an alert type to the room status it implies.
func (t AlertType) RoomStatus() string {
	switch t {
	case TypeEmptyClass:
		return rooms.StatusEmpty
	case TypeMischief:
		return rooms.StatusMischief
	case TypeLoudNoise:
		return rooms.StatusLoudNoise
	case TypeMissingTeacher:
		return rooms.StatusMissingTeacher
	default:
		return rooms.StatusActive
	}
}

// Alert is an immutable record of a single rule firing.
type Alert struct {
	ID          string         `json:"id"`
	RoomID      string         `json:"room_id"`
	Type        AlertType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	SnapshotRef string         `json:"image_snapshot_path,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert: empty id")
	}
	if a.RoomID == "" {
		return errors.New("alert: empty room id")
	}
	if !a.Type.Valid() {
		return errors.New("alert: invalid type")
	}
	if a.Timestamp.IsZero() {
		return errors.New("alert: zero timestamp")
	}
	return nil
}
