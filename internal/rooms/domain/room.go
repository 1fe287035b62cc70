package rooms

import (
	"errors"
	"time"
)

// Room statuses. A room is "active" in normal operation; the remaining
// statuses mirror the alert type that last fired for it.
const (
	StatusActive         = "active"
	StatusInactive       = "inactive"
	StatusEmpty          = "empty"
	StatusMischief       = "mischief"
	StatusLoudNoise      = "loud_noise"
	StatusMissingTeacher = "missing_teacher"
)

// Room is a monitored classroom.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"current_status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidStatus returns true when the status is one of the known values.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusInactive, StatusEmpty, StatusMischief, StatusLoudNoise, StatusMissingTeacher:
		return true
	default:
		return false
	}
}

// Validate checks room invariants.
func (r Room) Validate() error {
	if r.ID == "" {
		return errors.New("room: empty id")
	}
	if r.Name == "" {
		return errors.New("room: empty name")
	}
	if !ValidStatus(r.Status) {
		return errors.New("room: invalid status")
	}
	return nil
}

// DefaultName builds the display name used when a room is first seen
// through a signal before being provisioned explicitly.
func DefaultName(roomID string) string {
	return "Room " + roomID
}
