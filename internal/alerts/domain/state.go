package alerts

import "time"

// PendingNotification is a notification awaiting its stable window.
// The room must still carry Status when the window elapses, otherwise
// the notification is dropped as a transient condition.
type PendingNotification struct {
	Status       string
	Type         AlertType
	CreatedAt    time.Time
	Severity     int
	SnapshotRef  string
	TriggerValue float64
}

// RoomRuleState is the per-room temporal state consulted by the rule
// evaluators. One instance exists per room for the process lifetime and
// is mutated only while the room's lock is held.
type RoomRuleState struct {
	// EmptyWindowStart is the time of the first zero-occupancy sample of
	// the current empty window. Zero while occupancy is positive.
	EmptyWindowStart time.Time

	MotionStreak        int
	LastMischiefFiredAt time.Time

	AudioStreak          int
	LastLoudNoiseFiredAt time.Time

	LastMissingTeacherFiredAt time.Time

	// PreviousFrame is an owned copy of the most recent frame seen for
	// this room, kept for the external motion-score computation. Never
	// aliased with a caller-supplied buffer.
	PreviousFrame []byte

	Pending *PendingNotification
}

// SetPreviousFrame stores an independent copy of frame. A nil frame
// clears the stored buffer.
func (s *RoomRuleState) SetPreviousFrame(frame []byte) {
	if frame == nil {
		s.PreviousFrame = nil
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.PreviousFrame = buf
}

// PreviousFrameCopy returns an independent copy of the stored frame, or
// nil when no frame has been seen yet.
func (s *RoomRuleState) PreviousFrameCopy() []byte {
	if s.PreviousFrame == nil {
		return nil
	}
	buf := make([]byte, len(s.PreviousFrame))
	copy(buf, s.PreviousFrame)
	return buf
}
