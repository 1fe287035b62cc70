package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	alerts "classroom-sentinel/internal/alerts/domain"
	"classroom-sentinel/internal/observability/metrics"
	rooms "classroom-sentinel/internal/rooms/domain"
)

// AlertStore persists alert records.
type AlertStore interface {
	Insert(ctx context.Context, alert *alerts.Alert) error
}

// RoomStore exposes the room status operations the engine depends on.
type RoomStore interface {
	GetByID(ctx context.Context, id string) (*rooms.Room, error)
	UpsertStatus(ctx context.Context, id, name, status string, at time.Time) (*rooms.Room, error)
}

// SnapshotStore captures evidence frames and returns a serveable
// reference. Best effort: a failure yields an empty reference.
type SnapshotStore interface {
	Save(roomID string, alertType alerts.AlertType, frame []byte, at time.Time) (string, error)
}

// NotificationSender delivers a debounced notification.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// FrameAnalyzer extracts occupancy, teacher presence and a motion
// score from a raw frame and the previous frame.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, frame, prev []byte) (FrameAnalysis, error)
}

// FrameAnalysis is the vision oracle's verdict on one frame.
type FrameAnalysis struct {
	PersonCount    int     `json:"person_count"`
	TeacherPresent bool    `json:"teacher_present"`
	MotionScore    float64 `json:"motion_score"`
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Notification is the payload handed to the sender once a pending
// notification survives its stable window.
type Notification struct {
	RoomID       string
	RoomName     string
	Type         alerts.AlertType
	Severity     int
	SnapshotRef  string
	TriggerValue float64
	CreatedAt    time.Time
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Result reports the outcome of processing one signal.
type Result struct {
	Fired bool          `json:"alert_created"`
	Alert *alerts.Alert `json:"alert,omitempty"`
}

// FrameResult reports the outcome of processing one combined frame.
type FrameResult struct {
	PersonCount    int     `json:"person_count"`
	TeacherPresent bool    `json:"teacher_present"`
	MotionScore    float64 `json:"motion_score"`
	Fired          bool    `json:"alert_created"`
}

// Service is the alerting engine: it owns per-room rule state, runs
// the evaluators, coordinates firing side effects and debounces
// notifications.
type Service struct {
	registry *StateRegistry
	rooms    RoomStore
	alerts   AlertStore
	config   alerts.ConfigFile

	snapshots SnapshotStore
	sender    NotificationSender
	notifier  AlertNotifier
	analyzer  FrameAnalyzer

	clock  Clock
	logger *log.Logger

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// ServiceOption customizes the engine.
type ServiceOption func(*Service)

// WithSnapshots assigns a snapshot store.
func WithSnapshots(store SnapshotStore) ServiceOption {
	return func(s *Service) {
		s.snapshots = store
	}
}

// WithSender assigns a notification sender.
func WithSender(sender NotificationSender) ServiceOption {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithNotifier assigns a lifecycle event notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithAnalyzer assigns a frame analyzer.
func WithAnalyzer(analyzer FrameAnalyzer) ServiceOption {
	return func(s *Service) {
		s.analyzer = analyzer
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs the alerting engine.
func NewService(roomStore RoomStore, alertStore AlertStore, config alerts.ConfigFile, opts ...ServiceOption) (*Service, error) {
	if roomStore == nil || alertStore == nil {
		return nil, errors.New("alerts: nil store")
	}
	if err := config.Defaults.Validate(); err != nil {
		return nil, err
	}
	service := &Service{
		registry: NewStateRegistry(),
		rooms:    roomStore,
		alerts:   alertStore,
		config:   config,
		clock:    systemClock{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleOccupancy feeds an occupancy count into the empty classroom
// rule. The result always reports whether the rule fired, even when
// downstream side effects fail.
func (s *Service) HandleOccupancy(ctx context.Context, roomID string, count int) (Result, error) {
	if s == nil {
		return Result{}, errors.New("alerts: nil service")
	}
	if roomID == "" {
		return Result{}, errors.New("alerts: room id required")
	}
	if count < 0 {
		return Result{}, errors.New("alerts: occupancy count must be non-negative")
	}
	cfg := s.config.ForRoom(roomID)
	now := s.clock.Now().UTC()

	entry := s.registry.entry(roomID)
	entry.mu.Lock()
	outcome := alerts.EvaluateEmptyClass(&entry.state, count, cfg, now)
	entry.mu.Unlock()

	return s.finish(ctx, roomID, entry, outcome, nil, cfg, now), nil
}

// HandleMotion feeds a motion score into the mischief rule. The frame,
// when supplied, replaces the stored previous frame regardless of the
// rule outcome.
func (s *Service) HandleMotion(ctx context.Context, roomID string, score float64, frame []byte) (Result, error) {
	if s == nil {
		return Result{}, errors.New("alerts: nil service")
	}
	if roomID == "" {
		return Result{}, errors.New("alerts: room id required")
	}
	if score < 0 || score > 1 {
		return Result{}, errors.New("alerts: motion score out of range")
	}
	cfg := s.config.ForRoom(roomID)
	now := s.clock.Now().UTC()

	entry := s.registry.entry(roomID)
	entry.mu.Lock()
	outcome := alerts.EvaluateMischief(&entry.state, score, cfg, now)
	if frame != nil {
		entry.state.SetPreviousFrame(frame)
	}
	var evidence []byte
	if outcome.Fired {
		evidence = entry.state.PreviousFrameCopy()
	}
	entry.mu.Unlock()

	return s.finish(ctx, roomID, entry, outcome, evidence, cfg, now), nil
}

// HandleAudio feeds an ambient audio level into the loud noise rule.
func (s *Service) HandleAudio(ctx context.Context, roomID string, level float64) (Result, error) {
	if s == nil {
		return Result{}, errors.New("alerts: nil service")
	}
	if roomID == "" {
		return Result{}, errors.New("alerts: room id required")
	}
	if level < 0 || level > 1 {
		return Result{}, errors.New("alerts: audio level out of range")
	}
	cfg := s.config.ForRoom(roomID)
	now := s.clock.Now().UTC()

	entry := s.registry.entry(roomID)
	entry.mu.Lock()
	outcome := alerts.EvaluateLoudNoise(&entry.state, level, cfg, now)
	entry.mu.Unlock()

	return s.finish(ctx, roomID, entry, outcome, nil, cfg, now), nil
}

// HandlePresence feeds a teacher presence observation into the
// missing teacher rule.
func (s *Service) HandlePresence(ctx context.Context, roomID string, occupancy int, teacherPresent bool) (Result, error) {
	if s == nil {
		return Result{}, errors.New("alerts: nil service")
	}
	if roomID == "" {
		return Result{}, errors.New("alerts: room id required")
	}
	if occupancy < 0 {
		return Result{}, errors.New("alerts: occupancy count must be non-negative")
	}
	cfg := s.config.ForRoom(roomID)
	now := s.clock.Now().UTC()

	entry := s.registry.entry(roomID)
	entry.mu.Lock()
	outcome := alerts.EvaluateMissingTeacher(&entry.state, occupancy, teacherPresent, cfg, now)
	var evidence []byte
	if outcome.Fired {
		evidence = entry.state.PreviousFrameCopy()
	}
	entry.mu.Unlock()

	return s.finish(ctx, roomID, entry, outcome, evidence, cfg, now), nil
}

// HandleFrame runs the vision analyzer on a raw frame and feeds the
// derived occupancy, motion and presence signals through their rules.
func (s *Service) HandleFrame(ctx context.Context, roomID string, frame []byte) (FrameResult, error) {
	if s == nil {
		return FrameResult{}, errors.New("alerts: nil service")
	}
	if roomID == "" {
		return FrameResult{}, errors.New("alerts: room id required")
	}
	if len(frame) == 0 {
		return FrameResult{}, errors.New("alerts: empty frame")
	}
	if s.analyzer == nil {
		return FrameResult{}, errors.New("alerts: no frame analyzer configured")
	}

	entry := s.registry.entry(roomID)
	entry.mu.Lock()
	prev := entry.state.PreviousFrameCopy()
	entry.mu.Unlock()

	analysis, err := s.analyzer.AnalyzeFrame(ctx, frame, prev)
	if err != nil {
		return FrameResult{}, err
	}

	occupancyResult, err := s.HandleOccupancy(ctx, roomID, analysis.PersonCount)
	if err != nil {
		return FrameResult{}, err
	}
	motionResult, err := s.HandleMotion(ctx, roomID, analysis.MotionScore, frame)
	if err != nil {
		return FrameResult{}, err
	}
	presenceResult, err := s.HandlePresence(ctx, roomID, analysis.PersonCount, analysis.TeacherPresent)
	if err != nil {
		return FrameResult{}, err
	}

	return FrameResult{
		PersonCount:    analysis.PersonCount,
		TeacherPresent: analysis.TeacherPresent,
		MotionScore:    analysis.MotionScore,
		Fired:          occupancyResult.Fired || motionResult.Fired || presenceResult.Fired,
	}, nil
}

// CheckPending runs one debounce check for a room, dispatching or
// cancelling its pending notification as the stable window dictates.
func (s *Service) CheckPending(ctx context.Context, roomID string) {
	if s == nil || roomID == "" {
		return
	}
	cfg := s.config.ForRoom(roomID)
	s.checkPending(ctx, roomID, s.registry.entry(roomID), cfg, s.clock.Now().UTC())
}

// StartSweep launches a background loop that periodically runs the
// debounce check for every room with state, so a pending notification
// resolves even when its room goes silent.
func (s *Service) StartSweep(interval time.Duration) {
	if s == nil || interval <= 0 || s.sweepStop != nil {
		return
	}
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.sweepStop:
				return
			case <-ticker.C:
				s.sweepOnce(context.Background())
			}
		}
	}()
}

// StopSweep stops the background debounce loop.
func (s *Service) StopSweep() {
	if s == nil || s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
	s.sweepStop = nil
	s.sweepDone = nil
}

func (s *Service) sweepOnce(ctx context.Context) {
	now := s.clock.Now().UTC()
	for _, roomID := range s.registry.RoomIDs() {
		cfg := s.config.ForRoom(roomID)
		s.checkPending(ctx, roomID, s.registry.entry(roomID), cfg, now)
	}
}

// finish runs the unlocked tail of signal handling: coordinating side
// effects when the rule fired, or the debounce check when it did not.
func (s *Service) finish(ctx context.Context, roomID string, entry *roomEntry, outcome alerts.Outcome, evidence []byte, cfg alerts.RuleConfig, now time.Time) Result {
	if !outcome.Fired {
		s.checkPending(ctx, roomID, entry, cfg, now)
		return Result{}
	}
	alert := s.coordinate(ctx, roomID, entry, outcome, evidence, now)
	return Result{Fired: true, Alert: alert}
}

// coordinate sequences the side effects of a firing. Every step is
// best effort and independently failable; the firing decision already
// committed under the lock is never rolled back.
func (s *Service) coordinate(ctx context.Context, roomID string, entry *roomEntry, outcome alerts.Outcome, evidence []byte, now time.Time) *alerts.Alert {
	metrics.IncRuleFired(string(outcome.Type))

	snapshotRef := ""
	if len(evidence) > 0 && s.snapshots != nil {
		ref, err := s.snapshots.Save(roomID, outcome.Type, evidence, now)
		if err != nil {
			metrics.IncSnapshotSave(metrics.ResultError)
			s.logger.Printf("alerts: snapshot save failed for room %s: %v", roomID, err)
		} else {
			metrics.IncSnapshotSave(metrics.ResultSuccess)
			snapshotRef = ref
		}
	}

	alert := &alerts.Alert{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Type:        outcome.Type,
		Timestamp:   now,
		SnapshotRef: snapshotRef,
		Metadata:    outcome.Metadata,
	}
	if err := s.alerts.Insert(ctx, alert); err != nil {
		s.logger.Printf("alerts: persisting alert failed for room %s: %v", roomID, err)
	}

	status := outcome.Type.RoomStatus()
	if _, err := s.rooms.UpsertStatus(ctx, roomID, rooms.DefaultName(roomID), status, now); err != nil {
		s.logger.Printf("alerts: status transition failed for room %s: %v", roomID, err)
	}

	pending := &alerts.PendingNotification{
		Status:       status,
		Type:         outcome.Type,
		CreatedAt:    now,
		Severity:     severityFor(outcome.Type),
		SnapshotRef:  snapshotRef,
		TriggerValue: outcome.TriggerValue,
	}
	entry.mu.Lock()
	entry.state.Pending = pending
	entry.mu.Unlock()

	s.notify(ctx, "fired", *alert)
	return alert
}

// checkPending applies the debounce state machine to the room's
// pending notification, if any.
func (s *Service) checkPending(ctx context.Context, roomID string, entry *roomEntry, cfg alerts.RuleConfig, now time.Time) {
	entry.mu.Lock()
	pending := entry.state.Pending
	entry.mu.Unlock()
	if pending == nil {
		return
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		s.logger.Printf("alerts: debounce status read failed for room %s: %v", roomID, err)
		return
	}
	currentStatus := ""
	roomName := rooms.DefaultName(roomID)
	if room != nil {
		currentStatus = room.Status
		if room.Name != "" {
			roomName = room.Name
		}
	}

	if currentStatus != pending.Status {
		if s.clearPending(entry, pending) {
			metrics.IncNotification(metrics.NotificationCancelled)
			s.logger.Printf("alerts: pending %s notification for room %s cancelled, status now %q", pending.Type, roomID, currentStatus)
		}
		return
	}
	if now.Sub(pending.CreatedAt) < cfg.StableWindow.Std() {
		return
	}
	if !s.clearPending(entry, pending) {
		return
	}
	if s.sender == nil {
		return
	}
	notification := Notification{
		RoomID:       roomID,
		RoomName:     roomName,
		Type:         pending.Type,
		Severity:     pending.Severity,
		SnapshotRef:  pending.SnapshotRef,
		TriggerValue: pending.TriggerValue,
		CreatedAt:    pending.CreatedAt,
	}
	if err := s.sender.Send(ctx, notification); err != nil {
		metrics.IncNotification(metrics.NotificationFailed)
		s.logger.Printf("alerts: notification dispatch failed for room %s: %v", roomID, err)
		return
	}
	metrics.IncNotification(metrics.NotificationDispatched)
}

// clearPending removes the pending notification only if it is still
// the same one observed earlier; a replacement that raced in wins.
func (s *Service) clearPending(entry *roomEntry, observed *alerts.PendingNotification) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state.Pending != observed {
		return false
	}
	entry.state.Pending = nil
	return true
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

func severityFor(t alerts.AlertType) int {
	switch t {
	case alerts.TypeMissingTeacher:
		return 3
	case alerts.TypeMischief, alerts.TypeLoudNoise:
		return 2
	default:
		return 1
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
