package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
	rooms "classroom-sentinel/internal/rooms/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRoomStore struct {
	mu     sync.Mutex
	status map[string]string
	getErr error
}

func newStubRoomStore() *stubRoomStore {
	return &stubRoomStore{status: make(map[string]string)}
}

func (s *stubRoomStore) GetByID(_ context.Context, id string) (*rooms.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	status, ok := s.status[id]
	if !ok {
		return nil, nil
	}
	return &rooms.Room{ID: id, Name: rooms.DefaultName(id), Status: status}, nil
}

func (s *stubRoomStore) UpsertStatus(_ context.Context, id, name, status string, at time.Time) (*rooms.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = status
	return &rooms.Room{ID: id, Name: name, Status: status, UpdatedAt: at}, nil
}

func (s *stubRoomStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = status
}

type stubAlertStore struct {
	mu      sync.Mutex
	alerts  []alerts.Alert
	insErr  error
	inserts int
}

func (s *stubAlertStore) Insert(_ context.Context, alert *alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insErr != nil {
		return s.insErr
	}
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *stubAlertStore) byRoom(id string) []alerts.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alerts.Alert
	for _, a := range s.alerts {
		if a.RoomID == id {
			out = append(out, a)
		}
	}
	return out
}

type stubSnapshotStore struct {
	mu    sync.Mutex
	ref   string
	err   error
	saves int
}

func (s *stubSnapshotStore) Save(string, alerts.AlertType, []byte, time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return "", s.err
	}
	return s.ref, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (s *stubSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubAnalyzer struct {
	analysis  FrameAnalysis
	err       error
	lastPrev  []byte
	lastFrame []byte
}

func (s *stubAnalyzer) AnalyzeFrame(_ context.Context, frame, prev []byte) (FrameAnalysis, error) {
	s.lastFrame = frame
	s.lastPrev = prev
	if s.err != nil {
		return FrameAnalysis{}, s.err
	}
	return s.analysis, nil
}

func newTestService(t *testing.T, clock *fakeClock, roomStore *stubRoomStore, alertStore *stubAlertStore, opts ...ServiceOption) *Service {
	t.Helper()
	cfg, err := alerts.LoadConfigFile("")
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	svc, err := NewService(roomStore, alertStore, cfg, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func fireMischief(t *testing.T, svc *Service, clock *fakeClock, roomID string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := svc.HandleMotion(ctx, roomID, 0.5, nil)
		if err != nil {
			t.Fatalf("HandleMotion: %v", err)
		}
		if i < 2 && res.Fired {
			t.Fatalf("fired before the streak completed")
		}
		if i == 2 && !res.Fired {
			t.Fatalf("expected a firing on the third sample")
		}
		clock.Advance(time.Second)
	}
}

func TestEmptyClassFiresAndUpdatesStatus(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	svc := newTestService(t, clock, roomStore, alertStore)
	ctx := context.Background()

	if res, err := svc.HandleOccupancy(ctx, "8A", 0); err != nil || res.Fired {
		t.Fatalf("first sample: res=%+v err=%v", res, err)
	}
	clock.Advance(2 * time.Minute)
	res, err := svc.HandleOccupancy(ctx, "8A", 0)
	if err != nil {
		t.Fatalf("HandleOccupancy: %v", err)
	}
	if !res.Fired || res.Alert == nil || res.Alert.Type != alerts.TypeEmptyClass {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := len(alertStore.byRoom("8A")); got != 1 {
		t.Fatalf("alert count = %d, want 1", got)
	}
	roomStore.mu.Lock()
	status := roomStore.status["8A"]
	roomStore.mu.Unlock()
	if status != rooms.StatusEmpty {
		t.Fatalf("room status = %q, want %q", status, rooms.StatusEmpty)
	}
}

func TestRoomIsolation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	svc := newTestService(t, clock, roomStore, alertStore)
	ctx := context.Background()

	fireMischief(t, svc, clock, "8A")

	// two above-threshold samples in another room must not fire
	for i := 0; i < 2; i++ {
		res, err := svc.HandleMotion(ctx, "8B", 0.5, nil)
		if err != nil {
			t.Fatalf("HandleMotion: %v", err)
		}
		if res.Fired {
			t.Fatalf("room 8B fired with only %d samples", i+1)
		}
	}
	if got := len(alertStore.byRoom("8B")); got != 0 {
		t.Fatalf("room 8B alert count = %d, want 0", got)
	}
}

func TestDebounceDispatchExactlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	sender := &stubSender{}
	svc := newTestService(t, clock, roomStore, alertStore, WithSender(sender))
	ctx := context.Background()

	fireMischief(t, svc, clock, "8A")

	// stable window not yet elapsed
	if _, err := svc.HandleMotion(ctx, "8A", 0.0, nil); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("dispatched before the stable window elapsed")
	}

	clock.Advance(10 * time.Second)
	for i := 0; i < 3; i++ {
		if _, err := svc.HandleMotion(ctx, "8A", 0.0, nil); err != nil {
			t.Fatalf("HandleMotion: %v", err)
		}
	}
	if got := sender.count(); got != 1 {
		t.Fatalf("dispatched %d notifications, want exactly 1", got)
	}
	sender.mu.Lock()
	n := sender.sent[0]
	sender.mu.Unlock()
	if n.Type != alerts.TypeMischief || n.RoomID != "8A" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestDebounceCancelledOnStatusChange(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	sender := &stubSender{}
	svc := newTestService(t, clock, roomStore, alertStore, WithSender(sender))
	ctx := context.Background()

	fireMischief(t, svc, clock, "8A")

	// the room recovers before the stable window elapses
	roomStore.setStatus("8A", rooms.StatusActive)
	clock.Advance(5 * time.Second)
	if _, err := svc.HandleMotion(ctx, "8A", 0.0, nil); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := svc.HandleMotion(ctx, "8A", 0.0, nil); err != nil {
		t.Fatalf("HandleMotion: %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("cancelled notification was dispatched")
	}
}

func TestSideEffectFailuresDoNotAbortFiring(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{insErr: errors.New("db down")}
	snapshots := &stubSnapshotStore{err: errors.New("disk full")}
	svc := newTestService(t, clock, roomStore, alertStore, WithSnapshots(snapshots))
	ctx := context.Background()

	frame := []byte{0xff, 0xd8, 0x01}
	var res Result
	var err error
	for i := 0; i < 3; i++ {
		res, err = svc.HandleMotion(ctx, "8A", 0.5, frame)
		if err != nil {
			t.Fatalf("HandleMotion: %v", err)
		}
		clock.Advance(time.Second)
	}
	if !res.Fired {
		t.Fatalf("expected a firing despite failing side effects")
	}
	if res.Alert == nil || res.Alert.SnapshotRef != "" {
		t.Fatalf("snapshot failure should yield an empty reference, got %+v", res.Alert)
	}
	if snapshots.saves != 1 {
		t.Fatalf("snapshot saves = %d, want 1", snapshots.saves)
	}
	// status transition still attempted after the persistence failure
	roomStore.mu.Lock()
	status := roomStore.status["8A"]
	roomStore.mu.Unlock()
	if status != rooms.StatusMischief {
		t.Fatalf("room status = %q, want %q", status, rooms.StatusMischief)
	}
}

func TestAtMostOneAlertPerCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	svc := newTestService(t, clock, roomStore, alertStore)
	ctx := context.Background()

	// one sample per second for 70 seconds, all above threshold
	for i := 0; i < 70; i++ {
		if _, err := svc.HandleAudio(ctx, "8A", 0.5); err != nil {
			t.Fatalf("HandleAudio: %v", err)
		}
		clock.Advance(time.Second)
	}
	got := alertStore.byRoom("8A")
	if len(got) != 2 {
		t.Fatalf("alert count = %d, want 2", len(got))
	}
	gap := got[1].Timestamp.Sub(got[0].Timestamp)
	if gap < alerts.DefaultLoudNoiseCooldown {
		t.Fatalf("alerts %v apart, want at least the cooldown", gap)
	}
}

func TestSweepDispatchesForSilentRoom(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	sender := &stubSender{}
	svc := newTestService(t, clock, roomStore, alertStore, WithSender(sender))

	fireMischief(t, svc, clock, "8A")

	// no further signals; the sweep resolves the pending notification
	clock.Advance(10 * time.Second)
	svc.sweepOnce(context.Background())
	if got := sender.count(); got != 1 {
		t.Fatalf("dispatched %d notifications, want 1", got)
	}
	svc.sweepOnce(context.Background())
	if got := sender.count(); got != 1 {
		t.Fatalf("second sweep dispatched again, total %d", got)
	}
}

func TestHandleFrameFeedsAllRules(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	analyzer := &stubAnalyzer{analysis: FrameAnalysis{PersonCount: 5, TeacherPresent: false, MotionScore: 0.1}}
	svc := newTestService(t, clock, roomStore, alertStore, WithAnalyzer(analyzer))
	ctx := context.Background()

	frame := []byte{0xff, 0xd8, 0x02}
	res, err := svc.HandleFrame(ctx, "8A", frame)
	if err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	// missing teacher fires on the first qualifying frame
	if !res.Fired {
		t.Fatalf("expected a firing, got %+v", res)
	}
	if res.PersonCount != 5 || res.MotionScore != 0.1 {
		t.Fatalf("analysis not echoed: %+v", res)
	}
	if analyzer.lastPrev != nil {
		t.Fatalf("first frame should see no previous frame")
	}

	got := alertStore.byRoom("8A")
	if len(got) != 1 || got[0].Type != alerts.TypeMissingTeacher {
		t.Fatalf("alerts = %+v", got)
	}

	// the stored frame becomes the next call's reference
	clock.Advance(time.Second)
	if _, err := svc.HandleFrame(ctx, "8A", []byte{0xff, 0xd8, 0x03}); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if string(analyzer.lastPrev) != string(frame) {
		t.Fatalf("previous frame = %v, want the first frame", analyzer.lastPrev)
	}
}

func TestHandleFrameAnalyzerFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	roomStore := newStubRoomStore()
	alertStore := &stubAlertStore{}
	analyzer := &stubAnalyzer{err: errors.New("vision unavailable")}
	svc := newTestService(t, clock, roomStore, alertStore, WithAnalyzer(analyzer))

	if _, err := svc.HandleFrame(context.Background(), "8A", []byte{1}); err == nil {
		t.Fatalf("expected an error when the analyzer fails")
	}
	if alertStore.inserts != 0 {
		t.Fatalf("no alert should be created on analyzer failure")
	}
}

func TestHandleSignalValidation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock, newStubRoomStore(), &stubAlertStore{})
	ctx := context.Background()

	if _, err := svc.HandleOccupancy(ctx, "", 1); err == nil {
		t.Fatalf("expected error for empty room id")
	}
	if _, err := svc.HandleOccupancy(ctx, "8A", -1); err == nil {
		t.Fatalf("expected error for negative count")
	}
	if _, err := svc.HandleMotion(ctx, "8A", 1.5, nil); err == nil {
		t.Fatalf("expected error for out of range score")
	}
	if _, err := svc.HandleAudio(ctx, "8A", -0.2); err == nil {
		t.Fatalf("expected error for out of range level")
	}
}
