package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	alertapp "classroom-sentinel/internal/alerts/application"
	alerts "classroom-sentinel/internal/alerts/domain"
)

// Channel delivers rendered content.
type Channel interface {
	Send(ctx context.Context, subject, content string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Sender renders debounced notifications and fans them out to its
// channels. It implements the engine's NotificationSender contract.
type Sender struct {
	channels     []Channel
	template     *Template
	baseURL      string
	clock        Clock
	mu           sync.Mutex
	sent         map[string]sendRecord
	dedupeWindow time.Duration
}

// SenderOption configures the sender.
type SenderOption func(*Sender)

// WithBaseURL makes snapshot references absolute in rendered content.
func WithBaseURL(baseURL string) SenderOption {
	return func(s *Sender) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) SenderOption {
	return func(s *Sender) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) SenderOption {
	return func(s *Sender) {
		if window > 0 {
			s.dedupeWindow = window
		}
	}
}

// NewSender constructs a sender.
func NewSender(template *Template, channels []Channel, opts ...SenderOption) (*Sender, error) {
	if len(channels) == 0 {
		return nil, errors.New("alert sender: no channels")
	}
	for _, channel := range channels {
		if channel == nil {
			return nil, errors.New("alert sender: nil channel")
		}
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	sender := &Sender{
		channels: channels,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(sender)
	}
	return sender, nil
}

// Send renders and delivers one notification. Every channel is
// attempted; the combined error reports the ones that failed.
func (s *Sender) Send(ctx context.Context, n alertapp.Notification) error {
	if s == nil {
		return errors.New("alert sender: nil sender")
	}
	data := s.buildTemplateData(n)
	content, err := s.template.Render(data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[Classroom Sentinel] %s - %s", data.IssueLabel, data.Room)
	if !s.shouldSend(n.RoomID, string(n.Type), content) {
		return nil
	}

	var errs []error
	for _, channel := range s.channels {
		if err := channel.Send(ctx, subject, content); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.markSent(n.RoomID, string(n.Type), content)
	return nil
}

func (s *Sender) buildTemplateData(n alertapp.Notification) TemplateData {
	room := n.RoomName
	if room == "" {
		room = n.RoomID
	}
	snapshotURL := n.SnapshotRef
	if snapshotURL != "" && s.baseURL != "" && !strings.Contains(snapshotURL, "://") {
		snapshotURL = s.baseURL + "/api/v1/snapshots/" + snapshotURL
	}
	return TemplateData{
		Room:           room,
		RoomID:         n.RoomID,
		Issue:          string(n.Type),
		IssueLabel:     issueLabel(n.Type),
		Severity:       severityLabel(n.Severity),
		TriggerValue:   fmt.Sprintf("%.2f", n.TriggerValue),
		FiredAt:        n.CreatedAt.UTC().Format(time.RFC3339),
		Recommendation: recommendationFor(n.Type),
		SnapshotURL:    snapshotURL,
	}
}

func issueLabel(t alerts.AlertType) string {
	switch t {
	case alerts.TypeEmptyClass:
		return "Empty Classroom"
	case alerts.TypeMischief:
		return "Mischief"
	case alerts.TypeLoudNoise:
		return "Loud Noise"
	case alerts.TypeMissingTeacher:
		return "Missing Teacher"
	default:
		return string(t)
	}
}

func recommendationFor(t alerts.AlertType) string {
	switch t {
	case alerts.TypeEmptyClass:
		return "Check the schedule and confirm the session status."
	case alerts.TypeMischief:
		return "Deploy security or the principal to the room."
	case alerts.TypeLoudNoise:
		return "Notify the teacher via intercom to lower the volume."
	case alerts.TypeMissingTeacher:
		return "Deploy a hallway monitor or substitute immediately."
	default:
		return "Review classroom conditions."
	}
}

func severityLabel(severity int) string {
	switch {
	case severity >= 3:
		return "high"
	case severity == 2:
		return "medium"
	default:
		return "low"
	}
}

func (s *Sender) shouldSend(roomID, issue, content string) bool {
	if s.dedupeWindow <= 0 {
		return true
	}
	key := roomID + "|" + issue
	now := s.clock.Now().UTC()
	hash := hashContent(content)

	s.mu.Lock()
	record, ok := s.sent[key]
	s.mu.Unlock()
	if !ok {
		return true
	}
	if record.hash == hash && now.Sub(record.at) < s.dedupeWindow {
		return false
	}
	return true
}

func (s *Sender) markSent(roomID, issue, content string) {
	if s.dedupeWindow <= 0 {
		return
	}
	key := roomID + "|" + issue
	s.mu.Lock()
	s.sent[key] = sendRecord{
		at:   s.clock.Now().UTC(),
		hash: hashContent(content),
	}
	s.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
