package notify

import (
	"context"

	alertapp "classroom-sentinel/internal/alerts/application"
)

// MultiNotifier dispatches alert events to multiple notifiers.
type MultiNotifier struct {
	notifiers []alertapp.AlertNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alertapp.AlertNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
