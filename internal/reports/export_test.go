package reports

import (
	"bytes"
	"testing"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
)

func sampleAlerts() []alerts.Alert {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []alerts.Alert{
		{
			ID:        "a1",
			RoomID:    "8A",
			Type:      alerts.TypeMischief,
			Timestamp: base,
			Metadata:  map[string]any{"motion_score": 0.512},
		},
		{
			ID:        "a2",
			RoomID:    "8A",
			Type:      alerts.TypeMischief,
			Timestamp: base.Add(5 * time.Minute),
			Metadata:  map[string]any{"motion_score": 0.66},
		},
		{
			ID:        "a3",
			RoomID:    "7B",
			Type:      alerts.TypeEmptyClass,
			Timestamp: base.Add(10 * time.Minute),
			Metadata:  map[string]any{"empty_duration_sec": 120},
		},
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	summary := Summarize(sampleAlerts(), "", time.Time{}, time.Time{}, now)
	if summary.Total != 3 {
		t.Fatalf("total = %d", summary.Total)
	}
	if summary.ByType[alerts.TypeMischief] != 2 || summary.ByType[alerts.TypeEmptyClass] != 1 {
		t.Fatalf("by type = %v", summary.ByType)
	}
	if summary.scopeLabel() != "all rooms" {
		t.Fatalf("scope = %q", summary.scopeLabel())
	}
	if summary.rangeLabel() != "full history" {
		t.Fatalf("range = %q", summary.rangeLabel())
	}
}

func TestBuildAlertsPDF(t *testing.T) {
	summary := Summarize(sampleAlerts(), "8A", time.Time{}, time.Time{}, time.Now())
	payload, err := BuildAlertsPDF(summary, sampleAlerts())
	if err != nil {
		t.Fatalf("BuildAlertsPDF: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("payload is not a pdf, prefix %q", payload[:4])
	}
}

func TestBuildAlertsXLSX(t *testing.T) {
	summary := Summarize(sampleAlerts(), "", time.Time{}, time.Time{}, time.Now())
	payload, err := BuildAlertsXLSX(summary, sampleAlerts())
	if err != nil {
		t.Fatalf("BuildAlertsXLSX: %v", err)
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(payload, []byte("PK")) {
		t.Fatalf("payload is not a zip, prefix %q", payload[:2])
	}
}

func TestFormatMetadata(t *testing.T) {
	got := formatMetadata(map[string]any{"occupancy": 12, "audio_level": 0.4})
	if got != "audio_level=0.4, occupancy=12" {
		t.Fatalf("formatMetadata = %q", got)
	}
	if formatMetadata(nil) != "" {
		t.Fatal("empty metadata should format to empty string")
	}
}
