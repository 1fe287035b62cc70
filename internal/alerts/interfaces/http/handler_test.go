package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	alertapp "classroom-sentinel/internal/alerts/application"
	alerts "classroom-sentinel/internal/alerts/domain"
)

type stubReader struct {
	list    []alerts.Alert
	gotRoom string
	gotType string
	gotLim  int
}

func (s *stubReader) List(_ context.Context, roomID, alertType string, _, _ time.Time, limit int) ([]alerts.Alert, error) {
	s.gotRoom = roomID
	s.gotType = alertType
	s.gotLim = limit
	return s.list, nil
}

func TestHandlerListAlerts(t *testing.T) {
	reader := &stubReader{list: []alerts.Alert{{
		ID:        "a-1",
		RoomID:    "8A",
		Type:      alerts.TypeLoudNoise,
		Timestamp: time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{"audio_level": 0.4},
	}}}
	handler, err := NewHandler(reader)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?room_id=8A&type=loud_noise&limit=5", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if reader.gotRoom != "8A" || reader.gotType != "loud_noise" || reader.gotLim != 5 {
		t.Fatalf("filters not forwarded: %+v", reader)
	}

	var list []alerts.Alert
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a-1" {
		t.Fatalf("list = %+v", list)
	}
}

func TestHandlerRejectsBadInput(t *testing.T) {
	handler, err := NewHandler(&stubReader{})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	cases := []string{
		"/api/v1/alerts?type=bogus",
		"/api/v1/alerts?from=notatime",
		"/api/v1/alerts?limit=-1",
		"/api/v1/alerts?from=2026-02-11T12:00:00Z&to=2026-02-11T11:00:00Z",
	}
	for _, target := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", resp.Code)
	}
}

func TestHandlerEmptyListIsJSONArray(t *testing.T) {
	handler, err := NewHandler(&stubReader{})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := strings.TrimSpace(resp.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want empty array", got)
	}
}

func TestSSEBrokerBroadcast(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.Subscribe()

	broker.Notify(context.Background(), alertapp.AlertEvent{
		Type:  "fired",
		Alert: alerts.Alert{ID: "a-1", RoomID: "8A", Type: alerts.TypeMischief},
	})

	select {
	case payload := <-ch:
		var event alertapp.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.Type != "fired" || event.Alert.ID != "a-1" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}

	broker.Unsubscribe(ch)
	// a broadcast after unsubscribe must not panic
	broker.Notify(context.Background(), alertapp.AlertEvent{Type: "fired"})
}
