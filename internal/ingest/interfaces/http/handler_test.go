package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	alertapp "classroom-sentinel/internal/alerts/application"
)

type stubProcessor struct {
	roomID         string
	count          int
	score          float64
	level          float64
	occupancy      int
	teacherPresent bool
	frame          []byte
	result         alertapp.Result
	frameResult    alertapp.FrameResult
}

func (p *stubProcessor) HandleOccupancy(_ context.Context, roomID string, count int) (alertapp.Result, error) {
	p.roomID, p.count = roomID, count
	return p.result, nil
}

func (p *stubProcessor) HandleMotion(_ context.Context, roomID string, score float64, frame []byte) (alertapp.Result, error) {
	p.roomID, p.score, p.frame = roomID, score, frame
	return p.result, nil
}

func (p *stubProcessor) HandleAudio(_ context.Context, roomID string, level float64) (alertapp.Result, error) {
	p.roomID, p.level = roomID, level
	return p.result, nil
}

func (p *stubProcessor) HandlePresence(_ context.Context, roomID string, occupancy int, teacherPresent bool) (alertapp.Result, error) {
	p.roomID, p.occupancy, p.teacherPresent = roomID, occupancy, teacherPresent
	return p.result, nil
}

func (p *stubProcessor) HandleFrame(_ context.Context, roomID string, frame []byte) (alertapp.FrameResult, error) {
	p.roomID, p.frame = roomID, frame
	return p.frameResult, nil
}

func newTestHandler(t *testing.T, processor *stubProcessor) *Handler {
	t.Helper()
	h, err := NewHandler(processor, log.New(bytes.NewBuffer(nil), "", 0))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func post(h *Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerOccupancy(t *testing.T) {
	processor := &stubProcessor{result: alertapp.Result{Fired: true}}
	h := newTestHandler(t, processor)

	rec := post(h, "/api/v1/signals/occupancy", `{"room_id":"8A","count":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if processor.roomID != "8A" || processor.count != 0 {
		t.Fatalf("processor got room %q count %d", processor.roomID, processor.count)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fired, _ := resp["alert_created"].(bool); !fired {
		t.Fatalf("alert_created = %v", resp["alert_created"])
	}
}

func TestHandlerValidation(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
	}{
		{"missing room", "/api/v1/signals/occupancy", `{"count":3}`},
		{"negative count", "/api/v1/signals/occupancy", `{"room_id":"8A","count":-1}`},
		{"missing count", "/api/v1/signals/occupancy", `{"room_id":"8A"}`},
		{"score too high", "/api/v1/signals/motion", `{"room_id":"8A","score":1.5}`},
		{"missing score", "/api/v1/signals/motion", `{"room_id":"8A"}`},
		{"level negative", "/api/v1/signals/audio", `{"room_id":"8A","level":-0.1}`},
		{"missing teacher flag", "/api/v1/signals/presence", `{"room_id":"8A","occupancy":5}`},
		{"missing frame", "/api/v1/signals/frame", `{"room_id":"8A"}`},
		{"bad base64 frame", "/api/v1/signals/frame", `{"room_id":"8A","frame":"%%%"}`},
		{"invalid json", "/api/v1/signals/audio", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubProcessor{})
			rec := post(h, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandlerMotionDecodesDataURLFrame(t *testing.T) {
	processor := &stubProcessor{}
	h := newTestHandler(t, processor)

	// "frame-bytes" base64 encoded, wrapped in a data URL.
	rec := post(h, "/api/v1/signals/motion",
		`{"room_id":"8A","score":0.4,"frame":"data:image/jpeg;base64,ZnJhbWUtYnl0ZXM="}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if string(processor.frame) != "frame-bytes" {
		t.Fatalf("frame = %q", processor.frame)
	}
	if processor.score != 0.4 {
		t.Fatalf("score = %v", processor.score)
	}
}

func TestHandlerPresence(t *testing.T) {
	processor := &stubProcessor{}
	h := newTestHandler(t, processor)

	rec := post(h, "/api/v1/signals/presence", `{"room_id":"8A","occupancy":12,"teacher_present":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if processor.occupancy != 12 || processor.teacherPresent {
		t.Fatalf("processor got occupancy %d present %v", processor.occupancy, processor.teacherPresent)
	}
}

func TestHandlerFrame(t *testing.T) {
	processor := &stubProcessor{frameResult: alertapp.FrameResult{PersonCount: 7, TeacherPresent: true, MotionScore: 0.2}}
	h := newTestHandler(t, processor)

	rec := post(h, "/api/v1/signals/frame", `{"room_id":"8A","frame":"ZnJhbWUtYnl0ZXM="}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp alertapp.FrameResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PersonCount != 7 || !resp.TeacherPresent {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHandlerRouting(t *testing.T) {
	h := newTestHandler(t, &stubProcessor{})

	rec := post(h, "/api/v1/signals/unknown", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kind status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/audio", nil)
	get := httptest.NewRecorder()
	h.ServeHTTP(get, req)
	if get.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", get.Code)
	}
}
