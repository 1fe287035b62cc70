package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	alertapp "classroom-sentinel/internal/alerts/application"
	"classroom-sentinel/internal/observability/metrics"
)

// SignalProcessor consumes validated sensor signals.
type SignalProcessor interface {
	HandleOccupancy(ctx context.Context, roomID string, count int) (alertapp.Result, error)
	HandleMotion(ctx context.Context, roomID string, score float64, frame []byte) (alertapp.Result, error)
	HandleAudio(ctx context.Context, roomID string, level float64) (alertapp.Result, error)
	HandlePresence(ctx context.Context, roomID string, occupancy int, teacherPresent bool) (alertapp.Result, error)
	HandleFrame(ctx context.Context, roomID string, frame []byte) (alertapp.FrameResult, error)
}

// Handler exposes the sensor signal ingestion endpoints under
// /api/v1/signals/.
type Handler struct {
	processor SignalProcessor
	logger    *log.Logger
}

// NewHandler constructs a signal ingestion handler.
func NewHandler(processor SignalProcessor, logger *log.Logger) (*Handler, error) {
	if processor == nil {
		return nil, errors.New("signals handler: nil processor")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{processor: processor, logger: logger}, nil
}

// ServeHTTP routes /api/v1/signals/{occupancy,motion,audio,presence,frame}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	kind := strings.TrimPrefix(r.URL.Path, "/api/v1/signals/")
	start := time.Now()
	switch kind {
	case "occupancy":
		h.handleOccupancy(w, r, start)
	case "motion":
		h.handleMotion(w, r, start)
	case "audio":
		h.handleAudio(w, r, start)
	case "presence":
		h.handlePresence(w, r, start)
	case "frame":
		h.handleFrame(w, r, start)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOccupancy(w http.ResponseWriter, r *http.Request, start time.Time) {
	var body struct {
		RoomID string `json:"room_id"`
		Count  *int   `json:"count"`
	}
	if !decodeBody(w, r, &body, "occupancy") {
		return
	}
	if !requireRoom(w, body.RoomID, "occupancy") {
		return
	}
	if body.Count == nil || *body.Count < 0 {
		badRequest(w, "occupancy", "count must be a non-negative integer")
		return
	}
	result, err := h.processor.HandleOccupancy(r.Context(), body.RoomID, *body.Count)
	h.respond(w, "occupancy", result, err, start)
}

func (h *Handler) handleMotion(w http.ResponseWriter, r *http.Request, start time.Time) {
	var body struct {
		RoomID string   `json:"room_id"`
		Score  *float64 `json:"score"`
		Frame  string   `json:"frame"`
	}
	if !decodeBody(w, r, &body, "motion") {
		return
	}
	if !requireRoom(w, body.RoomID, "motion") {
		return
	}
	if body.Score == nil || *body.Score < 0 || *body.Score > 1 {
		badRequest(w, "motion", "score must be between 0.0 and 1.0")
		return
	}
	var frame []byte
	if body.Frame != "" {
		decoded, err := decodeFrame(body.Frame)
		if err != nil {
			badRequest(w, "motion", "frame is not valid base64")
			return
		}
		frame = decoded
	}
	result, err := h.processor.HandleMotion(r.Context(), body.RoomID, *body.Score, frame)
	h.respond(w, "motion", result, err, start)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request, start time.Time) {
	var body struct {
		RoomID string   `json:"room_id"`
		Level  *float64 `json:"level"`
	}
	if !decodeBody(w, r, &body, "audio") {
		return
	}
	if !requireRoom(w, body.RoomID, "audio") {
		return
	}
	if body.Level == nil || *body.Level < 0 || *body.Level > 1 {
		badRequest(w, "audio", "level must be between 0.0 and 1.0")
		return
	}
	result, err := h.processor.HandleAudio(r.Context(), body.RoomID, *body.Level)
	h.respond(w, "audio", result, err, start)
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request, start time.Time) {
	var body struct {
		RoomID         string `json:"room_id"`
		Occupancy      *int   `json:"occupancy"`
		TeacherPresent *bool  `json:"teacher_present"`
	}
	if !decodeBody(w, r, &body, "presence") {
		return
	}
	if !requireRoom(w, body.RoomID, "presence") {
		return
	}
	if body.Occupancy == nil || *body.Occupancy < 0 {
		badRequest(w, "presence", "occupancy must be a non-negative integer")
		return
	}
	if body.TeacherPresent == nil {
		badRequest(w, "presence", "teacher_present is required")
		return
	}
	result, err := h.processor.HandlePresence(r.Context(), body.RoomID, *body.Occupancy, *body.TeacherPresent)
	h.respond(w, "presence", result, err, start)
}

func (h *Handler) handleFrame(w http.ResponseWriter, r *http.Request, start time.Time) {
	var body struct {
		RoomID string `json:"room_id"`
		Frame  string `json:"frame"`
	}
	if !decodeBody(w, r, &body, "frame") {
		return
	}
	if !requireRoom(w, body.RoomID, "frame") {
		return
	}
	if body.Frame == "" {
		badRequest(w, "frame", "frame is required")
		return
	}
	frame, err := decodeFrame(body.Frame)
	if err != nil {
		badRequest(w, "frame", "frame is not valid base64")
		return
	}
	result, err := h.processor.HandleFrame(r.Context(), body.RoomID, frame)
	if err != nil {
		h.logger.Printf("signals frame: %v", err)
		metrics.ObserveSignal("frame", metrics.ResultError, time.Since(start))
		http.Error(w, "frame processing failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveSignal("frame", metrics.ResultSuccess, time.Since(start))
	writeJSON(w, result)
}

func (h *Handler) respond(w http.ResponseWriter, kind string, result alertapp.Result, err error, start time.Time) {
	if err != nil {
		h.logger.Printf("signals %s: %v", kind, err)
		metrics.ObserveSignal(kind, metrics.ResultError, time.Since(start))
		http.Error(w, "signal processing failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveSignal(kind, metrics.ResultSuccess, time.Since(start))
	writeJSON(w, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, kind string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, kind, "invalid json body")
		return false
	}
	return true
}

func requireRoom(w http.ResponseWriter, roomID, kind string) bool {
	if strings.TrimSpace(roomID) == "" {
		badRequest(w, kind, "room_id is required")
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, kind, msg string) {
	metrics.IncSignalError(kind)
	http.Error(w, msg, http.StatusBadRequest)
}

// decodeFrame accepts raw base64 or a data URL such as
// "data:image/jpeg;base64,...".
func decodeFrame(value string) ([]byte, error) {
	if strings.HasPrefix(value, "data:") {
		if _, rest, ok := strings.Cut(value, ","); ok {
			value = rest
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(value))
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
