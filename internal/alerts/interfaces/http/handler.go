package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
)

const timeLayout = time.RFC3339

// AlertReader loads alert records.
type AlertReader interface {
	List(ctx context.Context, roomID, alertType string, from, to time.Time, limit int) ([]alerts.Alert, error)
}

// Handler provides alert HTTP endpoints.
type Handler struct {
	reader AlertReader
}

// NewHandler constructs a handler.
func NewHandler(reader AlertReader) (*Handler, error) {
	if reader == nil {
		return nil, errors.New("alerts handler: nil reader")
	}
	return &Handler{reader: reader}, nil
}

// ServeHTTP handles GET /api/v1/alerts.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/alerts" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("room_id")
	alertType := r.URL.Query().Get("type")
	if alertType != "" && !alerts.AlertType(alertType).Valid() {
		http.Error(w, "unknown alert type", http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	list, err := h.reader.List(r.Context(), roomID, alertType, from, to, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
