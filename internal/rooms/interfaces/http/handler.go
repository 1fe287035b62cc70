package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"classroom-sentinel/internal/audit"
	"classroom-sentinel/internal/auth"
	rooms "classroom-sentinel/internal/rooms/domain"
)

// RoomStore exposes the room operations the handler needs.
type RoomStore interface {
	GetByID(ctx context.Context, id string) (*rooms.Room, error)
	List(ctx context.Context) ([]rooms.Room, error)
	UpsertStatus(ctx context.Context, id, name, status string, at time.Time) (*rooms.Room, error)
}

// Handler provides room HTTP endpoints.
type Handler struct {
	store       RoomStore
	auditLogger audit.Logger
}

// Option configures the handler.
type Option func(*Handler)

// WithAuditLogger records manual status overrides in the audit log.
func WithAuditLogger(logger audit.Logger) Option {
	return func(h *Handler) { h.auditLogger = logger }
}

// NewHandler constructs a handler.
func NewHandler(store RoomStore, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, errors.New("rooms handler: nil store")
	}
	h := &Handler{store: store}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/rooms and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/rooms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/rooms/"):
		h.handleRoom(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []rooms.Room{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleRoom(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/rooms/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleStatus(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	room, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if room == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(room)
}

// handleStatus applies a manual status override. Setting a room back
// to active is how an operator resolves a condition by hand; the
// debouncer observes the change and cancels the pending notification.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if !rooms.ValidStatus(body.Status) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	room, err := h.store.UpsertStatus(r.Context(), id, body.Name, body.Status, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.logAudit(r, id, body.Status)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(room)
}

func (h *Handler) logAudit(r *http.Request, roomID, status string) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"status": status})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "room.status.override",
		ResourceType: "room",
		ResourceID:   roomID,
		RoomID:       roomID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
