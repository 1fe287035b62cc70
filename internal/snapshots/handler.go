package snapshots

import (
	"errors"
	"net/http"
	"os"
	"strings"
)

// Handler serves stored snapshots at /api/v1/snapshots/{filename}.
type Handler struct {
	store *Store
}

// NewHandler constructs a handler.
func NewHandler(store *Store) (*Handler, error) {
	if store == nil {
		return nil, errors.New("snapshots handler: nil store")
	}
	return &Handler{store: store}, nil
}

// ServeHTTP handles snapshot downloads.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/api/v1/snapshots/")
	if filename == "" || strings.Contains(filename, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := h.store.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "snapshot read failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}
