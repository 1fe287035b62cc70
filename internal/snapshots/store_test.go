package snapshots

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
)

func TestStoreSaveAndOpen(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	at := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	frame := []byte{0xff, 0xd8, 0xff}

	name, err := store.Save("8A", alerts.TypeMischief, frame, at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "8A_mischief_2026-02-11T12-00-00.jpg" {
		t.Fatalf("filename = %q", name)
	}

	data, err := store.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(data) != string(frame) {
		t.Fatalf("stored frame differs")
	}
}

func TestStoreSanitizesRoomID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	name, err := store.Save("../8A b", alerts.TypeLoudNoise, []byte{1}, time.Now())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(name, "___8A_b_loud_noise_") {
		t.Fatalf("filename = %q", name)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Open("../etc/passwd"); err == nil {
		t.Fatalf("expected error for traversal")
	}
	if _, err := store.Save("8A", alerts.TypeMischief, nil, time.Now()); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}

func TestHandlerServesSnapshot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	name, err := store.Save("8A", alerts.TypeEmptyClass, []byte{0xff, 0xd8}, time.Now())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	handler, err := NewHandler(store)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/"+name, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("content type = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/missing.jpg", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", resp.Code)
	}
}
