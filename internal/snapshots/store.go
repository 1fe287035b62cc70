package snapshots

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
)

const timestampLayout = "2006-01-02T15-04-05"

// Store writes evidence frames to a directory and serves them back by
// filename.
type Store struct {
	dir string
}

// NewStore constructs a snapshot store, creating the directory if
// needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("snapshots: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Save writes a frame and returns its filename. The filename embeds
// the room, the alert type and the capture time.
func (s *Store) Save(roomID string, alertType alerts.AlertType, frame []byte, at time.Time) (string, error) {
	if s == nil {
		return "", errors.New("snapshots: nil store")
	}
	if len(frame) == 0 {
		return "", errors.New("snapshots: empty frame")
	}
	if roomID == "" {
		return "", errors.New("snapshots: empty room id")
	}
	if at.IsZero() {
		at = time.Now()
	}

	filename := sanitize(roomID) + "_" + sanitize(string(alertType)) + "_" + at.UTC().Format(timestampLayout) + ".jpg"
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

// Open returns the stored frame for a previously returned filename.
// Path traversal in the name is rejected.
func (s *Store) Open(filename string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("snapshots: nil store")
	}
	if filename == "" || filename != filepath.Base(filename) {
		return nil, errors.New("snapshots: invalid filename")
	}
	return os.ReadFile(filepath.Join(s.dir, filename))
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
