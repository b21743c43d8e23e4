package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Actor identifies who performed an install, for the audit trail.
type Actor struct {
	Hostname string `json:"hostname"`
	Username string `json:"username"`
}

// Record describes one completed install: package identity, when and by whom
// it was applied, and the checksum of every placed file keyed by destination.
type Record struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Release     string            `json:"release,omitempty"`
	InstalledAt time.Time         `json:"installed_at"`
	Actor       *Actor            `json:"actor,omitempty"`
	Files       map[string]string `json:"files"`
}

// Repository defines persistence operations for the install record.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Remove(ctx context.Context) error
}

// FileRepository persists the install record to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON record.
	path string
	// mu protects concurrent access to the record file.
	mu sync.Mutex
}

// ErrNotFound is returned when no install record exists yet.
var ErrNotFound = errors.New("install record not found")

// recordPermissions keeps install records world-readable.
const recordPermissions = 0o644

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the install record from disk.
func (r *FileRepository) Load(_ context.Context) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read install record: %w", err)
	}

	var record Record
	if err = json.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode install record: %w", err)
	}

	return &record, nil
}

// Save writes the install record to disk.
func (r *FileRepository) Save(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode install record: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, recordPermissions); err != nil {
		return fmt.Errorf("write install record: %w", err)
	}

	return nil
}

// Remove deletes the install record; a missing record is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove install record: %w", err)
	}

	return nil
}
