package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

// snapshot is the on-disk form of a FileStore.
type snapshot struct {
	AdminConfig *settings.AdminConfig `json:"admin_config,omitempty"`
	Trips       []trip.Record         `json:"trips"`
	Users       []user.User           `json:"users,omitempty"`
	SavedAt     time.Time             `json:"saved_at"`
}

// FileStore is a MemoryStore that rewrites a JSON snapshot on every
// change. It suits single-instance deployments without a database.
type FileStore struct {
	*MemoryStore
	path string
}

// NewFileStore loads the snapshot at path, if any.
func NewFileStore(path string) (*FileStore, error) {
	f := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	s, err := f.read()
	if err != nil {
		return nil, err
	}
	if s != nil {
		f.restore(*s)
	}
	f.onChange = f.write
	return f, nil
}

func (f *FileStore) read() (*snapshot, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", f.path, err)
	}
	return &s, nil
}

func (f *FileStore) write(s snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	s.SavedAt = time.Now().UTC()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	// the admin credential lives in this file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
