// Package settings holds the global setting document shared by all jobs.
// The document is a JSON file edited from the management API; executors
// read values from the loaded snapshot.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the global setting file plus its last loaded snapshot.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot map[string]any
}

// New returns a Store for the file at path. Nothing is read until Reload
// or Get is called.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the setting file path.
func (s *Store) Path() string { return s.path }

// Get returns the raw file content. A missing file is created empty.
func (s *Store) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(s.path, nil, 0o644); err != nil {
			return "", fmt.Errorf("GlobalSettingJsonFilePath:[%s] access error:%w", s.path, err)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GlobalSettingJsonFilePath:[%s] access error:%w", s.path, err)
	}
	return string(data), nil
}

// Save validates raw as a JSON object, writes it indented with four spaces
// and reloads the snapshot.
func (s *Store) Save(raw string) error {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return core.NewValidationError("json invalid: empty body", nil)
	}
	var probe map[string]any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return core.NewValidationError("json invalid: "+err.Error(), nil)
	}
	if probe == nil {
		return core.NewValidationError("json invalid: setting must be a JSON object", nil)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "    "); err != nil {
		return core.NewValidationError("json invalid: "+err.Error(), nil)
	}
	if err := os.WriteFile(s.path, out.Bytes(), 0o644); err != nil {
		return core.NewStorageError("write "+s.path, err)
	}
	return s.Reload()
}

// Reload re-reads the file into the snapshot. An empty or missing file
// yields an empty snapshot.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.NewStorageError("read "+s.path, err)
	}

	snapshot := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return core.NewValidationError(fmt.Sprintf("setting file %s is not a JSON object: %v", s.path, err), nil)
		}
		if snapshot == nil {
			snapshot = map[string]any{}
		}
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	s.logger.Info("global setting loaded", "path", s.path, "keys", len(snapshot))
	return nil
}

// Value returns one top-level value of the loaded snapshot.
func (s *Store) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snapshot[key]
	return v, ok
}

// Snapshot returns a shallow copy of the loaded document.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}
