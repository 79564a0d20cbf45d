package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var keyRe = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// KV is the persistence port for small state collections. Values are opaque
// blobs read and written in full under a fixed key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

func validateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid store key: %q", key)
	}
	return nil
}

// fileEnvelope wraps a stored value with write metadata.
type fileEnvelope struct {
	Key       string          `json:"key"`
	UpdatedAt time.Time       `json:"updated_at"`
	Value     json.RawMessage `json:"value"`
}

// FileKV stores each key as a JSON file in a directory. Values must be
// valid JSON; the envelope embeds them raw. The mutex guards a single Get
// or Set; it deliberately does not serialize a caller's read-modify-write
// pair.
type FileKV struct {
	dir string
	mu  sync.RWMutex
}

// NewFileKV creates a FileKV and ensures the directory exists.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file kv: mkdir %s: %w", dir, err)
	}
	return &FileKV{dir: dir}, nil
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the stored value for key. The second return is false when the
// key has never been written.
func (s *FileKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("file kv: read %s: %w", key, err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("file kv: unmarshal %s: %w", key, err)
	}
	return env.Value, true, nil
}

// Set replaces the stored value for key in full.
func (s *FileKV) Set(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env := fileEnvelope{Key: key, UpdatedAt: time.Now().UTC(), Value: value}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("file kv: marshal %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file kv: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("file kv: rename %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileKV) Close() error { return nil }

var _ KV = (*FileKV)(nil)
