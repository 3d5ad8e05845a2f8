package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Storage persists small string values with an expiry, the way a browser
// cookie jar does.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string, ttl time.Duration) error
	Remove(key string) error
}

// Locker is implemented by storage shared between processes. Lock blocks
// until the caller holds the storage exclusively or ctx is done.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

type entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func newEntry(value string, ttl time.Duration, now time.Time) entry {
	e := entry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl).UTC()
	}
	return e
}

// MemoryStorage keeps values for the life of the process.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]entry), now: time.Now}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.Value, true, nil
}

func (s *MemoryStorage) Set(key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = newEntry(value, ttl, s.now())
	return nil
}

func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// FileStorage keeps values in a JSON file so they survive restarts. Writes
// go to a temp file that is renamed over the original. Lock takes an
// advisory lock on a sibling ".lock" file.
type FileStorage struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path, now: time.Now}
}

func (s *FileStorage) Path() string { return s.path }

const lockRetryDelay = 10 * time.Millisecond

func (s *FileStorage) Lock(ctx context.Context) (func(), error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", s.path)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *FileStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}
	e, ok := entries[key]
	if !ok || e.expired(s.now()) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (s *FileStorage) Set(key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[key] = newEntry(value, ttl, s.now())
	return s.save(entries)
}

func (s *FileStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

// load must be called with mu held. Expired entries are dropped.
func (s *FileStorage) load() (map[string]entry, error) {
	entries := make(map[string]entry)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	now := s.now()
	for k, e := range entries {
		if e.expired(now) {
			delete(entries, k)
		}
	}
	return entries, nil
}

// save must be called with mu held.
func (s *FileStorage) save(entries map[string]entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
