package alert

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FileStore persists the alert set as an ordered JSON array in a single
// file. Every mutation rewrites the whole set through a temp file in the
// same directory followed by an atomic rename, so a crash mid-write leaves
// the previous file intact.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	alerts []Alert
	index  map[string]int
}

var _ Store = (*FileStore)(nil)

// OpenFile loads the alert set from path. A missing file is an empty store;
// an unparseable one is an error wrapping ErrCorrupt.
func OpenFile(path string, logger zerolog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: logger.With().Str("component", "alert_store").Logger(),
		alerts: []Alert{},
		index:  map[string]int{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger.Info().Str("path", path).Int("alerts", len(s.alerts)).Msg("alert store loaded")
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read alert file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var alerts []Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return fmt.Errorf("parse alert file %s: %w: %v", s.path, ErrCorrupt, err)
	}

	index := make(map[string]int, len(alerts))
	for i, a := range alerts {
		if a.ID == "" {
			return fmt.Errorf("alert file %s: entry %d has no id: %w", s.path, i, ErrCorrupt)
		}
		if _, dup := index[a.ID]; dup {
			return fmt.Errorf("alert file %s: duplicate id %s: %w", s.path, a.ID, ErrCorrupt)
		}
		index[a.ID] = i
	}

	s.alerts = alerts
	s.index = index
	return nil
}

// persistLocked writes the full set atomically. Callers hold s.mu.
func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.alerts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".alerts-*.json")
	if err != nil {
		return fmt.Errorf("create temp alert file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp alert file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync temp alert file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp alert file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace alert file: %w", err)
	}
	return nil
}

// Create stores a new alert, assigning an ID and creation time when unset.
func (s *FileStore) Create(ctx context.Context, a Alert) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.index[a.ID]; exists {
		return Alert{}, fmt.Errorf("alert %s already exists", a.ID)
	}

	s.alerts = append(s.alerts, a)
	s.index[a.ID] = len(s.alerts) - 1
	if err := s.persistLocked(); err != nil {
		s.alerts = s.alerts[:len(s.alerts)-1]
		delete(s.index, a.ID)
		return Alert{}, err
	}
	return a, nil
}

// Get returns the alert with the given ID.
func (s *FileStore) Get(ctx context.Context, id string) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return s.alerts[idx], nil
}

// List returns all alerts in creation order.
func (s *FileStore) List(ctx context.Context) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

// Update replaces the stored alert with the same ID.
func (s *FileStore) Update(ctx context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[a.ID]
	if !ok {
		return ErrNotFound
	}

	previous := s.alerts[idx]
	s.alerts[idx] = a
	if err := s.persistLocked(); err != nil {
		s.alerts[idx] = previous
		return err
	}
	return nil
}

// Delete removes the alert with the given ID.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}

	previous := s.alerts
	next := make([]Alert, 0, len(s.alerts)-1)
	next = append(next, s.alerts[:idx]...)
	next = append(next, s.alerts[idx+1:]...)
	s.alerts = next
	s.reindexLocked()

	if err := s.persistLocked(); err != nil {
		s.alerts = previous
		s.reindexLocked()
		return err
	}
	return nil
}

// Close is a no-op; the store holds no open handles between operations.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) reindexLocked() {
	index := make(map[string]int, len(s.alerts))
	for i, a := range s.alerts {
		index[a.ID] = i
	}
	s.index = index
}
