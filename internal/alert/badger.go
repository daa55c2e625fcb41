package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BadgerStore keeps the alert set in an embedded Badger database with
// synchronous writes. It honors the same contract as FileStore: mutations
// are durable before they return.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

var _ Store = (*BadgerStore)(nil)

var alertKeyPrefix = []byte("alert/")

func alertKey(id string) []byte {
	return append(append([]byte{}, alertKeyPrefix...), id...)
}

// OpenBadger opens (or creates) the alert database under dir.
func OpenBadger(dir string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open alert database %s: %w", dir, err)
	}

	s := &BadgerStore{
		db:     db,
		logger: logger.With().Str("component", "alert_store").Logger(),
	}

	// Decode every record up front so corruption fails the open, not a
	// later evaluation cycle.
	alerts, err := s.List(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Str("dir", dir).Int("alerts", len(alerts)).Msg("alert store loaded")
	return s, nil
}

// Create stores a new alert, assigning an ID and creation time when unset.
func (s *BadgerStore) Create(ctx context.Context, a Alert) (Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return Alert{}, fmt.Errorf("encode alert: %w", err)
	}

	key := alertKey(a.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("alert %s already exists", a.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, payload)
	})
	if err != nil {
		return Alert{}, fmt.Errorf("store alert: %w", err)
	}
	return a, nil
}

// Get returns the alert with the given ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (Alert, error) {
	var a Alert
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(alertKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &a); err != nil {
				return fmt.Errorf("decode alert %s: %w: %v", id, ErrCorrupt, err)
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Alert{}, ErrNotFound
	}
	if err != nil {
		return Alert{}, err
	}
	return a, nil
}

// List returns all alerts in creation order.
func (s *BadgerStore) List(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = alertKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var a Alert
				if err := json.Unmarshal(val, &a); err != nil {
					return fmt.Errorf("decode alert %s: %w: %v", it.Item().Key(), ErrCorrupt, err)
				}
				alerts = append(alerts, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// Update replaces the stored alert with the same ID.
func (s *BadgerStore) Update(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	key := alertKey(a.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Set(key, payload)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return nil
}

// Delete removes the alert with the given ID.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	key := alertKey(id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
