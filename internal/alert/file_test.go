package alert

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testAlert(pair, threshold string) Alert {
	a := New(pair, ConditionGreaterThan, decimal.RequireFromString(threshold), []Channel{ChannelEmail})
	a.Email = "trader@example.com"
	return a
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")

	s, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	alerts, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected empty store, got %d alerts", len(alerts))
	}
}

func TestFileStoreEmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	alerts, _ := s.List(context.Background())
	if len(alerts) != 0 {
		t.Fatalf("expected empty store, got %d alerts", len(alerts))
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated json", `[{"id": "a1", "pair":`},
		{"not an array", `{"a1": {"pair": "EUR/USD"}}`},
		{"missing id", `[{"pair": "EUR/USD", "condition": "EQUAL", "threshold": "1.1", "channels": ["EMAIL"], "active": true, "last_trigger_state": false, "created_at": "2026-01-01T00:00:00Z"}]`},
		{"duplicate id", `[
			{"id": "a1", "pair": "EUR/USD", "condition": "EQUAL", "threshold": "1.1", "channels": ["EMAIL"], "active": true, "last_trigger_state": false, "created_at": "2026-01-01T00:00:00Z"},
			{"id": "a1", "pair": "GBP/USD", "condition": "EQUAL", "threshold": "1.3", "channels": ["EMAIL"], "active": true, "last_trigger_state": false, "created_at": "2026-01-01T00:00:00Z"}
		]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "alerts.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := OpenFile(path, zerolog.Nop())
			if err == nil {
				t.Fatal("expected error for corrupt file, got nil")
			}
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.json")

	s, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	first, err := s.Create(ctx, testAlert("EUR/USD", "1.2000"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := s.Create(ctx, testAlert("USD/JPY", "150.00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Close()

	reopened, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	alerts, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts after reopen, got %d", len(alerts))
	}
	if alerts[0].ID != first.ID || alerts[1].ID != second.ID {
		t.Errorf("creation order not preserved: got %s, %s", alerts[0].ID, alerts[1].ID)
	}
	if !alerts[0].Threshold.Equal(first.Threshold) {
		t.Errorf("threshold changed across reopen: got %s, want %s", alerts[0].Threshold, first.Threshold)
	}
	if !alerts[0].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed across reopen: got %s, want %s", alerts[0].CreatedAt, first.CreatedAt)
	}
}

func TestFileStoreCRUD(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.json")

	s, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	created, err := s.Create(ctx, testAlert("EUR/USD", "1.2000"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Pair != "EUR/USD" {
		t.Errorf("Get returned pair %q", got.Pair)
	}

	got.Active = false
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, _ := s.Get(ctx, created.ID)
	if updated.Active {
		t.Error("Update did not persist Active=false")
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := s.Update(ctx, created); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update of missing alert: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete of missing alert: expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.json")

	s, err := OpenFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	a, _ := s.Create(ctx, testAlert("EUR/USD", "1.2000"))
	a.Message = "updated"
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Create(ctx, testAlert("GBP/USD", "1.3000")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "alerts.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only alerts.json in %s, got %v", dir, names)
	}

	// The file on disk is always a well-formed JSON array.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var alerts []Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert on disk, got %d", len(alerts))
	}
}
