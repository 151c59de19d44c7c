package subpersist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subscription"
)

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	subs, ids, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(subs.Destinations()) != 0 {
		t.Fatalf("expected empty store, got %d destinations", len(subs.Destinations()))
	}
	if ids != nil {
		t.Fatalf("expected nil ids, got %v", ids)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	store := NewStore(path)

	original := subscription.NewStore()
	sub, err := subscription.New("cat and dog", subscription.Destination(42))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := original.AddSubscription(sub); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if err := original.AddToBlocklist(subscription.Destination(42), "nsfw"); err != nil {
		t.Fatalf("AddToBlocklist: %v", err)
	}

	ids := []query.SubmissionID{100, 200, 300}
	if err := store.Save(context.Background(), original, ids); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, loadedIDs, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	subs := loaded.ListByDestination(subscription.Destination(42))
	if len(subs) != 1 || subs[0].QueryStr != "cat and dog" {
		t.Fatalf("expected one round-tripped subscription, got %+v", subs)
	}
	if !loaded.Blocklist(subscription.Destination(42)).Has("nsfw") {
		t.Fatalf("expected blocklist entry to round-trip")
	}
	if len(loadedIDs) != 3 || loadedIDs[2] != 300 {
		t.Fatalf("expected latest ids to round-trip, got %v", loadedIDs)
	}
}

func TestSaveWritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	store := NewStore(path)

	if err := store.Save(context.Background(), subscription.NewStore(), nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Fatalf("expected no leftover temp files, found %q", e.Name())
		}
	}
}

func TestLoadAcceptsLegacyFlatRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	legacy := `[{"query":"cat","destination":7,"latest_update":null}]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewStore(path)
	loaded, ids, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected no latest ids from legacy shape, got %v", ids)
	}
	subs := loaded.ListByDestination(subscription.Destination(7))
	if len(subs) != 1 || subs[0].QueryStr != "cat" {
		t.Fatalf("expected legacy record to load, got %+v", subs)
	}
}
