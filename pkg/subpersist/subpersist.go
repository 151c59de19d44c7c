// Package subpersist persists a subscription.Store and the fetch queue's
// last-seen submission ids to a single JSON file, written atomically via
// a temp sidecar plus rename so a crash mid-write never corrupts the
// previous good copy.
package subpersist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subscription"
)

// document is the current on-disk shape: subscriptions and blocklists
// grouped by destination, plus the fetch queue's last-seen ids.
type document struct {
	Destinations map[string]destinationRecord `json:"destinations"`
	LatestIDs    []query.SubmissionID         `json:"latest_ids"`
}

type destinationRecord struct {
	Subscriptions []subscription.Record `json:"subscriptions"`
	Blocklist     []blocklistRecord     `json:"blocklist"`
}

type blocklistRecord struct {
	Query string `json:"query"`
}

// legacyRecord is the older flat, per-subscription shape: one record per
// line item with the destination inlined rather than grouped.
type legacyRecord struct {
	Query        string  `json:"query"`
	Destination  int64   `json:"destination"`
	LatestUpdate *string `json:"latest_update"`
}

// Store persists to, and loads from, a single JSON file at path.
type Store struct {
	path string
}

// NewStore builds a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file this Store reads from and writes to.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted file, if any, and rebuilds a subscription.Store
// plus the previously-seen submission ids. A missing file is not an
// error: it returns an empty store and no ids, matching a first run.
func (s *Store) Load(ctx context.Context) (*subscription.Store, []query.SubmissionID, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return subscription.NewStore(), nil, nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return subscription.NewStore(), nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var legacy []legacyRecord
		if err := json.Unmarshal([]byte(trimmed), &legacy); err != nil {
			return nil, nil, fmt.Errorf("parse legacy %s: %w", s.path, err)
		}
		store, err := buildFromLegacy(legacy)
		return store, nil, err
	}

	var doc document
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	store, err := buildFromDocument(doc)
	if err != nil {
		return nil, nil, err
	}
	return store, doc.LatestIDs, nil
}

func buildFromLegacy(records []legacyRecord) (*subscription.Store, error) {
	store := subscription.NewStore()
	for _, r := range records {
		sub, err := subscription.FromRecord(r.Query, subscription.Destination(r.Destination), r.LatestUpdate, false)
		if err != nil {
			return nil, fmt.Errorf("legacy record %q: %w", r.Query, err)
		}
		if err := store.AddSubscription(sub); err != nil {
			return nil, fmt.Errorf("legacy record %q: %w", r.Query, err)
		}
	}
	return store, nil
}

func buildFromDocument(doc document) (*subscription.Store, error) {
	store := subscription.NewStore()
	for rawDest, rec := range doc.Destinations {
		destID, err := strconv.ParseInt(rawDest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("destination id %q: %w", rawDest, err)
		}
		destination := subscription.Destination(destID)

		for _, subRec := range rec.Subscriptions {
			sub, err := subscription.FromRecord(subRec.Query, destination, subRec.LatestUpdate, subRec.Paused)
			if err != nil {
				return nil, fmt.Errorf("destination %d record %q: %w", destID, subRec.Query, err)
			}
			if err := store.AddSubscription(sub); err != nil {
				return nil, fmt.Errorf("destination %d record %q: %w", destID, subRec.Query, err)
			}
		}

		for _, entry := range rec.Blocklist {
			if err := store.AddToBlocklist(destination, entry.Query); err != nil {
				return nil, fmt.Errorf("destination %d blocklist %q: %w", destID, entry.Query, err)
			}
		}
	}
	return store, nil
}

// Save renders store and latestIDs to the current document shape and
// writes them atomically: a temp file in the same directory is written
// and fsynced, then renamed over the destination path.
func (s *Store) Save(ctx context.Context, store *subscription.Store, latestIDs []query.SubmissionID) error {
	doc := document{
		Destinations: make(map[string]destinationRecord),
		LatestIDs:    latestIDs,
	}

	for _, dest := range store.Destinations() {
		rec := destinationRecord{}
		for _, sub := range store.ListByDestination(dest) {
			rec.Subscriptions = append(rec.Subscriptions, sub.ToRecord())
		}
		for _, q := range store.ListBlocklist(dest) {
			rec.Blocklist = append(rec.Blocklist, blocklistRecord{Query: q})
		}
		doc.Destinations[strconv.FormatInt(int64(dest), 10)] = rec
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriptions: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp subscriptions file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp subscriptions file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp subscriptions file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename subscriptions file: %w", err)
	}
	return nil
}
