package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phishshield/shield_agent/internal/storage"
	"github.com/phishshield/shield_agent/internal/types"
)

// MaxEntries bounds the verdict log. Appends beyond the bound drop the
// oldest entry.
const MaxEntries = 10

// storeKey is the single fixed key the serialized sequence lives under.
const storeKey = "history"

// Entry is one recorded verdict. Entries are immutable after creation
// except for the Reported flag, which MarkReported flips.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	IsPhishing bool      `json:"is_phishing"`
	Timestamp  time.Time `json:"timestamp"`
	Reported   bool      `json:"reported"`
}

// NewEntry builds an entry with a fresh ID and timestamp.
func NewEntry(url string, isPhishing bool) Entry {
	return Entry{
		ID:         uuid.NewString(),
		URL:        url,
		IsPhishing: isPhishing,
		Timestamp:  time.Now().UTC(),
		Reported:   false,
	}
}

// Log is a bounded, most-recent-first record of past verdicts persisted
// through a KV store. Each operation reads the full sequence, modifies it,
// and writes it back; no lock spans the read-write pair, so two concurrent
// appends can interleave and one write can be lost. Verdict history is
// advisory and the next append restores a consistent sequence.
type Log struct {
	kv storage.KV
}

// NewLog wraps a KV store.
func NewLog(kv storage.KV) *Log {
	return &Log{kv: kv}
}

func (l *Log) load(ctx context.Context) ([]Entry, error) {
	raw, ok, err := l.kv.Get(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	return entries, nil
}

func (l *Log) save(ctx context.Context, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := l.kv.Set(ctx, storeKey, raw); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Append inserts the entry at the front and truncates to MaxEntries.
func (l *Log) Append(ctx context.Context, e Entry) error {
	entries, err := l.load(ctx)
	if err != nil {
		return err
	}

	entries = append([]Entry{e}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	return l.save(ctx, entries)
}

// List returns the recorded entries, most recent first. A log that has
// never been written returns an empty slice.
func (l *Log) List(ctx context.Context) ([]Entry, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// MarkReported flips the Reported flag on the entry with the given ID.
func (l *Log) MarkReported(ctx context.Context, id string) (Entry, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return Entry{}, err
	}

	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		entries[i].Reported = true
		if err := l.save(ctx, entries); err != nil {
			return Entry{}, err
		}
		return entries[i], nil
	}

	return Entry{}, types.NewError(types.CodeNotFound, fmt.Sprintf("history entry not found: %s", id), nil)
}

// FindByURL returns the most recent entry for the exact URL.
func (l *Log) FindByURL(ctx context.Context, url string) (Entry, bool, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.URL == url {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Clear wipes the recorded sequence.
func (l *Log) Clear(ctx context.Context) error {
	return l.save(ctx, []Entry{})
}
