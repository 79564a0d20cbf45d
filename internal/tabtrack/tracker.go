package tabtrack

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// TabState is a tab's last-seen site. Overwritten whenever a classification
// is actually dispatched for the tab; same-page short-circuits leave it
// untouched.
type TabState struct {
	TabID   string    `json:"tab_id"`
	Domain  string    `json:"domain"`
	LastURL string    `json:"last_url"`
	SeenAt  time.Time `json:"seen_at"`
}

// Tracker remembers the last-seen site per tab. The mutex guards individual
// map operations; callers that check a state and later overwrite it do so
// without a transaction across the pair, and the periodic reset can wipe an
// entry between a caller's read and write. Last writer wins.
type Tracker struct {
	tabs map[string]TabState
	mu   sync.RWMutex
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{tabs: make(map[string]TabState)}
}

// Get returns the tracked state for a tab.
func (t *Tracker) Get(tabID string) (TabState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.tabs[tabID]
	return state, ok
}

// Set records the tab's current site.
func (t *Tracker) Set(tabID, domain, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs[tabID] = TabState{TabID: tabID, Domain: domain, LastURL: url, SeenAt: time.Now().UTC()}
}

// Remove drops a single tab, used when its target disappears.
func (t *Tracker) Remove(tabID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tabs, tabID)
}

// ClearAll wipes every tracked tab. The next navigation on any tab is then
// treated as a fresh site.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs = make(map[string]TabState)
}

// List returns a copy of all tracked states.
func (t *Tracker) List() []TabState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TabState, 0, len(t.tabs))
	for _, state := range t.tabs {
		out = append(out, state)
	}
	return out
}

// Len returns the number of tracked tabs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tabs)
}

// DomainOf extracts the host component used for same-site comparison. An
// unparseable URL degrades to the raw string rather than an error.
func DomainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
