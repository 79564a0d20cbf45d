package overlay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hooks are the outward edges of the state machine: closing the tab itself
// and opening the external report flow. Either may be nil.
type Hooks struct {
	CloseTab func(ctx context.Context, tabID string)
	Report   func(ctx context.Context, tabID, url string)
}

// activation is one visible banner. Each new activation gets a fresh
// generation so a timer left over from a replaced banner can never clear
// its successor.
type activation struct {
	state   State
	payload Payload
	gen     uint64
	timer   *time.Timer
}

// Controller is the per-tab banner state machine. Entering any visible
// state force-replaces whatever banner exists, in any state. Warning is
// persistent until a user action; SamePage and Safe auto-dismiss after the
// configured TTL, each activation on its own fresh timer.
type Controller struct {
	port  Port
	ttl   time.Duration
	hooks Hooks

	mu     sync.Mutex
	gen    uint64
	active map[string]*activation
}

// NewController builds a controller over the given rendering port. ttl is
// the auto-dismiss window for SamePage and Safe.
func NewController(port Port, ttl time.Duration, hooks Hooks) *Controller {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Controller{
		port:   port,
		ttl:    ttl,
		hooks:  hooks,
		active: make(map[string]*activation),
	}
}

// Show transitions the tab's surface into the given visible state. Any
// existing banner is replaced and its timer invalidated.
func (c *Controller) Show(ctx context.Context, tabID string, state State, p Payload) error {
	if state == StateEmpty {
		return c.Dismiss(ctx, tabID)
	}

	c.mu.Lock()
	if prev, ok := c.active[tabID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	c.gen++
	act := &activation{state: state, payload: p, gen: c.gen}
	c.active[tabID] = act

	if state == StateSamePage || state == StateSafe {
		gen := act.gen
		act.timer = time.AfterFunc(c.ttl, func() {
			c.expire(tabID, gen)
		})
	}
	c.mu.Unlock()

	if err := c.port.Show(ctx, tabID, state, p); err != nil {
		c.mu.Lock()
		if cur, ok := c.active[tabID]; ok && cur.gen == act.gen {
			if cur.timer != nil {
				cur.timer.Stop()
			}
			delete(c.active, tabID)
		}
		c.mu.Unlock()
		return err
	}

	slog.Debug("overlay shown", "tab_id", tabID, "state", state.String(), "url", p.URL)
	return nil
}

// expire is the auto-dismiss path. A stale generation means the banner was
// already replaced or dismissed; the timer then does nothing.
func (c *Controller) expire(tabID string, gen uint64) {
	c.mu.Lock()
	cur, ok := c.active[tabID]
	if !ok || cur.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.active, tabID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.port.Clear(ctx, tabID); err != nil {
		slog.Debug("overlay auto-dismiss clear failed", "tab_id", tabID, "error", err)
	}
}

// Dismiss returns the tab's surface to Empty.
func (c *Controller) Dismiss(ctx context.Context, tabID string) error {
	c.mu.Lock()
	cur, ok := c.active[tabID]
	if ok {
		if cur.timer != nil {
			cur.timer.Stop()
		}
		delete(c.active, tabID)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.port.Clear(ctx, tabID)
}

// Drop forgets the tab's surface without touching the page, for tabs that
// no longer exist.
func (c *Controller) Drop(tabID string) {
	c.mu.Lock()
	if cur, ok := c.active[tabID]; ok {
		if cur.timer != nil {
			cur.timer.Stop()
		}
		delete(c.active, tabID)
	}
	c.mu.Unlock()
}

// HandleAction applies a user action from the banner. close dismisses,
// closeTab hands the tab to the CloseTab hook, report hands the banner's
// URL to the Report hook and leaves the banner up.
func (c *Controller) HandleAction(ctx context.Context, tabID, action string) {
	switch action {
	case ActionClose:
		if err := c.Dismiss(ctx, tabID); err != nil {
			slog.Debug("overlay close failed", "tab_id", tabID, "error", err)
		}
	case ActionCloseTab:
		c.Drop(tabID)
		if c.hooks.CloseTab != nil {
			c.hooks.CloseTab(ctx, tabID)
		}
	case ActionReport:
		c.mu.Lock()
		cur, ok := c.active[tabID]
		var url string
		if ok {
			url = cur.payload.URL
		}
		c.mu.Unlock()
		if !ok {
			slog.Debug("report action with no active overlay", "tab_id", tabID)
			return
		}
		if c.hooks.Report != nil {
			c.hooks.Report(ctx, tabID, url)
		}
	default:
		slog.Warn("unknown overlay action", "tab_id", tabID, "action", action)
	}
}

// StateOf returns the tab's current surface state.
func (c *Controller) StateOf(tabID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[tabID]; ok {
		return cur.state
	}
	return StateEmpty
}
