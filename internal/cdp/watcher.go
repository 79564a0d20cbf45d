// Package cdp attaches to a running Chromium over the DevTools protocol,
// reports navigation and tab-activation events, and renders the on-page
// banners by evaluating JavaScript in tab sessions.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/phishshield/shield_agent/internal/types"
)

// bindingName is the page-side function the bootstrap script and banner
// buttons call to reach the agent.
const bindingName = "__shieldNotify"

// bindingMessage is the payload shape delivered through the binding.
type bindingMessage struct {
	Kind   string `json:"kind"`
	Action string `json:"action,omitempty"`
}

// Watcher manages CDP connections to browser tabs. A rescan loop discovers
// tabs opened after startup and detects closed ones.
type Watcher struct {
	cdpURL   string
	rescan   time.Duration
	handlers Handlers

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabsMu      sync.RWMutex
	tabs        map[target.ID]*TabContext
	activeTabID target.ID

	evalTimeout time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
}

// TabContext is one attached tab.
type TabContext struct {
	ID  target.ID
	ctx context.Context

	cancel context.CancelFunc

	mu            sync.Mutex
	url           string
	mainFrameID   cdp.FrameID
	reloadPending bool
}

// NewWatcher creates a watcher for the CDP endpoint at cdpURL.
func NewWatcher(cdpURL string, rescan, evalTimeout time.Duration, handlers Handlers) *Watcher {
	if rescan <= 0 {
		rescan = 2 * time.Second
	}
	if evalTimeout <= 0 {
		evalTimeout = 5 * time.Second
	}
	return &Watcher{
		cdpURL:      cdpURL,
		rescan:      rescan,
		handlers:    handlers,
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*TabContext),
		done:        make(chan struct{}),
	}
}

// Connect reaches the browser, attaches to every open page tab, and starts
// the rescan loop.
func (w *Watcher) Connect(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", w.cdpURL)

	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(context.Background(), w.cdpURL)
	w.browserCtx, w.browserCancel = chromedp.NewContext(w.allocCtx)

	targets, err := chromedp.Targets(w.browserCtx)
	if err != nil {
		w.Close()
		return types.NewError(types.CodeCDPUnavailable, "failed to connect to browser", err)
	}

	attached := 0
	for _, t := range targets {
		if !isWatchablePage(t) {
			continue
		}
		if err := w.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("failed to attach to tab", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
			continue
		}
		attached++
	}

	slog.Info("attached to tabs", "count", attached, "targets_seen", len(targets))

	w.wg.Add(1)
	go w.rescanLoop()

	return nil
}

func isWatchablePage(t *target.Info) bool {
	if t.Type != "page" {
		return false
	}
	// Devtools and extension surfaces are not user tabs.
	return !strings.HasPrefix(t.URL, "devtools://") && !strings.HasPrefix(t.URL, "chrome-extension://")
}

func (w *Watcher) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(w.browserCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, ctx: tabCtx, cancel: tabCancel, url: url}

	w.tabsMu.Lock()
	w.tabs[targetID] = tab
	if w.activeTabID == "" {
		w.activeTabID = targetID
	}
	w.tabsMu.Unlock()

	chromedp.ListenTarget(tabCtx, w.createEventHandler(tab))

	err := chromedp.Run(tabCtx,
		page.Enable(),
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(jsBootstrap).Do(ctx)
			return err
		}),
		chromedp.Evaluate(jsBootstrap, nil),
	)
	if err != nil {
		tabCancel()
		w.tabsMu.Lock()
		delete(w.tabs, targetID)
		if w.activeTabID == targetID {
			w.activeTabID = ""
		}
		w.tabsMu.Unlock()
		return fmt.Errorf("failed to prepare tab session: %w", err)
	}

	// The bootstrap only reports future visibility changes; ask once so an
	// already-visible tab becomes the active one.
	var visibility string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate("document.visibilityState", &visibility)); err == nil && visibility == "visible" {
		w.markActive(targetID)
	}

	slog.Info("attached to tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

func (w *Watcher) createEventHandler(tab *TabContext) func(ev interface{}) {
	tabID := string(tab.ID)
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameRequestedNavigation:
			tab.mu.Lock()
			if tab.mainFrameID == "" || e.FrameID == tab.mainFrameID {
				tab.reloadPending = e.Reason == page.ClientNavigationReasonReload
			}
			tab.mu.Unlock()
		case *page.EventFrameNavigated:
			if e.Frame.ParentID != "" {
				return
			}
			tab.mu.Lock()
			tab.mainFrameID = e.Frame.ID
			tab.url = e.Frame.URL
			isReload := tab.reloadPending
			tab.reloadPending = false
			tab.mu.Unlock()

			slog.Debug("tab navigated (full)", "tab_id", tabID, "url", truncateURL(e.Frame.URL), "is_reload", isReload)
			if w.handlers.OnNavigated != nil {
				w.handlers.OnNavigated(NavigationEvent{TabID: tabID, URL: e.Frame.URL, IsReload: isReload})
			}
		case *page.EventNavigatedWithinDocument:
			tab.mu.Lock()
			tab.url = e.URL
			tab.reloadPending = false
			tab.mu.Unlock()

			slog.Debug("tab navigated (spa)", "tab_id", tabID, "url", truncateURL(e.URL))
			if w.handlers.OnNavigated != nil {
				w.handlers.OnNavigated(NavigationEvent{TabID: tabID, URL: e.URL, IsReload: false})
			}
		case *runtime.EventBindingCalled:
			if e.Name != bindingName {
				return
			}
			var msg bindingMessage
			if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
				slog.Debug("unparseable binding payload", "tab_id", tabID, "error", err)
				return
			}
			switch msg.Kind {
			case "activated":
				w.markActive(tab.ID)
				tab.mu.Lock()
				url := tab.url
				tab.mu.Unlock()
				if w.handlers.OnActivated != nil {
					w.handlers.OnActivated(ActivationEvent{TabID: tabID, URL: url})
				}
			case "action":
				slog.Debug("banner action", "tab_id", tabID, "action", msg.Action)
				if w.handlers.OnAction != nil {
					w.handlers.OnAction(ActionEvent{TabID: tabID, Action: msg.Action})
				}
			default:
				slog.Debug("unknown binding message kind", "tab_id", tabID, "kind", msg.Kind)
			}
		}
	}
}

func (w *Watcher) markActive(id target.ID) {
	w.tabsMu.Lock()
	w.activeTabID = id
	w.tabsMu.Unlock()
}

// rescanLoop keeps the attached-tab set in sync with the browser.
func (w *Watcher) rescanLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.rescanOnce()
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) rescanOnce() {
	targets, err := chromedp.Targets(w.browserCtx)
	if err != nil {
		slog.Warn("tab rescan failed", "error", err)
		return
	}

	current := make(map[target.ID]*target.Info, len(targets))
	for _, t := range targets {
		if isWatchablePage(t) {
			current[t.TargetID] = t
		}
	}

	// New tabs first.
	for id, t := range current {
		w.tabsMu.RLock()
		_, known := w.tabs[id]
		w.tabsMu.RUnlock()
		if known {
			continue
		}
		if err := w.attachToTab(id, t.URL); err != nil {
			slog.Warn("failed to attach to new tab", "target_id", id, "error", err)
		}
	}

	// Then closed ones.
	w.tabsMu.Lock()
	var closed []*TabContext
	for id, tab := range w.tabs {
		if _, ok := current[id]; ok {
			continue
		}
		closed = append(closed, tab)
		delete(w.tabs, id)
		if w.activeTabID == id {
			w.activeTabID = ""
		}
	}
	w.tabsMu.Unlock()

	for _, tab := range closed {
		tab.cancel()
		slog.Info("tab closed", "target_id", tab.ID)
		if w.handlers.OnTabClosed != nil {
			w.handlers.OnTabClosed(string(tab.ID))
		}
	}
}

// ActiveTab returns the currently visible tab and its last-known URL.
func (w *Watcher) ActiveTab() (string, string, bool) {
	w.tabsMu.RLock()
	id := w.activeTabID
	tab, ok := w.tabs[id]
	w.tabsMu.RUnlock()

	if id == "" || !ok {
		return "", "", false
	}
	tab.mu.Lock()
	url := tab.url
	tab.mu.Unlock()
	return string(id), url, true
}

// TabCount returns the number of attached tabs.
func (w *Watcher) TabCount() int {
	w.tabsMu.RLock()
	defer w.tabsMu.RUnlock()
	return len(w.tabs)
}

// Connected reports whether the browser endpoint is reachable.
func (w *Watcher) Connected() bool {
	if w.browserCtx == nil {
		return false
	}
	_, err := chromedp.Targets(w.browserCtx)
	return err == nil
}

func (w *Watcher) tabContext(tabID string) (*TabContext, error) {
	w.tabsMu.RLock()
	tab, ok := w.tabs[target.ID(tabID)]
	w.tabsMu.RUnlock()
	if !ok {
		return nil, types.NewError(types.CodeTabNotFound, fmt.Sprintf("tab not attached: %s", tabID), nil)
	}
	return tab, nil
}

// CloseTab closes the browser tab itself, running beforeunload hooks.
func (w *Watcher) CloseTab(ctx context.Context, tabID string) error {
	tab, err := w.tabContext(tabID)
	if err != nil {
		return err
	}

	closeCtx, cancel := context.WithTimeout(tab.ctx, w.evalTimeout)
	defer cancel()
	if err := chromedp.Run(closeCtx, page.Close()); err != nil {
		return types.NewError(types.CodeEvalFailure, "close tab failed", err)
	}
	return nil
}

// OpenURL opens url in a new tab from the given tab's page context. The
// synthetic user gesture keeps popup blocking out of the way.
func (w *Watcher) OpenURL(ctx context.Context, tabID, url string) error {
	js := buildOpenURLJS(url)
	_, err := w.eval(ctx, tabID, js, true)
	return err
}

// CaptureScreenshot captures the tab's viewport as PNG.
func (w *Watcher) CaptureScreenshot(ctx context.Context, tabID string) ([]byte, error) {
	tab, err := w.tabContext(tabID)
	if err != nil {
		return nil, err
	}

	shotCtx, cancel := context.WithTimeout(tab.ctx, 3*w.evalTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, types.NewError(types.CodeEvalFailure, "capture screenshot failed", err)
	}
	return buf, nil
}

// Close shuts down the rescan loop and detaches from the browser.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.wg.Wait()

	w.tabsMu.Lock()
	for _, tab := range w.tabs {
		tab.cancel()
	}
	w.tabs = make(map[target.ID]*TabContext)
	w.activeTabID = ""
	w.tabsMu.Unlock()

	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}

	slog.Info("cdp watcher closed")
	return nil
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
