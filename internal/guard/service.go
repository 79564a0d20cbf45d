// Package guard wires navigation tracking, debouncing, classification and
// the banner state machine into the check pipeline.
package guard

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phishshield/shield_agent/internal/classifier"
	"github.com/phishshield/shield_agent/internal/debounce"
	"github.com/phishshield/shield_agent/internal/evidence"
	"github.com/phishshield/shield_agent/internal/history"
	"github.com/phishshield/shield_agent/internal/notify"
	"github.com/phishshield/shield_agent/internal/overlay"
	"github.com/phishshield/shield_agent/internal/rules"
	"github.com/phishshield/shield_agent/internal/storage"
	"github.com/phishshield/shield_agent/internal/tabtrack"
	"github.com/phishshield/shield_agent/internal/types"
)

// Classifier is the verdict side of the pipeline.
type Classifier interface {
	Classify(ctx context.Context, rawURL string) (classifier.Verdict, error)
}

// Browser is what the pipeline needs from the tab session layer.
type Browser interface {
	ActiveTab() (tabID, url string, ok bool)
	CloseTab(ctx context.Context, tabID string) error
	OpenURL(ctx context.Context, tabID, url string) error
	CaptureScreenshot(ctx context.Context, tabID string) ([]byte, error)
}

// Options tune the pipeline.
type Options struct {
	// DebounceWindow is the quiet period before a navigation check runs.
	// One shared slot serves every tab: a navigation on any tab within the
	// window supersedes the pending check outright.
	DebounceWindow time.Duration

	// NoticeTTL is the auto-dismiss window for same-site and safe banners.
	NoticeTTL time.Duration

	// ReportURL is the external report flow opened by the banner's report
	// action. The flagged URL is appended as a query parameter.
	ReportURL string

	// CaptureEvidence enables screenshot capture on phishing verdicts.
	CaptureEvidence bool
}

// Deps are the pipeline's collaborators. Rules, Verdicts, Evidence and
// Notifier are optional.
type Deps struct {
	Browser     Browser
	Classifier  Classifier
	OverlayPort overlay.Port
	Tabs        *tabtrack.Tracker
	History     *history.Log
	Rules       *rules.Set
	Verdicts    *storage.VerdictWriter
	Evidence    *evidence.Store
	Notifier    *notify.Notifier
}

// Status is the live answer to a popup status query.
type Status struct {
	TabID      string `json:"tab_id"`
	URL        string `json:"url"`
	Domain     string `json:"domain"`
	IsPhishing bool   `json:"is_phishing"`
	Label      string `json:"label"`
}

// Service runs the navigation check pipeline.
type Service struct {
	opts    Options
	browser Browser
	cls     Classifier
	tabs    *tabtrack.Tracker
	history *history.Log
	overlay *overlay.Controller
	deb     *debounce.Debouncer
	rules   *rules.Set
	verdict *storage.VerdictWriter
	shots   *evidence.Store
	alerts  *notify.Notifier
	broker  *Broker
}

// NewService builds the pipeline. It owns the banner state machine and the
// shared debounce slot.
func NewService(opts Options, deps Deps) *Service {
	s := &Service{
		opts:    opts,
		browser: deps.Browser,
		cls:     deps.Classifier,
		tabs:    deps.Tabs,
		history: deps.History,
		rules:   deps.Rules,
		verdict: deps.Verdicts,
		shots:   deps.Evidence,
		alerts:  deps.Notifier,
		broker:  NewBroker(),
	}
	s.overlay = overlay.NewController(deps.OverlayPort, opts.NoticeTTL, overlay.Hooks{
		CloseTab: s.closeTabHook,
		Report:   s.reportHook,
	})
	s.deb = debounce.New(opts.DebounceWindow)
	return s
}

// Broker returns the live verdict feed.
func (s *Service) Broker() *Broker {
	return s.broker
}

// Overlay returns the banner state machine, for action routing and state
// inspection.
func (s *Service) Overlay() *overlay.Controller {
	return s.overlay
}

// OnNavigation schedules a check for a completed navigation. The shared
// debounce slot means a later event from any tab supersedes this one.
func (s *Service) OnNavigation(tabID, rawURL string, isReload bool) {
	s.deb.Trigger(func() {
		s.runCheck(tabID, rawURL, isReload)
	})
}

// OnActivation schedules a check for a tab the user switched to. Routed
// through the same shared slot as navigations.
func (s *Service) OnActivation(tabID, rawURL string) {
	s.deb.Trigger(func() {
		s.runCheck(tabID, rawURL, false)
	})
}

// OnTabClosed evicts the tab's tracked site and forgets its banner.
func (s *Service) OnTabClosed(tabID string) {
	s.tabs.Remove(tabID)
	s.overlay.Drop(tabID)
}

// OnOverlayAction routes a banner button press. Runs the action on its own
// goroutine; callers sit on browser event loops and must not block.
func (s *Service) OnOverlayAction(tabID, action string) {
	go s.overlay.HandleAction(context.Background(), tabID, action)
}

// skipCheck reports whether the URL is outside checking scope: empty, the
// blank placeholder, or a browser-internal scheme. An unparseable string is
// in scope; it degrades to a raw-string domain key.
func skipCheck(rawURL string) bool {
	if rawURL == "" || rawURL == "about:blank" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "", "http", "https":
		return false
	}
	return true
}

// runCheck is one debounced navigation check.
func (s *Service) runCheck(tabID, rawURL string, isReload bool) {
	ctx := context.Background()

	if skipCheck(rawURL) {
		return
	}

	domain := tabtrack.DomainOf(rawURL)
	if s.rules != nil && s.rules.Ignored(domain) {
		slog.Debug("domain on ignore list", "tab_id", tabID, "domain", domain)
		return
	}

	if state, ok := s.tabs.Get(tabID); ok && state.Domain == domain && !isReload {
		slog.Debug("same site, skipping classification", "tab_id", tabID, "domain", domain)
		if err := s.overlay.Show(ctx, tabID, overlay.StateSamePage, overlay.Payload{URL: rawURL}); err != nil {
			slog.Debug("same-site banner failed", "tab_id", tabID, "error", err)
		}
		return
	}

	s.tabs.Set(tabID, domain, rawURL)

	verdict, err := s.cls.Classify(ctx, rawURL)
	if err != nil {
		slog.Warn("classification failed, check aborted", "tab_id", tabID, "url", rawURL, "error", err)
		return
	}

	if err := s.history.Append(ctx, history.NewEntry(rawURL, verdict.Phishing)); err != nil {
		slog.Error("history append failed", "url", rawURL, "error", err)
	}

	state := overlay.StateSafe
	if verdict.Phishing {
		state = overlay.StateWarning
	}
	if err := s.overlay.Show(ctx, tabID, state, overlay.Payload{URL: rawURL, Label: verdict.Label}); err != nil {
		slog.Warn("banner failed", "tab_id", tabID, "state", state.String(), "error", err)
	}

	rec := types.VerdictRecord{
		Timestamp:  time.Now().UTC(),
		TabID:      tabID,
		URL:        rawURL,
		Domain:     domain,
		IsPhishing: verdict.Phishing,
		Label:      verdict.Label,
		Source:     types.SourceNavigation,
	}
	s.recordVerdict(rec)
	s.broker.Publish(rec)

	slog.Info("verdict", "tab_id", tabID, "domain", domain, "phishing", verdict.Phishing)

	if verdict.Phishing {
		if s.alerts.Enabled() {
			if err := s.alerts.PhishingAlert(ctx, rawURL); err != nil {
				slog.Warn("phishing alert failed", "error", err)
			}
		}
		if s.opts.CaptureEvidence && s.shots != nil {
			s.captureEvidence(ctx, tabID, rawURL, domain, verdict.Label)
		}
	}
}

// recordVerdict writes to the audit trail when one is configured.
func (s *Service) recordVerdict(rec types.VerdictRecord) {
	if s.verdict == nil {
		return
	}
	if err := s.verdict.Write(rec); err != nil {
		slog.Warn("verdict audit write failed", "url", rec.URL, "error", err)
	}
}

func (s *Service) captureEvidence(ctx context.Context, tabID, rawURL, domain, label string) {
	img, err := s.browser.CaptureScreenshot(ctx, tabID)
	if err != nil {
		slog.Warn("evidence capture failed", "tab_id", tabID, "error", err)
		return
	}
	meta := evidence.Meta{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Domain:    domain,
		TabID:     tabID,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.shots.Save(meta, img); err != nil {
		slog.Warn("evidence save failed", "tab_id", tabID, "error", err)
		return
	}
	slog.Info("evidence captured", "id", meta.ID, "domain", domain, "bytes", len(img))
}

// CurrentStatus classifies the active tab's URL unconditionally. It never
// consults or updates the tracked site and writes no history.
func (s *Service) CurrentStatus(ctx context.Context) (Status, error) {
	tabID, rawURL, ok := s.browser.ActiveTab()
	if !ok || rawURL == "" {
		return Status{}, types.NewError(types.CodeTabNotFound, "no active tab", nil)
	}

	verdict, err := s.cls.Classify(ctx, rawURL)
	if err != nil {
		return Status{}, err
	}

	domain := tabtrack.DomainOf(rawURL)
	s.recordVerdict(types.VerdictRecord{
		Timestamp:  time.Now().UTC(),
		TabID:      tabID,
		URL:        rawURL,
		Domain:     domain,
		IsPhishing: verdict.Phishing,
		Label:      verdict.Label,
		Source:     types.SourceStatusQuery,
	})

	return Status{
		TabID:      tabID,
		URL:        rawURL,
		Domain:     domain,
		IsPhishing: verdict.Phishing,
		Label:      verdict.Label,
	}, nil
}

// History returns the recorded verdicts, most recent first.
func (s *Service) History(ctx context.Context) ([]history.Entry, error) {
	return s.history.List(ctx)
}

// ReportEntry flips the reported flag on a history entry.
func (s *Service) ReportEntry(ctx context.Context, id string) (history.Entry, error) {
	return s.history.MarkReported(ctx, id)
}

// ClearHistory wipes the verdict log.
func (s *Service) ClearHistory(ctx context.Context) error {
	return s.history.Clear(ctx)
}

// ResetTabs wipes all tracked sites. The next navigation on every tab is
// then treated as a fresh site.
func (s *Service) ResetTabs() {
	n := s.tabs.Len()
	s.tabs.ClearAll()
	slog.Info("tab tracking reset", "dropped", n)
}

// TabStates returns the tracked per-tab sites.
func (s *Service) TabStates() []tabtrack.TabState {
	return s.tabs.List()
}

// EvidenceList returns stored capture metadata, newest first.
func (s *Service) EvidenceList() ([]evidence.Meta, error) {
	if s.shots == nil {
		return []evidence.Meta{}, nil
	}
	return s.shots.List()
}

// EvidenceGet returns one capture's metadata.
func (s *Service) EvidenceGet(id string) (evidence.Meta, error) {
	if s.shots == nil {
		return evidence.Meta{}, types.NewError(types.CodeNotFound, "evidence capture disabled", nil)
	}
	return s.shots.Get(id)
}

// EvidenceImage returns one capture's raw image bytes and format.
func (s *Service) EvidenceImage(id string) ([]byte, string, error) {
	if s.shots == nil {
		return nil, "", types.NewError(types.CodeNotFound, "evidence capture disabled", nil)
	}
	return s.shots.ReadImage(id)
}

// EvidenceDelete removes a stored capture.
func (s *Service) EvidenceDelete(id string) error {
	if s.shots == nil {
		return types.NewError(types.CodeNotFound, "evidence capture disabled", nil)
	}
	return s.shots.Delete(id)
}

// Stop cancels any pending debounced check.
func (s *Service) Stop() {
	s.deb.Stop()
}

func (s *Service) closeTabHook(ctx context.Context, tabID string) {
	if err := s.browser.CloseTab(ctx, tabID); err != nil {
		slog.Warn("close tab failed", "tab_id", tabID, "error", err)
		return
	}
	s.tabs.Remove(tabID)
}

// reportHook opens the external report flow and flips the reported flag on
// the matching history entry.
func (s *Service) reportHook(ctx context.Context, tabID, rawURL string) {
	if entry, ok, err := s.history.FindByURL(ctx, rawURL); err == nil && ok {
		if _, err := s.history.MarkReported(ctx, entry.ID); err != nil {
			slog.Warn("mark reported failed", "id", entry.ID, "error", err)
		}
	}

	target := reportTarget(s.opts.ReportURL, rawURL)
	if target == "" {
		return
	}
	if err := s.browser.OpenURL(ctx, tabID, target); err != nil {
		slog.Warn("open report flow failed", "tab_id", tabID, "error", err)
	}
}

// reportTarget appends the flagged URL to the report flow's address.
func reportTarget(base, flagged string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "url=" + url.QueryEscape(flagged)
}
