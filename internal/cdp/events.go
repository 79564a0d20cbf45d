package cdp

// NavigationEvent is a completed navigation in a tab's main frame,
// including SPA-style same-document navigations.
type NavigationEvent struct {
	TabID    string
	URL      string
	IsReload bool
}

// ActivationEvent is a tab becoming the visible one.
type ActivationEvent struct {
	TabID string
	URL   string
}

// ActionEvent is a user action emitted by the on-page banner.
type ActionEvent struct {
	TabID  string
	Action string
}

// Handlers receive watcher events. Handlers run on the watcher's event
// goroutines and must not block; any nil handler is skipped.
type Handlers struct {
	OnNavigated func(NavigationEvent)
	OnActivated func(ActivationEvent)
	OnAction    func(ActionEvent)
	OnTabClosed func(tabID string)
}
