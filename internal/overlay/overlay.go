// Package overlay drives the single on-page notification surface for each
// tab: which banner is visible, how it is dismissed, and what user actions
// it accepts.
package overlay

import (
	"context"
	"fmt"
)

// State enumerates the notification surface states. Empty is the rest
// state; the other three are visible banner variants.
type State int

const (
	StateEmpty State = iota
	StateWarning
	StateSamePage
	StateSafe
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWarning:
		return "warning"
	case StateSamePage:
		return "same_page"
	case StateSafe:
		return "safe"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User actions a visible banner can emit.
const (
	ActionClose    = "close"
	ActionCloseTab = "closeTab"
	ActionReport   = "report"
)

// Payload carries the banner's content.
type Payload struct {
	URL   string
	Label string
}

// Port is the rendering boundary for banners. Show replaces any banner
// already on the page; Clear removes whatever is there. Implementations do
// no storage or classification work.
type Port interface {
	Show(ctx context.Context, tabID string, state State, p Payload) error
	Clear(ctx context.Context, tabID string) error
}
