package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phishshield/shield_agent/internal/overlay"
)

// jsBootstrap runs in every new document. It reports tab visibility back to
// the agent so the currently focused tab can be tracked without polling.
const jsBootstrap = `(function() {
	if (window.__shieldHooked) { return; }
	window.__shieldHooked = true;
	document.addEventListener("visibilitychange", function() {
		if (document.visibilityState === "visible" && window.__shieldNotify) {
			window.__shieldNotify(JSON.stringify({kind: "activated"}));
		}
	});
})()`

// bannerJSTemplate renders the notification bar. Any previous bar is removed
// first so replacement is a single script round trip. Slots: background,
// title, detail, extra button block.
const bannerJSTemplate = `
		var existing = document.getElementById("__shield_overlay");
		if (existing) { existing.remove(); }
		var bar = document.createElement("div");
		bar.id = "__shield_overlay";
		bar.style.cssText = "position:fixed;top:0;left:0;right:0;z-index:2147483647;padding:10px 16px;display:flex;align-items:center;gap:12px;font:14px/1.4 system-ui,sans-serif;color:#fff;box-shadow:0 2px 8px rgba(0,0,0,0.35);background:" + %s + ";";
		var title = document.createElement("strong");
		title.textContent = %s;
		bar.appendChild(title);
		var detail = document.createElement("span");
		detail.textContent = %s;
		detail.style.cssText = "flex:1;overflow:hidden;text-overflow:ellipsis;white-space:nowrap;";
		bar.appendChild(detail);
%s
		(document.body || document.documentElement).appendChild(bar);
		return JSON.stringify({ok: true});
`

// bannerButtonsJS adds the bar's action buttons. Clicks go out through the
// agent binding, never through page code. Slot: [label, action] pairs.
const bannerButtonsJS = `
		var actions = %s;
		for (var i = 0; i < actions.length; i++) {
			(function(label, action) {
				var btn = document.createElement("button");
				btn.textContent = label;
				btn.style.cssText = "border:1px solid rgba(255,255,255,0.7);background:transparent;color:#fff;padding:4px 10px;border-radius:4px;font:inherit;cursor:pointer;";
				btn.addEventListener("click", function() {
					if (window.__shieldNotify) {
						window.__shieldNotify(JSON.stringify({kind: "action", action: action}));
					}
				});
				bar.appendChild(btn);
			})(actions[i][0], actions[i][1]);
		}
`

var jsClearBanner = buildIIFE(`
		var existing = document.getElementById("__shield_overlay");
		if (existing) { existing.remove(); }
		return JSON.stringify({ok: true});
`)

func buildBannerJS(state overlay.State, p overlay.Payload) string {
	var bg, title, detail string
	var actions [][2]string
	switch state {
	case overlay.StateWarning:
		bg = "#b91c1c"
		title = "Phishing warning"
		detail = p.URL
		actions = [][2]string{{"Dismiss", overlay.ActionClose}, {"Close tab", overlay.ActionCloseTab}, {"Report", overlay.ActionReport}}
	case overlay.StateSamePage:
		bg = "#374151"
		title = "Same site"
		detail = "Still on this site, previous check stands."
		actions = [][2]string{{"Dismiss", overlay.ActionClose}}
	case overlay.StateSafe:
		bg = "#15803d"
		title = "Site looks legitimate"
		detail = p.URL
		actions = [][2]string{{"Dismiss", overlay.ActionClose}, {"Report", overlay.ActionReport}}
	default:
		bg = "#374151"
		title = "Notice"
		detail = p.URL
		actions = [][2]string{{"Dismiss", overlay.ActionClose}}
	}

	pairs, err := json.Marshal(actions)
	if err != nil {
		pairs = []byte("[]")
	}
	buttons := fmt.Sprintf(bannerButtonsJS, string(pairs))
	body := fmt.Sprintf(bannerJSTemplate, jsString(bg), jsString(title), jsString(detail), buttons)
	return buildIIFE(body)
}

// BannerPort renders overlay states as in-page banners via script injection.
type BannerPort struct {
	w *Watcher
}

func NewBannerPort(w *Watcher) *BannerPort {
	return &BannerPort{w: w}
}

func (p *BannerPort) Show(ctx context.Context, tabID string, state overlay.State, payload overlay.Payload) error {
	if state == overlay.StateEmpty {
		return p.Clear(ctx, tabID)
	}
	_, err := p.w.eval(ctx, tabID, buildBannerJS(state, payload), false)
	return err
}

func (p *BannerPort) Clear(ctx context.Context, tabID string) error {
	_, err := p.w.eval(ctx, tabID, jsClearBanner, false)
	return err
}

var _ overlay.Port = (*BannerPort)(nil)
