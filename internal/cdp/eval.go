package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/phishshield/shield_agent/internal/types"
)

// evalEnvelope is the uniform result wrapper every injected script returns.
// Scripts stringify it so the decode path is identical for all of them.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// jsString returns s as a quoted, escaped JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// buildIIFE wraps body in an immediately-invoked function with a catch-all
// that reports failures through the standard envelope. The body must return
// a JSON.stringify'd envelope on its own success paths.
func buildIIFE(body string) string {
	return `(function() {
	try {
` + body + `
	} catch (err) {
		return JSON.stringify({ok: false, error_code: "` + types.CodeEvalFailure + `", error_message: String(err && err.message ? err.message : err)});
	}
})()`
}

// eval runs js in the tab's page session and decodes the envelope. The
// script must be an IIFE built with buildIIFE.
func (w *Watcher) eval(ctx context.Context, tabID, js string, userGesture bool) (json.RawMessage, error) {
	tab, err := w.tabContext(tabID)
	if err != nil {
		return nil, err
	}

	evalCtx, cancel := context.WithTimeout(tab.ctx, w.evalTimeout)
	defer cancel()

	opts := []chromedp.EvaluateOption{}
	if userGesture {
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithUserGesture(true)
		})
	}

	var raw string
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(js, &raw, opts...)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.CodeEvalTimeout, fmt.Sprintf("script evaluation timed out after %s", w.evalTimeout), err)
		}
		return nil, types.NewError(types.CodeEvalFailure, "script evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, types.NewError(types.CodeEvalFailure, "script returned malformed envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = types.CodeEvalFailure
		}
		msg := env.ErrorMessage
		if msg == "" {
			msg = "script reported failure"
		}
		return nil, types.NewError(code, msg, nil)
	}
	return env.Data, nil
}

// Evaluate runs js in the tab and unmarshals the envelope's data field into
// out when out is non-nil.
func (w *Watcher) Evaluate(ctx context.Context, tabID, js string, out interface{}) error {
	data, err := w.eval(ctx, tabID, js, false)
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return types.NewError(types.CodeEvalFailure, "failed to decode script result", err)
		}
	}
	return nil
}

func buildOpenURLJS(url string) string {
	return buildIIFE(`
		window.open(` + jsString(url) + `, "_blank", "noopener");
		return JSON.stringify({ok: true});
`)
}
