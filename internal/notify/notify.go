// Package notify pushes plain-text alerts about phishing verdicts to an
// operator-configured endpoint (ntfy or compatible).
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Notifier posts alerts to a single endpoint. An empty endpoint disables
// it; every method is then a no-op.
type Notifier struct {
	Endpoint string
	Client   *http.Client
}

// Enabled reports whether alerts will actually be sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.Endpoint != ""
}

// PhishingAlert sends the standard alert for a flagged URL.
func (n *Notifier) PhishingAlert(ctx context.Context, url string) error {
	if !n.Enabled() {
		return nil
	}
	msg := fmt.Sprintf("shield agent: phishing site detected: %s", url)
	return Send(ctx, n.Client, n.Endpoint, msg)
}

// Send posts a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return fmt.Errorf("alert endpoint not configured")
	}

	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
