//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/health")
	requireStatus(t, resp, http.StatusOK)

	result := decodeJSON[statusResult](t, resp)
	requireField(t, result.Status, "ok", "status")
}

func TestAgentHealth(t *testing.T) {
	resp := env.GET(t, "/api/v1/health")
	requireStatus(t, resp, http.StatusOK)

	h := decodeJSON[agentHealth](t, resp)
	if h.Status != "ok" && h.Status != "degraded" {
		t.Fatalf("status = %q, want ok or degraded", h.Status)
	}
	if h.BrowserConnected && h.Status != "ok" {
		t.Fatalf("status = %q with browser connected, want ok", h.Status)
	}
	if !h.BrowserConnected && h.Status != "degraded" {
		t.Fatalf("status = %q without browser, want degraded", h.Status)
	}
	if h.TabsAttached < 0 || h.TrackedTabs < 0 || h.FeedClients < 0 {
		t.Fatalf("negative counters in health: %+v", h)
	}

	t.Logf("agent health: status=%s browser=%v attached=%d tracked=%d feed=%d",
		h.Status, h.BrowserConnected, h.TabsAttached, h.TrackedTabs, h.FeedClients)
}

func TestDocsServed(t *testing.T) {
	resp := env.GET(t, "/docs")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.GET(t, "/openapi.json")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("openapi spec not exposed: status %d", resp.StatusCode)
	}
}
