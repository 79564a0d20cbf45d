//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestTabsList(t *testing.T) {
	resp := env.GET(t, "/api/v1/tabs")
	requireStatus(t, resp, http.StatusOK)

	result := decodeJSON[tabListing](t, resp)
	if result.Tabs == nil {
		t.Fatal("tabs is null, want an array")
	}
	for i, tab := range result.Tabs {
		if tab.TabID == "" {
			t.Fatalf("tab %d has no tab_id", i)
		}
		if tab.Domain == "" {
			t.Fatalf("tab %s has no domain", tab.TabID)
		}
		if tab.SeenAt.IsZero() {
			t.Fatalf("tab %s has no seen_at", tab.TabID)
		}
	}
	t.Logf("tracked tabs: %d", len(result.Tabs))
}

func TestTabsReset(t *testing.T) {
	resp := env.POST(t, "/api/v1/tabs/reset", nil)
	requireStatus(t, resp, http.StatusOK)

	result := decodeJSON[statusResult](t, resp)
	requireField(t, result.Status, "reset", "status")

	// With an idle browser nothing re-tracks between the reset and the list.
	listing := decodeJSON[tabListing](t, env.GET(t, "/api/v1/tabs"))
	if len(listing.Tabs) != 0 {
		t.Fatalf("after reset, %d tabs still tracked", len(listing.Tabs))
	}
}
