//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestEventStreamOpens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.BaseURL+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.Client.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()

	requireStatus(t, resp, http.StatusOK)
	requireField(t, resp.Header.Get("Content-Type"), "text/event-stream", "Content-Type")
	requireField(t, resp.Header.Get("Cache-Control"), "no-cache", "Cache-Control")
}

// socketReply mirrors the popup socket response envelope.
type socketReply struct {
	Action  string          `json:"action"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error"`
	Status  *currentStatus  `json:"status"`
	History []historyEntry  `json:"history"`
	Verdict json.RawMessage `json:"verdict"`
}

func dialPopupSocket(t *testing.T) net.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.BaseURL, "http") + "/api/v1/popup/socket"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readReply reads frames until one answers the given action, skipping any
// verdict pushes that land in between.
func readReply(t *testing.T, conn net.Conn, action string) socketReply {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			t.Fatalf("read socket frame: %v", err)
		}
		var reply socketReply
		if err := json.Unmarshal(data, &reply); err != nil {
			t.Fatalf("decode socket frame %q: %v", data, err)
		}
		if reply.Action == "verdict" && action != "verdict" {
			continue
		}
		return reply
	}
}

func TestPopupSocketHistory(t *testing.T) {
	conn := dialPopupSocket(t)

	if err := wsutil.WriteClientText(conn, []byte(`{"action":"getHistory"}`)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply := readReply(t, conn, "getHistory")
	requireField(t, reply.Action, "getHistory", "action")
	if !reply.OK {
		t.Fatalf("getHistory failed: %s", reply.Error)
	}
	if reply.History == nil {
		t.Fatal("history is null, want an array")
	}

	// The socket and REST views come from the same log.
	rest := decodeJSON[historyListing](t, env.GET(t, "/api/v1/history"))
	if len(reply.History) != len(rest.Entries) {
		t.Fatalf("socket history has %d entries, REST has %d", len(reply.History), len(rest.Entries))
	}
}

func TestPopupSocketCurrentStatus(t *testing.T) {
	conn := dialPopupSocket(t)

	if err := wsutil.WriteClientText(conn, []byte(`{"action":"getCurrentStatus"}`)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply := readReply(t, conn, "getCurrentStatus")
	requireField(t, reply.Action, "getCurrentStatus", "action")
	if reply.OK {
		if reply.Status == nil {
			t.Fatal("ok reply carries no status")
		}
		if reply.Status.URL == "" {
			t.Fatal("status url is empty")
		}
	} else if reply.Error == "" {
		t.Fatal("failed reply carries no error")
	}
}

func TestPopupSocketUnknownAction(t *testing.T) {
	conn := dialPopupSocket(t)

	if err := wsutil.WriteClientText(conn, []byte(`{"action":"bogus"}`)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply := readReply(t, conn, "bogus")
	requireField(t, reply.OK, false, "ok")
	requireField(t, reply.Error, "unknown action", "error")
}
