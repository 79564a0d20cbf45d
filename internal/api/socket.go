package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/phishshield/shield_agent/internal/guard"
	"github.com/phishshield/shield_agent/internal/history"
	"github.com/phishshield/shield_agent/internal/types"
)

const socketQueryTimeout = 15 * time.Second

// socketRequest is an inbound popup message.
type socketRequest struct {
	Action string `json:"action"`
}

// socketResponse answers a popup request or pushes a verdict. Exactly one of
// Status, History or Verdict is set on success.
type socketResponse struct {
	Action  string               `json:"action"`
	OK      bool                 `json:"ok"`
	Error   string               `json:"error,omitempty"`
	Status  *guard.Status        `json:"status,omitempty"`
	History []history.Entry      `json:"history,omitempty"`
	Verdict *types.VerdictRecord `json:"verdict,omitempty"`
}

// socketHandler upgrades the popup connection and serves its query protocol.
// Verdicts from the live feed are pushed as they land.
func socketHandler(svc Service, broker *guard.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("popup socket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		slog.Debug("popup socket connected", "remote", r.RemoteAddr)
		go serveSocket(conn, svc, broker)
	}
}

func serveSocket(conn net.Conn, svc Service, broker *guard.Broker) {
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(resp socketResponse) error {
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return wsutil.WriteServerText(conn, data)
	}

	done := make(chan struct{})
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	go func() {
		for {
			select {
			case <-done:
				return
			case rec, ok := <-ch:
				if !ok {
					return
				}
				if err := write(socketResponse{Action: "verdict", OK: true, Verdict: &rec}); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("popup socket closed", "error", err)
			}
			return
		}

		var req socketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := write(socketResponse{OK: false, Error: "malformed request"}); werr != nil {
				return
			}
			continue
		}

		if err := write(handleSocketRequest(svc, req)); err != nil {
			return
		}
	}
}

func handleSocketRequest(svc Service, req socketRequest) socketResponse {
	ctx, cancel := context.WithTimeout(context.Background(), socketQueryTimeout)
	defer cancel()

	switch req.Action {
	case "getCurrentStatus":
		status, err := svc.CurrentStatus(ctx)
		if err != nil {
			return socketResponse{Action: req.Action, OK: false, Error: err.Error()}
		}
		return socketResponse{Action: req.Action, OK: true, Status: &status}
	case "getHistory":
		entries, err := svc.History(ctx)
		if err != nil {
			return socketResponse{Action: req.Action, OK: false, Error: err.Error()}
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		return socketResponse{Action: req.Action, OK: true, History: entries}
	default:
		return socketResponse{Action: req.Action, OK: false, Error: "unknown action"}
	}
}
