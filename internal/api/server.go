// Package api exposes the agent's REST, SSE and popup socket surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phishshield/shield_agent/internal/evidence"
	"github.com/phishshield/shield_agent/internal/guard"
	"github.com/phishshield/shield_agent/internal/history"
	"github.com/phishshield/shield_agent/internal/tabtrack"
	"github.com/phishshield/shield_agent/internal/types"
)

// Service is what the HTTP surface needs from the check pipeline.
type Service interface {
	CurrentStatus(ctx context.Context) (guard.Status, error)
	History(ctx context.Context) ([]history.Entry, error)
	ReportEntry(ctx context.Context, id string) (history.Entry, error)
	ClearHistory(ctx context.Context) error
	TabStates() []tabtrack.TabState
	ResetTabs()
	EvidenceList() ([]evidence.Meta, error)
	EvidenceGet(id string) (evidence.Meta, error)
	EvidenceImage(id string) ([]byte, string, error)
	EvidenceDelete(id string) error
}

// HealthSource reports browser-side liveness for the health endpoint.
type HealthSource interface {
	Connected() bool
	TabCount() int
}

// NewServer builds the HTTP handler. broker feeds the SSE and popup socket
// endpoints; health may be nil when no browser is attached yet.
func NewServer(svc Service, broker *guard.Broker, health HealthSource) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Shield Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	router.Get("/api/v1/events", sseHandler(broker))
	router.Get("/api/v1/popup/socket", socketHandler(svc, broker))

	registerStatusHandlers(api, svc)
	registerHistoryHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerEvidenceHandlers(api, svc)
	registerHealthHandlers(api, svc, broker, health)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotFound, types.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case types.CodeClassifierUnavailable, types.CodeClassifierBadStatus,
			types.CodeClassifierBadResponse, types.CodeNoVerdict, types.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
