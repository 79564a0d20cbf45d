package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/phishshield/shield_agent/internal/evidence"
	"github.com/phishshield/shield_agent/internal/guard"
	"github.com/phishshield/shield_agent/internal/history"
	"github.com/phishshield/shield_agent/internal/tabtrack"
)

func registerStatusHandlers(api huma.API, svc Service) {
	type statusOutput struct {
		Body guard.Status
	}
	huma.Register(api, huma.Operation{OperationID: "current-status", Method: http.MethodGet, Path: "/api/v1/status/current", Summary: "Classify the active tab's URL right now", Description: "Always issues a live classification call, even when the tab's domain matches its tracked state.", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			status, err := svc.CurrentStatus(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body = status
			return out, nil
		})
}

func registerHistoryHandlers(api huma.API, svc Service) {
	type historyOutput struct {
		Body struct {
			Entries []history.Entry `json:"entries"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-history", Method: http.MethodGet, Path: "/api/v1/history", Summary: "List recorded verdicts, most recent first", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*historyOutput, error) {
			entries, err := svc.History(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.Entries = entries
			if out.Body.Entries == nil {
				out.Body.Entries = []history.Entry{}
			}
			return out, nil
		})

	type entryIDInput struct {
		EntryID string `path:"entry_id"`
	}
	type reportOutput struct {
		Body history.Entry
	}
	huma.Register(api, huma.Operation{OperationID: "report-history-entry", Method: http.MethodPost, Path: "/api/v1/history/{entry_id}/report", Summary: "Mark a history entry as reported", Tags: []string{"History"}},
		func(ctx context.Context, input *entryIDInput) (*reportOutput, error) {
			entry, err := svc.ReportEntry(ctx, input.EntryID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &reportOutput{}
			out.Body = entry
			return out, nil
		})

	type clearOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-history", Method: http.MethodDelete, Path: "/api/v1/history", Summary: "Wipe the verdict log", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*clearOutput, error) {
			if err := svc.ClearHistory(ctx); err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})
}

func registerTabHandlers(api huma.API, svc Service) {
	type tabsOutput struct {
		Body struct {
			Tabs []tabtrack.TabState `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tracked per-tab sites", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			out := &tabsOutput{}
			out.Body.Tabs = svc.TabStates()
			if out.Body.Tabs == nil {
				out.Body.Tabs = []tabtrack.TabState{}
			}
			return out, nil
		})

	type resetOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "reset-tabs", Method: http.MethodPost, Path: "/api/v1/tabs/reset", Summary: "Wipe all tracked sites", Description: "The next navigation on every tab is treated as a fresh site.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*resetOutput, error) {
			svc.ResetTabs()
			out := &resetOutput{}
			out.Body.Status = "reset"
			return out, nil
		})
}

func registerEvidenceHandlers(api huma.API, svc Service) {
	type listEvidenceOutput struct {
		Body struct {
			Captures []evidence.Meta `json:"captures"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-evidence", Method: http.MethodGet, Path: "/api/v1/evidence", Summary: "List captured evidence", Tags: []string{"Evidence"}},
		func(ctx context.Context, input *struct{}) (*listEvidenceOutput, error) {
			metas, err := svc.EvidenceList()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listEvidenceOutput{}
			out.Body.Captures = metas
			if out.Body.Captures == nil {
				out.Body.Captures = []evidence.Meta{}
			}
			return out, nil
		})

	type evidenceIDInput struct {
		EvidenceID string `path:"evidence_id"`
	}
	type getEvidenceOutput struct {
		Body evidence.Meta
	}
	huma.Register(api, huma.Operation{OperationID: "get-evidence", Method: http.MethodGet, Path: "/api/v1/evidence/{evidence_id}", Summary: "Get capture metadata", Tags: []string{"Evidence"}},
		func(ctx context.Context, input *evidenceIDInput) (*getEvidenceOutput, error) {
			meta, err := svc.EvidenceGet(input.EvidenceID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &getEvidenceOutput{}
			out.Body = meta
			return out, nil
		})

	type evidenceImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-evidence-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/evidence/{evidence_id}/image",
		Summary:     "Get capture image",
		Tags:        []string{"Evidence"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Capture image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *evidenceIDInput) (*evidenceImageOutput, error) {
		data, format, err := svc.EvidenceImage(input.EvidenceID)
		if err != nil {
			return nil, mapErr(err)
		}
		ct := "image/png"
		if format == "jpeg" {
			ct = "image/jpeg"
		}
		return &evidenceImageOutput{ContentType: ct, Body: data}, nil
	})

	type deleteEvidenceOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-evidence", Method: http.MethodDelete, Path: "/api/v1/evidence/{evidence_id}", Summary: "Delete a capture", Tags: []string{"Evidence"}},
		func(ctx context.Context, input *evidenceIDInput) (*deleteEvidenceOutput, error) {
			if err := svc.EvidenceDelete(input.EvidenceID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteEvidenceOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}

func registerHealthHandlers(api huma.API, svc Service, broker *guard.Broker, health HealthSource) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type agentHealthOutput struct {
		Body struct {
			Status           string `json:"status"`
			BrowserConnected bool   `json:"browser_connected"`
			TabsAttached     int    `json:"tabs_attached"`
			TrackedTabs      int    `json:"tracked_tabs"`
			FeedClients      int    `json:"feed_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "agent-health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Agent health with browser connectivity", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*agentHealthOutput, error) {
			out := &agentHealthOutput{}
			out.Body.Status = "ok"
			if health != nil {
				out.Body.BrowserConnected = health.Connected()
				out.Body.TabsAttached = health.TabCount()
				if !out.Body.BrowserConnected {
					out.Body.Status = "degraded"
				}
			}
			out.Body.TrackedTabs = len(svc.TabStates())
			if broker != nil {
				out.Body.FeedClients = broker.ClientCount()
			}
			return out, nil
		})
}
