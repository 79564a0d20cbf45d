package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/phishshield/shield_agent/internal/guard"
)

// sseHandler streams verdict records as server-sent events.
func sseHandler(broker *guard.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case rec, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(rec)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: verdict\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
