package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/inplay-odds/internal/connection"
	"github.com/rickgao/inplay-odds/internal/engine"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
)

// debugLimit caps list endpoints.
const debugLimit = 100

// newHandler serves health, debug and (when m is set) Prometheus endpoints.
func newHandler(eng *engine.Engine, m *metrics.Metrics, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		st := eng.Status()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stream := map[string]any{"state": st.State}
		if st.Endpoint != "" {
			stream["endpoint"] = st.Endpoint
		}
		health.Components["stream"] = stream

		health.Components["markets"] = map[string]any{
			"matches": st.Matches,
			"markets": st.Markets,
		}
		if !st.SnapshotAt.IsZero() {
			health.Components["snapshot"] = map[string]any{
				"loaded_at": st.SnapshotAt.Format(time.RFC3339),
			}
		}
		if st.LastError != "" {
			health.Components["last_error"] = map[string]any{
				"message": st.LastError,
				"at":      st.LastErrorAt.Format(time.RFC3339),
			}
		}

		switch {
		case st.State == connection.StateClosed:
			health.Status = "unhealthy"
		case st.State != connection.StateConnected:
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/markets", func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			mkt, ok := eng.Market(model.ID(id))
			if !ok {
				http.Error(w, "market not found", http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]any{
				"market":  mkt,
				"changes": eng.ChangesFor(model.ID(id)),
			})
			return
		}

		markets := eng.ListMarkets()
		total := len(markets)
		if len(markets) > debugLimit {
			markets = markets[:debugLimit]
		}

		writeJSON(w, map[string]any{
			"count":   total,
			"showing": len(markets),
			"markets": markets,
		})
	})

	mux.HandleFunc("/debug/matches", func(w http.ResponseWriter, r *http.Request) {
		matches := eng.ListMatches()
		writeJSON(w, map[string]any{
			"count":   len(matches),
			"matches": matches,
		})
	})

	mux.HandleFunc("/debug/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		eng.Refresh()
		w.WriteHeader(http.StatusAccepted)
	})

	if m != nil {
		mux.Handle(metricsPath, m.Handler())
	}

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
