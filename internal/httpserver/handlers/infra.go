package handlers

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ans/internal/scheduler"
)

type componentStatus struct {
	OK               bool                   `json:"ok"`
	Mode             string                 `json:"mode,omitempty"`
	PrincipalsLoaded *int                   `json:"principals_loaded,omitempty"`
	LastReload       string                 `json:"last_reload,omitempty"`
	Expiry           *scheduler.ExpiryStats `json:"expiry,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"store":   checkStore(r.Context(), d),
			"keyring": checkKeyring(d),
			"expiry":  checkExpiry(d),
			"tracing": {OK: true, Mode: tracingMode(d.TracingEnabled)},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     determineStatus(components),
			Components: components,
		})
	}
}

func determineStatus(components map[string]componentStatus) string {
	// Without a store or principals nothing can be served.
	if !components["store"].OK || !components["keyring"].OK {
		return "critical"
	}

	// A failing expiry scan only affects reporting.
	if !components["expiry"].OK {
		return "degraded"
	}

	return "operational"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: d.StoreKind, Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: d.StoreKind}
}

func checkKeyring(d deps.Deps) componentStatus {
	count := d.Keyring.Count()
	lastReload := "never"
	if t := d.Keyring.LastReload(); !t.IsZero() {
		lastReload = t.Format("2006-01-02 15:04:05")
	}
	return componentStatus{
		OK:               count > 0,
		PrincipalsLoaded: &count,
		LastReload:       lastReload,
	}
}

func checkExpiry(d deps.Deps) componentStatus {
	if d.Expiry == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	stats := d.Expiry.Stats()
	return componentStatus{OK: !stats.LastScanFailed, Mode: "watching", Expiry: &stats}
}

func tracingMode(enabled bool) string {
	if enabled {
		return "exporting"
	}
	return "disabled"
}
