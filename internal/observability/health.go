package observability

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is what the health endpoint reports.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HealthHandler answers liveness probes next to the metrics endpoint.
// A broadcast server has no downstream dependencies to check; if the
// process answers, it is healthy.
func HealthHandler() http.Handler {
	start := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(start).Seconds()),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	})
}
