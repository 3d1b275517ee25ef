package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Uptime    string             `json:"uptime"`
	Monitor   *MonitorHealthInfo `json:"monitor,omitempty"`
}

// MonitorHealthInfo summarizes the monitoring service for health checks
type MonitorHealthInfo struct {
	Running        bool `json:"running"`
	Chains         int  `json:"chains"`
	DisabledChains int  `json:"disabled_chains"`
	Users          int  `json:"users"`
}

// handleHealth handles the health check endpoint. It always answers 200
// while the process is up; the status field reports whether monitoring
// is fully operational.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	st := s.status.Status()

	disabled := 0
	for _, chain := range st.Chains {
		if chain.Disabled {
			disabled++
		}
	}

	status := "ok"
	switch {
	case !st.Running:
		status = "stopped"
	case disabled > 0:
		status = "degraded"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Monitor: &MonitorHealthInfo{
			Running:        st.Running,
			Chains:         len(st.Chains),
			DisabledChains: disabled,
			Users:          st.UserCount,
		},
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// handleStatus handles the full service status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.status.Status())
}
