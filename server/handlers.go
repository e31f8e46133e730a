package server

import (
	"net/http"
	"time"

	"github.com/teranos/PTX/version"
)

// HandleRoot serves the welcome message
func (s *PTXServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to PTX, the prompt template explorer"})
}

// HandleHealth reports version, uptime, job counts and memory
func (s *PTXServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	status := "ok"
	if s.getState() != ServerStateRunning {
		status = "unavailable"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		State:         s.getState().String(),
		Version:       info.Version,
		Commit:        info.CommitHash,
		BuildTime:     info.BuildTime,
		UptimeSeconds: int64(time.Since(s.startedAt) / time.Second),
		Jobs:          s.services.Pool.GetQueue().GetStats(),
		System:        s.services.Pool.GetSystemMetrics(),
	})
}
