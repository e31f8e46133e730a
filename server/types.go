package server

import (
	"time"

	"github.com/teranos/PTX/pulse/async"
	"github.com/teranos/PTX/run"
)

const (
	// ShutdownTimeout is how long Stop waits for in-flight requests
	ShutdownTimeout = 30 * time.Second
	// MaxUploadBytes bounds multipart dataset uploads
	MaxUploadBytes = 64 << 20

	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type templateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type importRequest struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
}

type batchResponse struct {
	JobID string `json:"job_id"`
}

type jobResultResponse struct {
	Results []run.Entry `json:"results"`
}

type saveRequest struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

type saveResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse is served by /health
type HealthResponse struct {
	Status        string              `json:"status"`
	State         string              `json:"state"`
	Version       string              `json:"version"`
	Commit        string              `json:"commit"`
	BuildTime     string              `json:"build_time"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Jobs          async.QueueStats    `json:"jobs"`
	System        async.SystemMetrics `json:"system"`
}
