// Package server exposes the template explorer over HTTP: template and
// dataset management, solo and batch runs, job status, result saving, a
// WebSocket job feed, health and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// PTXServer serves the HTTP API over a set of wired services
type PTXServer struct {
	services       *Services
	metrics        *Metrics
	allowedOrigins []string
	logger         *zap.SugaredLogger

	handler    http.Handler
	httpServer *http.Server
	mu         sync.Mutex

	configWatcher *am.ConfigWatcher

	startedAt time.Time
	state     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPTXServer creates a server. The worker pool is started by Start.
func NewPTXServer(services *Services) (*PTXServer, error) {
	if services == nil {
		return nil, errors.New("services cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &PTXServer{
		services:       services,
		metrics:        NewMetrics(MetricsNamespace, services.Registry),
		allowedOrigins: services.Config.Server.AllowedOrigins,
		logger:         logger.ComponentLogger("server"),
		startedAt:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}
	registerJobGauges(MetricsNamespace, services.Registry, services.Pool.GetQueue())
	s.handler = s.routes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *PTXServer) Handler() http.Handler {
	return s.handler
}

func (s *PTXServer) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *PTXServer) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", logger.FieldStatus, newState.String())
}
