package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// portAttempts is how many consecutive ports are tried when the requested
// one is taken
const portAttempts = 10

// listen binds the requested port, or the next free one after it
func listen(port int) (net.Listener, int, error) {
	var lastErr error
	for i := 0; i < portAttempts; i++ {
		candidate := port + i
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", candidate))
		if err == nil {
			return ln, ln.Addr().(*net.TCPAddr).Port, nil
		}
		lastErr = err
		if port == 0 {
			break
		}
	}
	return nil, 0, errors.Wrapf(lastErr, "no available port in %d-%d", port, port+portAttempts-1)
}

// Start starts the worker pool, the config watcher and the HTTP server. It
// blocks until the server stops; after Stop it returns nil.
func (s *PTXServer) Start(port int) error {
	ln, actualPort, err := listen(port)
	if err != nil {
		return err
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort)
	}
	return s.Serve(ln, actualPort)
}

// Serve runs the server on an existing listener
func (s *PTXServer) Serve(ln net.Listener, port int) error {
	s.services.Pool.Start()
	s.startConfigWatcher()

	cfg := s.services.Config.Server
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()
	s.setState(ServerStateRunning)

	s.logger.Infow(fmt.Sprintf("HTTP server listening on port %d", port),
		logger.FieldAddress, ln.Addr().String(),
		logger.FieldPort, port,
		"workers", s.services.Pool.Workers())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// ConfiguredPort returns server.port, or the default when unset
func ConfiguredPort(cfg *am.Config) int {
	return cfg.GetServerPort()
}

// startConfigWatcher reloads llm defaults when a loaded config file changes
func (s *PTXServer) startConfigWatcher() {
	files := am.LoadedFiles()
	if len(files) == 0 {
		return
	}
	watcher, err := am.NewConfigWatcher(files...)
	if err != nil {
		s.logger.Warnw("Config watcher unavailable", logger.FieldError, err)
		return
	}
	watcher.OnReload(func(cfg *am.Config) error {
		if err := s.services.Reload(cfg); err != nil {
			s.logger.Warnw("Ignoring invalid config change", logger.FieldError, err)
			return err
		}
		s.logger.Infow("Configuration reloaded",
			logger.FieldProvider, cfg.LLM.Provider,
			logger.FieldModel, cfg.LLM.Model)
		return nil
	})
	watcher.Start()
	am.SetGlobalWatcher(watcher)

	s.mu.Lock()
	s.configWatcher = watcher
	s.mu.Unlock()
}

// Stop drains HTTP requests, stops the worker pool (in-flight batches record
// their remaining rows as cancelled) and closes WebSocket feeds.
func (s *PTXServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	watcher := s.configWatcher
	s.mu.Unlock()

	// WebSocket feeds end on cancel; Shutdown does not wait for hijacked conns
	s.cancel()

	var shutdownErr error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "HTTP shutdown did not complete")
		}
	}

	s.logger.Infow("Stopping worker pool")
	s.services.Pool.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("WebSocket feeds did not stop in time", "timeout", ShutdownTimeout)
	}

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			s.logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "uptime", time.Since(s.startedAt).Round(time.Second))
	return shutdownErr
}
