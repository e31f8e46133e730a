package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/PTX/logger"
)

// HandleJobWebSocket upgrades to a WebSocket and streams status snapshots of
// one job until it reaches a terminal state, then closes normally.
func (s *PTXServer) HandleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	updates, err := s.services.Engine.Watch(ctx, jobID)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to watch job")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Failed to upgrade WebSocket", logger.FieldJobID, jobID, logger.FieldError, err)
		return
	}
	defer conn.Close()

	s.metrics.WSConnectionsActive.Inc()
	defer s.metrics.WSConnectionsActive.Dec()

	s.wg.Add(1)
	defer s.wg.Done()

	// The read side only exists to notice the client going away
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debugw("Job watcher disconnected", logger.FieldJobID, jobID, logger.FieldError, err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(status); err != nil {
				s.logger.Debugw("Job watcher write failed", logger.FieldJobID, jobID, logger.FieldError, err)
				return
			}
			s.metrics.WSMessagesTotal.WithLabelValues(string(status.Status)).Inc()
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
