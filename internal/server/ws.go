package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"forex-observer/internal/alert"
	"forex-observer/internal/market"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// observeFrame is one WebSocket message: the snapshot plus the alert sets
// as of that snapshot.
type observeFrame struct {
	market.Snapshot
	Alerts frameAlerts `json:"alerts"`
}

type frameAlerts struct {
	Active    []alert.Alert `json:"active"`
	Triggered []alert.Alert `json:"triggered"`
}

// handleObserveWS streams snapshots to one client until it disconnects or
// the server shuts down. Slow clients fall behind via the hub's drop-oldest
// queue rather than stalling the observation loop.
func (s *Server) handleObserveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := s.hub.Subscribe()
	defer func() {
		sub.Close()
		conn.Close()
	}()

	// reader pump: surfaces client-side close and keeps pongs flowing
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	if snap, ok := s.hub.Latest(); ok {
		if err := s.writeFrame(ctx, conn, snap); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.writeFrame(ctx, conn, snap); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, snap market.Snapshot) error {
	frame := observeFrame{
		Snapshot: snap,
		Alerts: frameAlerts{
			Active:    make([]alert.Alert, 0),
			Triggered: make([]alert.Alert, 0),
		},
	}

	if s.alerts != nil {
		list, err := s.alerts.List(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("alert list for frame failed")
		}
		for _, a := range list {
			if a.Active {
				frame.Alerts.Active = append(frame.Alerts.Active, a)
			}
			if a.LastTriggerState {
				frame.Alerts.Triggered = append(frame.Alerts.Triggered, a)
			}
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
