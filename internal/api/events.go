package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/renshaw/linkup/internal/logging"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pingPeriod keeps idle event connections alive through the
	// provisioning network's NAT.
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// The control API is only reachable on the device's own networks;
	// provisioning clients connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents serves GET /api/events: a websocket that pushes a status
// snapshot immediately on connect and again on every state machine
// change, so clients can follow a join attempt without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	remoteAddr := ws.RemoteAddr().String()
	logging.Info("Event stream connected", zap.String("remote_addr", remoteAddr))

	updates, cancel := s.machine.Subscribe()
	defer cancel()
	defer ws.Close()

	// Discard inbound frames but notice the close handshake.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	// Current state first, then deltas.
	snap, err := s.machine.Status(r.Context())
	if err != nil {
		return
	}
	if err := writeSnapshot(ws, statusFromSnapshot(snap)); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(ws, statusFromSnapshot(snap)); err != nil {
				logging.Debug("Event stream write failed",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ws *websocket.Conn, status statusResponse) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(status)
}
