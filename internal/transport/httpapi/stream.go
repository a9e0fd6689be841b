package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/astrofm-go/internal/constants"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream pushes every snapshot of the session until the client leaves
// or the session is closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	screen, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("session", id), zap.Error(err))
		return
	}
	defer conn.Close()

	detach := s.registry.attach(id)
	defer detach()

	snapshots, unsubscribe := screen.Subscribe()
	defer unsubscribe()

	cfg := constants.SessionConfig
	pongWait := 2 * cfg.WSPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients send nothing; reading keeps control frames flowing and notices
	// a closed socket.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.WSPingInterval)
	defer ticker.Stop()

	s.logger.Debug("Snapshot stream opened", zap.String("session", id))
	defer s.logger.Debug("Snapshot stream closed", zap.String("session", id))

	for {
		select {
		case snap, open := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WSWriteTimeout))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug("Snapshot write failed", zap.String("session", id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WSWriteTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
