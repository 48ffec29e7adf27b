package server

import (
	"net/http"
	"time"

	"pushbridge/service/activity"
	"pushbridge/service/util"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleActivityStream pushes each new activity record to the client as a
// JSON text frame until either side goes away.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		util.JSONError(w, "Activity stream not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Activity stream upgrade failed", "error", err)
		return
	}

	watcher := s.feed.Watch()
	closed := make(chan struct{})

	go s.readPump(conn, closed)
	s.writePump(conn, watcher, closed)
}

func (s *Server) writePump(conn *websocket.Conn, watcher *activity.Watcher, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		watcher.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case rec, ok := <-watcher.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// readPump only services control frames; clients have nothing to send.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
