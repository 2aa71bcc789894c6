package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// handleWebSocket upgrades the connection, sends a priming burst of the
// last 50 history entries, then streams live broadcast-hub items as JSON
// text frames until the peer disconnects or a write fails.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	priming := s.history.Recent(primingBurst)
	// Recent returns newest-first; replay oldest-first so a reconnecting
	// viewer sees history in the same order it originally arrived.
	for i := len(priming) - 1; i >= 0; i-- {
		if err := conn.WriteJSON(priming[i]); err != nil {
			return
		}
	}

	id, ch := s.hub.Subscribe(nil)
	defer s.hub.Unsubscribe(id)

	// Drain client-to-server frames on a background goroutine purely to
	// detect peer close/error; this façade has nothing to read from a
	// viewer beyond that signal.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case req, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(req)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
