package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The panel is served from the same origin; tokens for anything
	// sensitive live on the bridge side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleTranscriptWS streams live transcript entries for one agent.
func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(agentID)
	defer sub.Close()
	s.logger.Info("Transcript stream opened.", "agent_id", agentID, "remote", r.RemoteAddr)

	// Reader: the browser never sends data, but reading is what surfaces
	// the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case entry, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				s.logger.Debug("Transcript stream write failed.", "agent_id", agentID, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.logger.Info("Transcript stream closed.", "agent_id", agentID)
			return
		}
	}
}
