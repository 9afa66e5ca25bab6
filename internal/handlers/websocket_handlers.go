package handlers

import (
	"net/http"

	"snapfeed/internal/websocket"

	"go.uber.org/zap"
)

// HandleWebSocket upgrades an authenticated request and streams the caller's
// revert notices, session changes and notification lists. The token comes
// from the Authorization header or the "token" query parameter.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		userID := sess.UserID()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already written the error answer
			s.logger.Warn("WebSocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
			return
		}

		client := websocket.NewClient(s.Hub, userID, conn)
		if !s.Hub.Add(client) {
			conn.Close()
			return
		}
		s.logger.Debug("WebSocket client registered", zap.String("user_id", userID))

		sub := s.Broker.Subscribe(s.baseCtx, userID)
		go client.Stream(s.baseCtx, sess, sub)
		go client.WritePump()
		go client.ReadPump()
	}
}
