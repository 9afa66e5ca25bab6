package handlers

import (
	"net/http"

	"snapfeed/internal/api"
	"snapfeed/internal/models"
)

// HandleNotifications lists the caller's notifications, newest first.
func (s *Server) HandleNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}

		list, err := s.Remote.ListNotifications(r.Context(), sess.UserID())
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp := api.NotificationsResponse{Notifications: list}
		if resp.Notifications == nil {
			resp.Notifications = []*models.Notification{}
		}
		for _, n := range list {
			if !n.Read {
				resp.Unread++
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleMarkRead marks one notification, or all of them, read and wakes the
// caller's open streams so badges update without waiting for the next poll.
func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req api.MarkReadRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		var err error
		if req.ID == "" {
			err = s.Remote.MarkAllNotificationsRead(r.Context(), sess.UserID())
		} else {
			err = s.Remote.MarkNotificationRead(r.Context(), sess.UserID(), req.ID)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.Broker.Wake(sess.UserID())
		writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
	}
}
