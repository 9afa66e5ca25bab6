package handlers

import (
	"net/http"
	"time"

	"snapfeed/internal/api"
	"snapfeed/internal/engine/actors"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		threads, err := s.Engine.Request(s.Engine.GetThreadActor(), &actors.GetCountsMsg{})
		if err != nil {
			s.writeError(w, err)
			return
		}
		mutations, err := s.Engine.Request(s.Engine.GetMutationActor(), &actors.GetCountsMsg{})
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, api.HealthResponse{
			Status:           "healthy",
			MountedThreads:   threads.(int),
			MountedMutations: mutations.(int),
			ServerTime:       time.Now(),
		})
	}
}

// HandleSession returns the caller's profile and relationship sets.
func (s *Server) HandleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SessionResponse{User: sess.User(), Relationships: sess.Snapshot()})
	}
}
