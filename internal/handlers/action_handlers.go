package handlers

import (
	"net/http"

	"snapfeed/internal/api"
	"snapfeed/internal/engine/actors"
	"snapfeed/internal/models"
)

// ActionRequest names one togglable relationship of the caller.
type ActionRequest struct {
	Action   models.ActionKind `json:"action"`
	Kind     models.EntityKind `json:"kind"`
	EntityID string            `json:"entityId"`
}

func (a ActionRequest) entity() models.EntityRef {
	return models.EntityRef{Kind: a.Kind, ID: a.EntityID}
}

// HandleToggle flips a like, save or follow. The answer carries the optimistic
// state and does not wait for the remote write; a failed write is pushed to
// the caller's websocket as a toggle_reverted event.
func (s *Server) HandleToggle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ActionRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		result, err := s.Engine.Request(s.Engine.GetMutationActor(), &actors.ToggleActionMsg{
			Session: sess,
			Action:  req.Action,
			Entity:  req.entity(),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, api.ToggleResponse{Success: true, State: result.(*actors.ToggleResult).State})
	}
}

// HandleAction returns the displayed state of one relationship.
func (s *Server) HandleAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		req := ActionRequest{
			Action:   models.ActionKind(q.Get("action")),
			Kind:     models.EntityKind(q.Get("kind")),
			EntityID: q.Get("entityId"),
		}

		result, err := s.Engine.Request(s.Engine.GetMutationActor(), &actors.GetActionMsg{
			Session: sess,
			Action:  req.Action,
			Entity:  req.entity(),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleReconcile refetches the stored counter and membership.
func (s *Server) HandleReconcile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ActionRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		result, err := s.Engine.Request(s.Engine.GetMutationActor(), &actors.ReconcileActionMsg{
			Session: sess,
			Action:  req.Action,
			Entity:  req.entity(),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
