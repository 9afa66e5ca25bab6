package handlers

import (
	"net/http"

	"snapfeed/internal/engine/actors"
	"snapfeed/internal/models"
	"snapfeed/internal/session"
)

// ThreadRequest names the thread a comment request operates on.
type ThreadRequest struct {
	Kind     models.EntityKind `json:"kind"`
	EntityID string            `json:"entityId"`
}

func (t ThreadRequest) target(sess *session.Session) actors.ThreadTarget {
	return actors.ThreadTarget{
		Viewer: sess.User(),
		Entity: models.EntityRef{Kind: t.Kind, ID: t.EntityID},
	}
}

// ComposeRequest drives the viewer's composer
type ComposeRequest struct {
	ThreadRequest
	Action    actors.ComposeAction `json:"action"`
	Text      string               `json:"text,omitempty"`
	CommentID string               `json:"commentId,omitempty"`
	UserID    string               `json:"userId,omitempty"`
}

// ExpandRequest toggles whether a root comment's replies are shown
type ExpandRequest struct {
	ThreadRequest
	CommentID string `json:"commentId"`
}

func threadFromQuery(r *http.Request) ThreadRequest {
	q := r.URL.Query()
	return ThreadRequest{Kind: models.EntityKind(q.Get("kind")), EntityID: q.Get("entityId")}
}

// answerThread sends msg to the thread supervisor and writes the view.
func (s *Server) answerThread(w http.ResponseWriter, msg interface{}) {
	result, err := s.Engine.Request(s.Engine.GetThreadActor(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleComments returns the thread view (GET, refetching when refresh=true)
// or deletes one of the viewer's comments (DELETE).
func (s *Server) HandleComments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		target := threadFromQuery(r).target(sess)

		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("refresh") == "true" {
				s.answerThread(w, &actors.RefreshThreadMsg{ThreadTarget: target})
				return
			}
			s.answerThread(w, &actors.OpenThreadMsg{ThreadTarget: target})

		case http.MethodDelete:
			s.answerThread(w, &actors.DeleteCommentMsg{
				ThreadTarget: target,
				CommentID:    r.URL.Query().Get("commentId"),
			})

		default:
			methodNotAllowed(w)
		}
	}
}

// HandleCompose applies a composer action and returns the view, including
// mention suggestions while the text ends in an @ token.
func (s *Server) HandleCompose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ComposeRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		s.answerThread(w, &actors.ComposeMsg{
			ThreadTarget: req.target(sess),
			Action:       req.Action,
			Text:         req.Text,
			CommentID:    req.CommentID,
			UserID:       req.UserID,
		})
	}
}

// HandleSubmit posts, replies or saves the edit held by the composer.
func (s *Server) HandleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ThreadRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		s.answerThread(w, &actors.SubmitCommentMsg{ThreadTarget: req.target(sess)})
	}
}

func (s *Server) HandleExpand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ExpandRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		s.answerThread(w, &actors.ToggleExpandedMsg{ThreadTarget: req.target(sess), CommentID: req.CommentID})
	}
}

// HandleCloseThread drops the viewer's thread state when the sheet is dismissed.
func (s *Server) HandleCloseThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		sess, ok := s.viewer(w, r)
		if !ok {
			return
		}
		var req ThreadRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if _, err := s.Engine.Request(s.Engine.GetThreadActor(), &actors.CloseThreadMsg{ThreadTarget: req.target(sess)}); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
	}
}
