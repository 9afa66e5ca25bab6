package comments

import (
	"context"
	"sort"
	"sync"

	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"go.uber.org/zap"
)

// Remote is the slice of the data-access layer a thread needs.
type Remote interface {
	FetchComments(ctx context.Context, ref models.EntityRef) ([]models.Comment, error)
	CreateComment(ctx context.Context, ref models.EntityRef, in models.NewComment) (*models.Comment, error)
	UpdateComment(ctx context.Context, ref models.EntityRef, commentID, text string) error
	DeleteComment(ctx context.Context, ref models.EntityRef, commentID string) error
	SearchUsers(ctx context.Context, query string) ([]models.MentionCandidate, error)
}

// View is a snapshot of a thread for rendering.
type View struct {
	Entity      models.EntityRef          `json:"entity"`
	Roots       []*models.CommentNode     `json:"roots"`
	Count       int                       `json:"count"`
	Expanded    []string                  `json:"expanded"`
	Composer    ComposerView              `json:"composer"`
	Suggestions []models.MentionCandidate `json:"suggestions"`
	Submitting  bool                      `json:"submitting"`
}

// Thread owns one entity's comments for one viewer: the fetched list, the
// forest built from it, expanded roots and the composer.
type Thread struct {
	ref    models.EntityRef
	viewer models.User
	remote Remote
	logger *zap.Logger

	mu          sync.Mutex
	flat        []models.Comment
	forest      []*models.CommentNode
	expanded    map[string]struct{}
	composer    Composer
	suggestions []models.MentionCandidate
	submitting  bool
	queryGen    uint64
}

func NewThread(ref models.EntityRef, viewer models.User, remote Remote, logger *zap.Logger) *Thread {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Thread{
		ref:      ref,
		viewer:   viewer,
		remote:   remote,
		logger:   logger.With(zap.String("entity", ref.String())),
		forest:   []*models.CommentNode{},
		expanded: map[string]struct{}{},
	}
}

func (t *Thread) Entity() models.EntityRef { return t.ref }

// Refresh refetches the flat list and rebuilds the forest from scratch.
func (t *Thread) Refresh(ctx context.Context) error {
	list, err := t.remote.FetchComments(ctx, t.ref)
	if err != nil {
		return utils.NewActionFailedError("load comments", err)
	}
	forest := BuildForest(list)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.flat, t.forest = list, forest
	return nil
}

// Submit sends the composer draft. Edits update in place; everything else
// creates a comment, replies carrying the target as parent. On failure the
// composer keeps its text and target so the viewer can retry.
func (t *Thread) Submit(ctx context.Context) error {
	t.mu.Lock()
	if t.submitting {
		t.mu.Unlock()
		return utils.NewAppError(utils.ErrSubmitInFlight, "a comment is already being sent", nil)
	}
	draft, err := t.composer.Draft()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.submitting = true
	t.mu.Unlock()

	if err := t.send(ctx, draft); err != nil {
		t.mu.Lock()
		t.submitting = false
		t.mu.Unlock()
		t.logger.Warn("Comment submit failed", zap.String("mode", draft.Mode.String()), zap.Error(err))
		return err
	}

	t.mu.Lock()
	t.composer.Reset()
	t.suggestions = nil
	t.submitting = false
	t.mu.Unlock()

	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("Refetch after submit failed", zap.Error(err))
	}
	return nil
}

func (t *Thread) send(ctx context.Context, d Draft) error {
	if d.Mode == Editing {
		if err := t.remote.UpdateComment(ctx, t.ref, d.EditID, d.Text); err != nil {
			return utils.NewActionFailedError("update comment", err)
		}
		return nil
	}

	action := "post comment"
	if d.Mode == Replying {
		action = "post reply"
	}
	_, err := t.remote.CreateComment(ctx, t.ref, models.NewComment{
		Author:          t.viewer,
		Text:            d.Text,
		MentionIDs:      d.MentionIDs,
		ParentID:        d.ParentID,
		ReplyToUsername: d.ReplyToUsername,
	})
	if err != nil {
		return utils.NewActionFailedError(action, err)
	}
	return nil
}

// Delete removes one of the viewer's comments and refetches. Replies stay and
// are promoted to roots once their parent is gone.
func (t *Thread) Delete(ctx context.Context, commentID string) error {
	t.mu.Lock()
	c, err := t.ownedLocked(commentID)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	if err := t.remote.DeleteComment(ctx, t.ref, c.ID); err != nil {
		t.logger.Warn("Comment delete failed", zap.String("comment_id", c.ID), zap.Error(err))
		return utils.NewActionFailedError("delete comment", err)
	}

	t.mu.Lock()
	if target := t.composer.Target(); target != nil && target.ID == c.ID {
		t.composer.Reset()
		t.suggestions = nil
	}
	delete(t.expanded, c.ID)
	t.mu.Unlock()

	return t.Refresh(ctx)
}

// StartReply targets a fetched comment.
func (t *Thread) StartReply(commentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.findLocked(commentID)
	if !ok {
		return utils.NewCommentNotFoundError(commentID)
	}
	return t.composer.StartReply(c)
}

// StartEdit loads one of the viewer's comments into the composer.
func (t *Thread) StartEdit(commentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, err := t.ownedLocked(commentID)
	if err != nil {
		return err
	}
	t.composer.StartEdit(c)
	t.suggestions = nil
	return nil
}

// Cancel drops the draft and returns to Idle.
func (t *Thread) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.composer.Reset()
	t.suggestions = nil
	t.queryGen++
}

// SetText updates the draft and, when the trailing token is a mention,
// queries the user directory. Only the latest query's results are kept.
// A failed lookup clears suggestions and is only logged.
func (t *Thread) SetText(ctx context.Context, text string) []models.MentionCandidate {
	t.mu.Lock()
	t.composer.SetText(text)
	t.queryGen++
	gen := t.queryGen
	query, ok := t.composer.MentionQuery()
	if !ok {
		t.suggestions = nil
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	found, err := t.remote.SearchUsers(ctx, query)
	if err != nil {
		t.logger.Warn("Mention lookup failed", zap.String("query", query), zap.Error(err))
		found = nil
	}
	suggestions := make([]models.MentionCandidate, 0, len(found))
	for _, c := range found {
		if c.UserID != t.viewer.ID {
			suggestions = append(suggestions, c)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.queryGen {
		return append([]models.MentionCandidate(nil), t.suggestions...)
	}
	t.suggestions = suggestions
	return append([]models.MentionCandidate(nil), suggestions...)
}

// SelectMention completes the trailing token with a suggested user.
func (t *Thread) SelectMention(userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.suggestions {
		if c.UserID == userID {
			t.composer.SelectMention(c)
			t.suggestions = nil
			t.queryGen++
			return nil
		}
	}
	return utils.NewAppError(utils.ErrInvalidInput, "user is not among the mention suggestions", nil)
}

// ToggleExpanded flips whether a root's replies are shown and returns the new value.
func (t *Thread) ToggleExpanded(commentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.expanded[commentID]; ok {
		delete(t.expanded, commentID)
		return false
	}
	t.expanded[commentID] = struct{}{}
	return true
}

func (t *Thread) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	expanded := make([]string, 0, len(t.expanded))
	for id := range t.expanded {
		expanded = append(expanded, id)
	}
	sort.Strings(expanded)
	return View{
		Entity:      t.ref,
		Roots:       t.forest,
		Count:       len(t.flat),
		Expanded:    expanded,
		Composer:    t.composer.View(),
		Suggestions: append([]models.MentionCandidate{}, t.suggestions...),
		Submitting:  t.submitting,
	}
}

// Comments returns a copy of the flat list in fetch order.
func (t *Thread) Comments() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.flat...)
}

func (t *Thread) findLocked(id string) (models.Comment, bool) {
	for _, c := range t.flat {
		if c.ID == id {
			return c, true
		}
	}
	return models.Comment{}, false
}

func (t *Thread) ownedLocked(id string) (models.Comment, error) {
	c, ok := t.findLocked(id)
	if !ok {
		return models.Comment{}, utils.NewCommentNotFoundError(id)
	}
	if c.AuthorID != t.viewer.ID {
		return models.Comment{}, utils.NewAppError(utils.ErrForbidden, "only the author can change this comment", nil)
	}
	return c, nil
}
