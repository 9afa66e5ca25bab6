// Package remote is the data-access boundary used by the optimistic and
// comment-thread cores. Records read here are normalized and validated before
// callers see them.
package remote

import (
	"context"
	"strings"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/models"
	"snapfeed/internal/notify"
	"snapfeed/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SearchLimit caps mention suggestions.
const SearchLimit = 10

// Notifier queues fire-and-forget notifications.
type Notifier interface {
	Dispatch(req notify.Request)
}

type Client struct {
	db       database.DBAdapter
	notifier Notifier
	metrics  *utils.MetricsCollector
	logger   *zap.Logger
	now      func() time.Time
}

func NewClient(db database.DBAdapter, notifier Notifier, metrics *utils.MetricsCollector, logger *zap.Logger) *Client {
	return &Client{
		db:       db,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("remote"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) observe(op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.AddOperationLatency(op, time.Since(start))
	}
}

// FetchComments returns every valid comment of the entity, ascending by creation time.
func (c *Client) FetchComments(ctx context.Context, ref models.EntityRef) ([]models.Comment, error) {
	defer c.observe("FetchComments", time.Now())
	if err := ref.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}

	raw, err := c.db.GetEntityComments(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(raw))
	for _, rc := range raw {
		if rc == nil {
			continue
		}
		cm := rc.Normalized()
		if err := cm.Validate(); err != nil {
			c.logger.Warn("Dropping invalid comment record",
				zap.String("entity", ref.String()), zap.String("comment_id", cm.ID), zap.Error(err))
			continue
		}
		out = append(out, cm)
	}
	return out, nil
}

// CreateComment appends a comment, bumps the entity counter and queues
// notifications for the owner, the parent author and every mentioned user.
func (c *Client) CreateComment(ctx context.Context, ref models.EntityRef, in models.NewComment) (*models.Comment, error) {
	defer c.observe("CreateComment", time.Now())
	if err := ref.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	if !ref.Kind.Commentable() {
		return nil, utils.NewAppError(utils.ErrInvalidInput, string(ref.Kind)+" entities have no comments", nil)
	}
	if strings.TrimSpace(in.Author.ID) == "" {
		return nil, utils.NewUnauthorizedError("comment author required")
	}

	comment := models.Comment{
		ID:              uuid.NewString(),
		EntityID:        ref.ID,
		EntityKind:      ref.Kind,
		ParentID:        in.ParentID,
		AuthorID:        in.Author.ID,
		AuthorName:      in.Author.Username,
		AuthorAvatar:    in.Author.PhotoURL,
		Text:            strings.TrimSpace(in.Text),
		CreatedAt:       c.now(),
		ReplyToUsername: in.ReplyToUsername,
		MentionIDs:      dedupe(in.MentionIDs),
	}.Normalized()
	if err := comment.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid comment", err)
	}

	if err := c.db.SaveCommentAndIncrementCount(ctx, &comment); err != nil {
		return nil, err
	}

	c.notifyComment(ctx, ref, &comment, in.Author)
	return &comment, nil
}

func (c *Client) notifyComment(ctx context.Context, ref models.EntityRef, comment *models.Comment, author models.User) {
	if c.notifier == nil {
		return
	}

	ownerID := ""
	if entity, err := c.db.GetEntity(ctx, ref, author.ID); err == nil {
		ownerID = entity.OwnerID
	} else {
		c.logger.Warn("Could not resolve entity owner for notification", zap.String("entity", ref.String()), zap.Error(err))
	}

	parentAuthorID := ""
	if comment.ParentID != nil {
		if parent, err := c.db.GetComment(ctx, ref, *comment.ParentID); err == nil {
			parentAuthorID = parent.AuthorID
		} else {
			c.logger.Warn("Could not resolve parent comment for notification",
				zap.String("entity", ref.String()), zap.String("parent_id", *comment.ParentID), zap.Error(err))
		}
	}

	for _, target := range notify.CommentTargets(author.ID, ownerID, parentAuthorID, comment.MentionIDs) {
		r := ref
		c.notifier.Dispatch(notify.Request{ReceiverID: target.ReceiverID, Sender: author, Type: target.Type, Entity: &r})
	}
}

// UpdateComment replaces the text and marks the comment edited.
func (c *Client) UpdateComment(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	defer c.observe("UpdateComment", time.Now())
	text = strings.TrimSpace(text)
	if text == "" {
		return utils.NewAppError(utils.ErrInvalidInput, "comment text is empty", models.ErrCommentEmptyText)
	}
	return c.db.UpdateCommentText(ctx, ref, commentID, text)
}

// DeleteComment removes only the named record; its replies stay in place.
func (c *Client) DeleteComment(ctx context.Context, ref models.EntityRef, commentID string) error {
	defer c.observe("DeleteComment", time.Now())
	return c.db.DeleteCommentAndDecrementCount(ctx, ref, commentID)
}

// ToggleLike sets the actor's membership in the entity's likes.
func (c *Client) ToggleLike(ctx context.Context, ref models.EntityRef, actorID string, liked bool) error {
	defer c.observe("ToggleLike", time.Now())
	return c.db.SetLike(ctx, ref, actorID, liked)
}

// ToggleSave sets whether the actor has saved the post.
func (c *Client) ToggleSave(ctx context.Context, postID, actorID string, saved bool) error {
	defer c.observe("ToggleSave", time.Now())
	return c.db.SetSave(ctx, postID, actorID, saved)
}

// ToggleFollow sets whether the actor follows the target user.
func (c *Client) ToggleFollow(ctx context.Context, targetUserID, actorID string, following bool) error {
	defer c.observe("ToggleFollow", time.Now())
	if targetUserID == actorID {
		return utils.NewAppError(utils.ErrInvalidInput, "users cannot follow themselves", nil)
	}
	return c.db.SetFollow(ctx, targetUserID, actorID, following)
}

// SetRelationship routes an action to the matching toggle call.
func (c *Client) SetRelationship(ctx context.Context, action models.ActionKind, ref models.EntityRef, actorID string, active bool) error {
	if !action.Accepts(ref.Kind) {
		return utils.NewAppError(utils.ErrInvalidInput, string(action)+" does not apply to "+string(ref.Kind), nil)
	}
	switch action {
	case models.ActionLike:
		return c.ToggleLike(ctx, ref, actorID, active)
	case models.ActionSave:
		return c.ToggleSave(ctx, ref.ID, actorID, active)
	default:
		return c.ToggleFollow(ctx, ref.ID, actorID, active)
	}
}

// SearchUsers prefix-matches usernames. Nobody is excluded here; callers drop themselves.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.MentionCandidate, error) {
	defer c.observe("SearchUsers", time.Now())
	users, err := c.db.SearchUsers(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]models.MentionCandidate, 0, len(users))
	for _, u := range users {
		out = append(out, u.Candidate())
	}
	return out, nil
}

func (c *Client) GetEntity(ctx context.Context, ref models.EntityRef, viewerID string) (*models.Entity, error) {
	if err := ref.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	return c.db.GetEntity(ctx, ref, viewerID)
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	return c.db.GetUser(ctx, id)
}

func (c *Client) ListNotifications(ctx context.Context, receiverID string) ([]*models.Notification, error) {
	return c.db.GetNotifications(ctx, receiverID, 0)
}

func (c *Client) MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error {
	return c.db.MarkNotificationRead(ctx, receiverID, notificationID)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	return c.db.MarkAllNotificationsRead(ctx, receiverID)
}

// Notify queues a notification through the client's notifier, if any.
func (c *Client) Notify(req notify.Request) {
	if c.notifier != nil {
		c.notifier.Dispatch(req)
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
