// internal/database/memory.go
package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/utils"
)

type entityRecord struct {
	ownerID      string
	commentCount int
	saveCount    int
	likes        map[string]struct{}
}

// MemoryDB keeps everything in process. Used for local development and as the
// backend of the package tests.
type MemoryDB struct {
	mu            sync.RWMutex
	entities      map[models.EntityRef]*entityRecord
	users         map[string]*models.User
	comments      map[models.EntityRef][]models.Comment
	notifications map[string][]models.Notification // receiverId -> newest last
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		entities:      map[models.EntityRef]*entityRecord{},
		users:         map[string]*models.User{},
		comments:      map[models.EntityRef][]models.Comment{},
		notifications: map[string][]models.Notification{},
	}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

func (m *MemoryDB) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if err := entity.Ref.Validate(); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	if entity.Ref.Kind == models.EntityUser {
		return utils.NewAppError(utils.ErrInvalidInput, "users are saved with SaveUser", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entities[entity.Ref]
	if !ok {
		rec = &entityRecord{likes: map[string]struct{}{}}
		m.entities[entity.Ref] = rec
	}
	rec.ownerID = entity.OwnerID
	rec.commentCount = max(0, entity.CommentCount)
	rec.saveCount = max(0, entity.SaveCount)
	return nil
}

func (m *MemoryDB) GetEntity(ctx context.Context, ref models.EntityRef, requestingUserID string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ref.Kind == models.EntityUser {
		u, ok := m.users[ref.ID]
		if !ok {
			return nil, utils.NewEntityNotFoundError(ref)
		}
		return &models.Entity{Ref: ref, OwnerID: u.ID, FollowerCount: len(u.Followers)}, nil
	}

	rec, ok := m.entities[ref]
	if !ok {
		return nil, utils.NewEntityNotFoundError(ref)
	}
	_, liked := rec.likes[requestingUserID]
	return &models.Entity{
		Ref:           ref,
		OwnerID:       rec.ownerID,
		LikeCount:     len(rec.likes),
		CommentCount:  rec.commentCount,
		SaveCount:     rec.saveCount,
		LikedByViewer: liked,
	}, nil
}

func (m *MemoryDB) SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entities[ref]
	if !ok {
		return utils.NewEntityNotFoundError(ref)
	}
	if liked {
		rec.likes[userID] = struct{}{}
	} else {
		delete(rec.likes, userID)
	}
	return nil
}

func (m *MemoryDB) SetSave(ctx context.Context, postID, userID string, saved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := models.EntityRef{Kind: models.EntityPost, ID: postID}
	rec, ok := m.entities[ref]
	if !ok {
		return utils.NewEntityNotFoundError(ref)
	}
	u, ok := m.users[userID]
	if !ok {
		return utils.NewUserNotFoundError(userID)
	}

	var changed bool
	u.SavedPosts, changed = setMembership(u.SavedPosts, postID, saved)
	if changed {
		if saved {
			rec.saveCount++
		} else {
			rec.saveCount = max(0, rec.saveCount-1)
		}
	}
	return nil
}

func (m *MemoryDB) SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.users[targetUserID]
	if !ok {
		return utils.NewUserNotFoundError(targetUserID)
	}
	follower, ok := m.users[followerID]
	if !ok {
		return utils.NewUserNotFoundError(followerID)
	}
	target.Followers, _ = setMembership(target.Followers, followerID, following)
	follower.Following, _ = setMembership(follower.Following, targetUserID, following)
	return nil
}

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Username) == "" {
		return utils.NewAppError(utils.ErrInvalidInput, "user id and username are required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.users {
		if id != user.ID && strings.EqualFold(other.Username, user.Username) {
			return utils.NewAppError(utils.ErrDuplicate, "username already taken: "+user.Username, nil)
		}
	}
	cp := copyUser(user)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = cp
	return nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	return copyUser(u), nil
}

func (m *MemoryDB) SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	limit = clampLimit(limit, DefaultSearchLimit)
	prefix = strings.ToLower(prefix)

	m.mu.RLock()
	var hits []*models.User
	for _, u := range m.users {
		if strings.HasPrefix(strings.ToLower(u.Username), prefix) {
			hits = append(hits, copyUser(u))
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Username < hits[j].Username })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryDB) GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.comments[ref]
	out := make([]*models.Comment, len(stored))
	for i := range stored {
		c := copyComment(stored[i])
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDB) GetComment(ctx context.Context, ref models.EntityRef, commentID string) (*models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.comments[ref] {
		if c.ID == commentID {
			cp := copyComment(c)
			return &cp, nil
		}
	}
	return nil, utils.NewCommentNotFoundError(commentID)
}

func (m *MemoryDB) SaveCommentAndIncrementCount(ctx context.Context, comment *models.Comment) error {
	ref := comment.Ref()

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entities[ref]
	if !ok {
		return utils.NewEntityNotFoundError(ref)
	}
	m.comments[ref] = append(m.comments[ref], copyComment(*comment))
	rec.commentCount++
	return nil
}

func (m *MemoryDB) UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.comments[ref]
	for i := range list {
		if list[i].ID == commentID {
			list[i].Text = text
			list[i].IsEdited = true
			return nil
		}
	}
	return utils.NewCommentNotFoundError(commentID)
}

func (m *MemoryDB) DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.comments[ref]
	for i := range list {
		if list[i].ID != commentID {
			continue
		}
		m.comments[ref] = append(list[:i:i], list[i+1:]...)
		if rec, ok := m.entities[ref]; ok {
			rec.commentCount = max(0, rec.commentCount-1)
		}
		return nil
	}
	return utils.NewCommentNotFoundError(commentID)
}

func (m *MemoryDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ReceiverID] = append(m.notifications[n.ReceiverID], *n)
	return nil
}

func (m *MemoryDB) GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error) {
	limit = clampLimit(limit, DefaultNotificationLimit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.notifications[receiverID]
	out := make([]*models.Notification, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		n := stored[i]
		out = append(out, &n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDB) MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.notifications[receiverID]
	for i := range list {
		if list[i].ID == notificationID {
			list[i].Read = true
			return nil
		}
	}
	return utils.NewAppError(utils.ErrNotFound, "Notification not found: "+notificationID, nil)
}

func (m *MemoryDB) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.notifications[receiverID]
	for i := range list {
		list[i].Read = true
	}
	return nil
}

// setMembership adds or removes v and reports whether the list changed.
func setMembership(list []string, v string, present bool) ([]string, bool) {
	for i, x := range list {
		if x == v {
			if present {
				return list, false
			}
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	if !present {
		return list, false
	}
	return append(list, v), true
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.Followers = append([]string(nil), u.Followers...)
	cp.Following = append([]string(nil), u.Following...)
	cp.SavedPosts = append([]string(nil), u.SavedPosts...)
	return &cp
}

func copyComment(c models.Comment) models.Comment {
	if c.ParentID != nil {
		p := *c.ParentID
		c.ParentID = &p
	}
	if c.ReplyToUsername != nil {
		r := *c.ReplyToUsername
		c.ReplyToUsername = &r
	}
	c.MentionIDs = append([]string(nil), c.MentionIDs...)
	return c
}
