// Package dbtest wraps a DBAdapter with injectable failures and gates for tests.
package dbtest

import (
	"context"
	"sync"

	"snapfeed/internal/database"
	"snapfeed/internal/models"
)

// FaultyDB delegates to the wrapped adapter unless a failure is configured for
// the method. Held methods block until released or the context ends.
type FaultyDB struct {
	database.DBAdapter

	mu       sync.Mutex
	failures map[string]error
	gates    map[string]chan struct{}
	calls    map[string]int
}

func New(inner database.DBAdapter) *FaultyDB {
	return &FaultyDB{
		DBAdapter: inner,
		failures:  map[string]error{},
		gates:     map[string]chan struct{}{},
		calls:     map[string]int{},
	}
}

// Fail makes every later call to method return err.
func (f *FaultyDB) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// Clear removes a configured failure.
func (f *FaultyDB) Clear(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, method)
}

// Hold blocks calls to method until the returned release func runs.
func (f *FaultyDB) Hold(method string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[method] == ch {
				delete(f.gates, method)
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Calls reports how many times method was invoked.
func (f *FaultyDB) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FaultyDB) check(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	gate := f.gates[method]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[method]
}

func (f *FaultyDB) GetEntity(ctx context.Context, ref models.EntityRef, viewer string) (*models.Entity, error) {
	if err := f.check(ctx, "GetEntity"); err != nil {
		return nil, err
	}
	return f.DBAdapter.GetEntity(ctx, ref, viewer)
}

func (f *FaultyDB) SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error {
	if err := f.check(ctx, "SetLike"); err != nil {
		return err
	}
	return f.DBAdapter.SetLike(ctx, ref, userID, liked)
}

func (f *FaultyDB) SetSave(ctx context.Context, postID, userID string, saved bool) error {
	if err := f.check(ctx, "SetSave"); err != nil {
		return err
	}
	return f.DBAdapter.SetSave(ctx, postID, userID, saved)
}

func (f *FaultyDB) SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error {
	if err := f.check(ctx, "SetFollow"); err != nil {
		return err
	}
	return f.DBAdapter.SetFollow(ctx, targetUserID, followerID, following)
}

func (f *FaultyDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := f.check(ctx, "GetUser"); err != nil {
		return nil, err
	}
	return f.DBAdapter.GetUser(ctx, id)
}

func (f *FaultyDB) SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	if err := f.check(ctx, "SearchUsers"); err != nil {
		return nil, err
	}
	return f.DBAdapter.SearchUsers(ctx, prefix, limit)
}

func (f *FaultyDB) GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error) {
	if err := f.check(ctx, "GetEntityComments"); err != nil {
		return nil, err
	}
	return f.DBAdapter.GetEntityComments(ctx, ref)
}

func (f *FaultyDB) SaveCommentAndIncrementCount(ctx context.Context, c *models.Comment) error {
	if err := f.check(ctx, "SaveCommentAndIncrementCount"); err != nil {
		return err
	}
	return f.DBAdapter.SaveCommentAndIncrementCount(ctx, c)
}

func (f *FaultyDB) UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	if err := f.check(ctx, "UpdateCommentText"); err != nil {
		return err
	}
	return f.DBAdapter.UpdateCommentText(ctx, ref, commentID, text)
}

func (f *FaultyDB) DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error {
	if err := f.check(ctx, "DeleteCommentAndDecrementCount"); err != nil {
		return err
	}
	return f.DBAdapter.DeleteCommentAndDecrementCount(ctx, ref, commentID)
}

func (f *FaultyDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	if err := f.check(ctx, "SaveNotification"); err != nil {
		return err
	}
	return f.DBAdapter.SaveNotification(ctx, n)
}

func (f *FaultyDB) GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error) {
	if err := f.check(ctx, "GetNotifications"); err != nil {
		return nil, err
	}
	return f.DBAdapter.GetNotifications(ctx, receiverID, limit)
}
