package session

import (
	"context"
	"testing"

	"snapfeed/internal/database"
	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSeedsFromUser(t *testing.T) {
	s := New(models.User{ID: "u1", Username: "ann", SavedPosts: []string{"p1"}, Following: []string{"u2"}})
	assert.True(t, s.Has(models.ActionSave, models.EntityRef{Kind: models.EntityPost, ID: "p1"}))
	assert.True(t, s.Has(models.ActionFollow, models.EntityRef{Kind: models.EntityUser, ID: "u2"}))
	assert.False(t, s.Has(models.ActionLike, models.EntityRef{Kind: models.EntityPost, ID: "p1"}))
	assert.Nil(t, s.User().SavedPosts)
}

func TestApplyNotifiesSubscribers(t *testing.T) {
	s := New(models.User{ID: "u1"})
	ch, cancel := s.Subscribe()
	defer cancel()

	ref := models.EntityRef{Kind: models.EntityReel, ID: "r1"}
	s.Apply(Change{Action: models.ActionLike, Entity: ref, Active: true})
	s.Apply(Change{Action: models.ActionLike, Entity: ref, Active: true}) // no-op

	got := <-ch
	assert.Equal(t, Change{Action: models.ActionLike, Entity: ref, Active: true}, got)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected change %+v", extra)
	default:
	}
	assert.Equal(t, []models.EntityRef{ref}, s.Snapshot().Liked)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	s.Apply(Change{Action: models.ActionLike, Entity: ref, Active: false})
	assert.Empty(t, s.Snapshot().Liked)
}

func TestRegistryLoadsOnce(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryDB()
	require.NoError(t, db.SaveUser(ctx, &models.User{ID: "u1", Username: "ann"}))
	r := NewRegistry(db)

	a, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	b, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	r.Drop("u1")
	c, _ := r.Get(ctx, "u1")
	assert.NotSame(t, a, c)

	_, err = r.Get(ctx, "ghost")
	assert.True(t, utils.IsErrorCode(err, utils.ErrUserNotFound))
}
