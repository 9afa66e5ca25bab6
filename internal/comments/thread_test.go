package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/database/dbtest"
	"snapfeed/internal/models"
	"snapfeed/internal/remote"
	"snapfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var bob = models.User{ID: "u-bob", Username: "bob", DisplayName: "bob"}

func newThread(t *testing.T) (*Thread, *dbtest.FaultyDB, models.EntityRef) {
	t.Helper()
	db := dbtest.New(database.NewMemoryDB())
	ref, err := dbtest.Seed(context.Background(), db, "alice", "bob", "carol", "dave")
	require.NoError(t, err)
	client := remote.NewClient(db, nil, utils.NewMetricsCollector(), zap.NewNop())
	return NewThread(ref, bob, client, zap.NewNop()), db, ref
}

func store(t *testing.T, db database.DBAdapter, ref models.EntityRef, cs ...models.Comment) {
	t.Helper()
	for _, c := range cs {
		c.EntityID, c.EntityKind, c.AuthorID, c.AuthorName = ref.ID, ref.Kind, "u-bob", "bob"
		require.NoError(t, db.SaveCommentAndIncrementCount(context.Background(), &c))
	}
}

func TestDeleteParentPromotesReplies(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	store(t, db, ref, comment("a", "", 1), comment("b", "a", 2), comment("c", "zzz", 3))

	require.NoError(t, th.Refresh(ctx))
	assert.Equal(t, []string{"a(b)", "c"}, shape(th.View().Roots))
	assert.True(t, th.ToggleExpanded("a"))

	require.NoError(t, th.Delete(ctx, "a"))
	view := th.View()
	assert.Equal(t, []string{"b", "c"}, shape(view.Roots))
	assert.Equal(t, 2, view.Count)
	assert.Empty(t, view.Expanded)

	var ids []string
	for _, c := range th.Comments() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	e, err := db.GetEntity(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, 2, e.CommentCount)
}

func TestSubmitReplyCarriesParent(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	store(t, db, ref, comment("a", "", 1))
	require.NoError(t, th.Refresh(ctx))

	require.NoError(t, th.StartReply("a"))
	th.SetText(ctx, "me too")
	require.NoError(t, th.Submit(ctx))

	view := th.View()
	assert.Equal(t, Idle, view.Composer.Mode)
	assert.Equal(t, "", view.Composer.Text)
	require.Len(t, view.Roots, 1)
	require.Len(t, view.Roots[0].Replies, 1)
	reply := view.Roots[0].Replies[0]
	assert.Equal(t, "me too", reply.Text)
	require.NotNil(t, reply.ReplyToUsername)
	assert.Equal(t, "bob", *reply.ReplyToUsername)
}

func TestSubmitEditUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	store(t, db, ref, comment("a", "", 1))
	require.NoError(t, th.Refresh(ctx))

	require.NoError(t, th.StartEdit("a"))
	assert.Equal(t, "a", th.View().Composer.Text)
	th.SetText(ctx, "fixed typo")
	require.NoError(t, th.Submit(ctx))

	view := th.View()
	require.Len(t, view.Roots, 1)
	assert.Equal(t, "fixed typo", view.Roots[0].Text)
	assert.True(t, view.Roots[0].IsEdited)
	assert.Equal(t, Idle, view.Composer.Mode)
	assert.Equal(t, 1, db.Calls("UpdateCommentText"))
}

func TestSubmitFailureKeepsComposer(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	store(t, db, ref, comment("a", "", 1))
	require.NoError(t, th.Refresh(ctx))
	db.Fail("SaveCommentAndIncrementCount", errors.New("offline"))

	require.NoError(t, th.StartReply("a"))
	th.SetText(ctx, "retry me")
	err := th.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, "Failed to post reply", err.(*utils.AppError).Message)

	view := th.View()
	assert.Equal(t, Replying, view.Composer.Mode)
	assert.Equal(t, "retry me", view.Composer.Text)
	assert.Equal(t, "a", view.Composer.TargetID)
	assert.False(t, view.Submitting)

	db.Clear("SaveCommentAndIncrementCount")
	require.NoError(t, th.Submit(ctx))
	assert.Equal(t, 2, th.View().Count)
}

func TestSubmitRejectedWhileInFlight(t *testing.T) {
	ctx := context.Background()
	th, db, _ := newThread(t)
	release := db.Hold("SaveCommentAndIncrementCount")

	th.SetText(ctx, "first")
	done := make(chan error, 1)
	go func() { done <- th.Submit(ctx) }()
	require.Eventually(t, func() bool { return th.View().Submitting }, time.Second, 5*time.Millisecond)

	err := th.Submit(ctx)
	assert.True(t, utils.IsErrorCode(err, utils.ErrSubmitInFlight))

	release()
	require.NoError(t, <-done)
	assert.Equal(t, 1, db.Calls("SaveCommentAndIncrementCount"))
	assert.Equal(t, 1, th.View().Count)
}

func TestMentionSuggestionsExcludeViewer(t *testing.T) {
	ctx := context.Background()
	th, db, _ := newThread(t)

	got := th.SetText(ctx, "hi @")
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.Username)
	}
	assert.Equal(t, []string{"alice", "carol", "dave"}, names)

	th.SetText(ctx, "hi @ca")
	th.SetText(ctx, "hi @car")
	assert.Equal(t, 3, db.Calls("SearchUsers"))

	require.NoError(t, th.SelectMention("u-carol"))
	assert.Equal(t, "hi @carol ", th.View().Composer.Text)
	assert.Empty(t, th.View().Suggestions)

	err := th.SelectMention("u-dave")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	db.Fail("SearchUsers", errors.New("offline"))
	assert.Empty(t, th.SetText(ctx, "hi @carol @d"))
}

func TestEditAndDeleteRequireAuthor(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	other := comment("x", "", 1)
	other.EntityID, other.EntityKind, other.AuthorID = ref.ID, ref.Kind, "u-carol"
	require.NoError(t, db.SaveCommentAndIncrementCount(ctx, &other))
	require.NoError(t, th.Refresh(ctx))

	assert.True(t, utils.IsErrorCode(th.StartEdit("x"), utils.ErrForbidden))
	assert.True(t, utils.IsErrorCode(th.Delete(ctx, "x"), utils.ErrForbidden))
	assert.True(t, utils.IsNotFound(th.StartReply("nope")))
	assert.Equal(t, 0, db.Calls("DeleteCommentAndDecrementCount"))
}

func TestDeleteFailureNamesAction(t *testing.T) {
	ctx := context.Background()
	th, db, ref := newThread(t)
	store(t, db, ref, comment("a", "", 1))
	require.NoError(t, th.Refresh(ctx))
	db.Fail("DeleteCommentAndDecrementCount", errors.New("offline"))

	err := th.Delete(ctx, "a")
	assert.True(t, utils.IsErrorCode(err, utils.ErrRemoteWrite))
	assert.Equal(t, 1, th.View().Count)
}
