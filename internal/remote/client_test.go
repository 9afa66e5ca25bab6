package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/database/dbtest"
	"snapfeed/internal/logging"
	"snapfeed/internal/models"
	"snapfeed/internal/notify"
	"snapfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []notify.Request
}

func (r *recordingNotifier) Dispatch(req notify.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recordingNotifier) targets() map[string]models.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]models.NotificationType{}
	for _, req := range r.reqs {
		out[req.ReceiverID] = req.Type
	}
	return out
}

func setup(t *testing.T) (*Client, *dbtest.FaultyDB, *recordingNotifier, models.EntityRef) {
	t.Helper()
	db := dbtest.New(database.NewMemoryDB())
	ref, err := dbtest.Seed(context.Background(), db, "alice", "bob", "carol", "dave")
	require.NoError(t, err)
	rec := &recordingNotifier{}
	return NewClient(db, rec, utils.NewMetricsCollector(), logging.NewTestLogger().Logger), db, rec, ref
}

func user(name string) models.User {
	return models.User{ID: "u-" + name, Username: name}
}

func TestCreateCommentNotifiesEachReceiverOnce(t *testing.T) {
	ctx := context.Background()
	client, _, rec, ref := setup(t)

	parent, err := client.CreateComment(ctx, ref, models.NewComment{Author: user("carol"), Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, map[string]models.NotificationType{"u-alice": models.NotifyComment}, rec.targets())

	rec.reqs = nil
	reply, err := client.CreateComment(ctx, ref, models.NewComment{
		Author:          user("bob"),
		Text:            " @carol @dave hi ",
		ParentID:        &parent.ID,
		ReplyToUsername: &parent.AuthorName,
		MentionIDs:      []string{"u-dave", "u-dave", "u-bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "@carol @dave hi", reply.Text)
	assert.Equal(t, []string{"u-dave", "u-bob"}, reply.MentionIDs)
	assert.Equal(t, map[string]models.NotificationType{
		"u-carol": models.NotifyReply,
		"u-dave":  models.NotifyMention,
		"u-alice": models.NotifyComment,
	}, rec.targets())
	assert.Len(t, rec.reqs, 3)

	entity, err := client.GetEntity(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, 2, entity.CommentCount)
}

func TestCreateCommentRejectsBlankText(t *testing.T) {
	client, db, _, ref := setup(t)
	_, err := client.CreateComment(context.Background(), ref, models.NewComment{Author: user("bob"), Text: "   "})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	assert.Equal(t, 0, db.Calls("SaveCommentAndIncrementCount"))

	_, err = client.CreateComment(context.Background(), models.EntityRef{Kind: models.EntityUser, ID: "u-bob"},
		models.NewComment{Author: user("bob"), Text: "hi"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestFetchCommentsDropsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	client, db, _, ref := setup(t)

	blank := ""
	for _, c := range []*models.Comment{
		{ID: "a", AuthorID: "u-bob", Text: "ok", CreatedAt: time.Unix(1, 0), ParentID: &blank},
		{ID: "b", AuthorID: "", Text: "no author", CreatedAt: time.Unix(2, 0)},
		{ID: "c", AuthorID: "u-bob", Text: "  ", CreatedAt: time.Unix(3, 0)},
	} {
		c.EntityID, c.EntityKind = ref.ID, ref.Kind
		require.NoError(t, db.SaveCommentAndIncrementCount(ctx, c))
	}

	list, err := client.FetchComments(ctx, ref)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	assert.Nil(t, list[0].ParentID)
}

func TestDeleteCommentDecrementsFloored(t *testing.T) {
	ctx := context.Background()
	client, db, _, ref := setup(t)

	c, err := client.CreateComment(ctx, ref, models.NewComment{Author: user("bob"), Text: "x"})
	require.NoError(t, err)
	require.NoError(t, db.SaveEntity(ctx, &models.Entity{Ref: ref, OwnerID: "u-alice"}))

	require.NoError(t, client.DeleteComment(ctx, ref, c.ID))
	e, _ := client.GetEntity(ctx, ref, "")
	assert.Equal(t, 0, e.CommentCount)
}

func TestSetRelationshipRoutesAndValidates(t *testing.T) {
	ctx := context.Background()
	client, db, _, ref := setup(t)

	require.NoError(t, client.SetRelationship(ctx, models.ActionLike, ref, "u-bob", true))
	require.NoError(t, client.SetRelationship(ctx, models.ActionSave, ref, "u-bob", true))
	require.NoError(t, client.SetRelationship(ctx, models.ActionFollow, models.EntityRef{Kind: models.EntityUser, ID: "u-alice"}, "u-bob", true))
	assert.Equal(t, 1, db.Calls("SetLike"))
	assert.Equal(t, 1, db.Calls("SetSave"))
	assert.Equal(t, 1, db.Calls("SetFollow"))

	err := client.SetRelationship(ctx, models.ActionSave, models.EntityRef{Kind: models.EntityReel, ID: "r1"}, "u-bob", true)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	err = client.ToggleFollow(ctx, "u-bob", "u-bob", true)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	db.Fail("SetLike", errors.New("offline"))
	assert.Error(t, client.ToggleLike(ctx, ref, "u-bob", false))
}

func TestSearchUsersReturnsCandidates(t *testing.T) {
	client, _, _, _ := setup(t)
	got, err := client.SearchUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = client.SearchUsers(context.Background(), "ca")
	require.NoError(t, err)
	assert.Equal(t, []models.MentionCandidate{{UserID: "u-carol", Username: "carol", DisplayName: "carol"}}, got)
}
