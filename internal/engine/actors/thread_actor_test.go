package actors

import (
	"context"
	"testing"
	"time"

	"snapfeed/internal/comments"
	"snapfeed/internal/database"
	"snapfeed/internal/database/dbtest"
	"snapfeed/internal/models"
	"snapfeed/internal/remote"
	"snapfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var bob = models.User{ID: "u-bob", Username: "bob", DisplayName: "bob"}

func spawnThreads(t *testing.T, size int) (*actor.ActorSystem, *actor.PID, *dbtest.FaultyDB, models.EntityRef) {
	t.Helper()
	db := dbtest.New(database.NewMemoryDB())
	ref, err := dbtest.Seed(context.Background(), db, "alice", "bob", "carol")
	require.NoError(t, err)
	client := remote.NewClient(db, nil, utils.NewMetricsCollector(), zap.NewNop())

	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewThreadSupervisor(size, func(target ThreadTarget) *comments.Thread {
			return comments.NewThread(target.Entity, target.Viewer, client, zap.NewNop())
		}, utils.NewMetricsCollector(), zap.NewNop(), time.Second)
	})
	return system, system.Root.Spawn(props), db, ref
}

func request(t *testing.T, system *actor.ActorSystem, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	result, err := system.Root.RequestFuture(pid, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return result
}

func TestThreadActorComposeAndSubmit(t *testing.T) {
	system, pid, db, ref := spawnThreads(t, 8)
	target := ThreadTarget{Viewer: bob, Entity: ref}

	view := request(t, system, pid, &OpenThreadMsg{ThreadTarget: target}).(comments.View)
	assert.Equal(t, 0, view.Count)
	assert.Equal(t, comments.Idle, view.Composer.Mode)

	view = request(t, system, pid, &ComposeMsg{ThreadTarget: target, Action: ComposeText, Text: "hi @ca"}).(comments.View)
	require.Len(t, view.Suggestions, 1)
	assert.Equal(t, "carol", view.Suggestions[0].Username)

	view = request(t, system, pid, &ComposeMsg{ThreadTarget: target, Action: ComposeMention, UserID: "u-carol"}).(comments.View)
	assert.Equal(t, "hi @carol ", view.Composer.Text)

	view = request(t, system, pid, &SubmitCommentMsg{ThreadTarget: target}).(comments.View)
	require.Len(t, view.Roots, 1)
	assert.Equal(t, "hi @carol", view.Roots[0].Text)
	assert.Equal(t, []string{"u-carol"}, view.Roots[0].MentionIDs)

	rootID := view.Roots[0].ID
	view = request(t, system, pid, &ToggleExpandedMsg{ThreadTarget: target, CommentID: rootID}).(comments.View)
	assert.Equal(t, []string{rootID}, view.Expanded)

	view = request(t, system, pid, &DeleteCommentMsg{ThreadTarget: target, CommentID: rootID}).(comments.View)
	assert.Empty(t, view.Roots)
	assert.Equal(t, 1, db.Calls("DeleteCommentAndDecrementCount"))
}

func TestThreadActorRespondsWithErrors(t *testing.T) {
	system, pid, _, ref := spawnThreads(t, 8)
	target := ThreadTarget{Viewer: bob, Entity: ref}

	result := request(t, system, pid, &SubmitCommentMsg{ThreadTarget: target})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	result = request(t, system, pid, &ComposeMsg{ThreadTarget: target, Action: "shout"})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	result = request(t, system, pid, &OpenThreadMsg{ThreadTarget: ThreadTarget{Viewer: bob, Entity: models.EntityRef{Kind: models.EntityUser, ID: "u-bob"}}})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	result = request(t, system, pid, &OpenThreadMsg{ThreadTarget: ThreadTarget{Entity: ref}})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrUnauthorized))
}

func TestThreadSupervisorEvictsLeastRecentlyUsed(t *testing.T) {
	system, pid, db, ref := spawnThreads(t, 1)
	carol := models.User{ID: "u-carol", Username: "carol"}

	request(t, system, pid, &OpenThreadMsg{ThreadTarget: ThreadTarget{Viewer: bob, Entity: ref}})
	request(t, system, pid, &ComposeMsg{ThreadTarget: ThreadTarget{Viewer: bob, Entity: ref}, Action: ComposeText, Text: "draft"})
	request(t, system, pid, &OpenThreadMsg{ThreadTarget: ThreadTarget{Viewer: carol, Entity: ref}})
	assert.Equal(t, 1, request(t, system, pid, &GetCountsMsg{}))

	// bob's thread was evicted, so his draft is gone and the list is refetched
	view := request(t, system, pid, &OpenThreadMsg{ThreadTarget: ThreadTarget{Viewer: bob, Entity: ref}}).(comments.View)
	assert.Equal(t, "", view.Composer.Text)
	assert.Equal(t, 3, db.Calls("GetEntityComments"))

	assert.Equal(t, true, request(t, system, pid, &CloseThreadMsg{ThreadTarget: ThreadTarget{Viewer: bob, Entity: ref}}))
	assert.Equal(t, 0, request(t, system, pid, &GetCountsMsg{}))
}
