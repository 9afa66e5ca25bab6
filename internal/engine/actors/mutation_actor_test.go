package actors

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/database/dbtest"
	"snapfeed/internal/models"
	"snapfeed/internal/optimistic"
	"snapfeed/internal/remote"
	"snapfeed/internal/session"
	"snapfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnMutations(t *testing.T) (*actor.ActorSystem, *actor.PID, *dbtest.FaultyDB, *optimistic.NoticeLog, models.EntityRef) {
	t.Helper()
	db := dbtest.New(database.NewMemoryDB())
	ref, err := dbtest.Seed(context.Background(), db, "alice", "bob")
	require.NoError(t, err)
	metrics := utils.NewMetricsCollector()
	client := remote.NewClient(db, nil, metrics, zap.NewNop())
	notices := &optimistic.NoticeLog{}

	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMutationRegistry(2, MutationDeps{Remote: client, Notices: notices, Metrics: metrics}, time.Second)
	})
	return system, system.Root.Spawn(props), db, notices, ref
}

func waitSettled(t *testing.T, p *optimistic.Pending) optimistic.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestMutationRegistryTogglesLike(t *testing.T) {
	system, pid, db, _, ref := spawnMutations(t)
	sess := session.New(bob)

	res := request(t, system, pid, &ToggleActionMsg{Session: sess, Action: models.ActionLike, Entity: ref}).(*ToggleResult)
	assert.True(t, res.State.Active)
	assert.Equal(t, 1, res.State.Count)
	assert.Equal(t, utils.ToggleApplied, waitSettled(t, res.Pending).Outcome)

	state := request(t, system, pid, &GetActionMsg{Session: sess, Action: models.ActionLike, Entity: ref}).(models.SocialAction)
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.Count)
	assert.True(t, sess.Has(models.ActionLike, ref))

	// an outside write shows up after reconcile
	require.NoError(t, db.SetLike(context.Background(), ref, "u-alice", true))
	state = request(t, system, pid, &ReconcileActionMsg{Session: sess, Action: models.ActionLike, Entity: ref}).(models.SocialAction)
	assert.Equal(t, 2, state.Count)
}

func TestMutationRegistryRevertsOnFailure(t *testing.T) {
	system, pid, db, notices, ref := spawnMutations(t)
	sess := session.New(bob)
	db.Fail("SetSave", errors.New("permission denied"))

	res := request(t, system, pid, &ToggleActionMsg{Session: sess, Action: models.ActionSave, Entity: ref}).(*ToggleResult)
	assert.True(t, res.State.Active)
	settled := waitSettled(t, res.Pending)
	assert.Equal(t, utils.ToggleReverted, settled.Outcome)
	assert.False(t, settled.State.Active)
	assert.Equal(t, 0, settled.State.Count)
	require.Len(t, notices.All(), 1)
	assert.False(t, sess.Has(models.ActionSave, ref))
}

func TestMutationRegistryValidates(t *testing.T) {
	system, pid, _, _, ref := spawnMutations(t)
	sess := session.New(bob)

	result := request(t, system, pid, &ToggleActionMsg{Session: sess, Action: models.ActionFollow, Entity: ref})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	result = request(t, system, pid, &ToggleActionMsg{Session: sess, Action: models.ActionFollow, Entity: models.EntityRef{Kind: models.EntityUser, ID: "u-bob"}})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrInvalidInput))

	result = request(t, system, pid, &ToggleActionMsg{Action: models.ActionLike, Entity: ref})
	assert.True(t, utils.IsErrorCode(result.(error), utils.ErrUnauthorized))

	result = request(t, system, pid, &GetActionMsg{Session: sess, Action: models.ActionLike, Entity: models.EntityRef{Kind: models.EntityPost, ID: "missing"}})
	assert.True(t, utils.IsNotFound(result.(error)))
}

func TestMutationRegistryIsBounded(t *testing.T) {
	system, pid, _, _, ref := spawnMutations(t)
	sess := session.New(bob)
	alice := models.EntityRef{Kind: models.EntityUser, ID: "u-alice"}

	request(t, system, pid, &GetActionMsg{Session: sess, Action: models.ActionLike, Entity: ref})
	request(t, system, pid, &GetActionMsg{Session: sess, Action: models.ActionSave, Entity: ref})
	request(t, system, pid, &GetActionMsg{Session: sess, Action: models.ActionFollow, Entity: alice})
	assert.Equal(t, 2, request(t, system, pid, &GetCountsMsg{}))
}
