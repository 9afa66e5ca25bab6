package engine

import (
	"context"
	"testing"
	"time"

	"snapfeed/internal/comments"
	"snapfeed/internal/database"
	"snapfeed/internal/database/dbtest"
	"snapfeed/internal/engine/actors"
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

func newTestEngine(t *testing.T) (*Engine, models.EntityRef) {
	t.Helper()
	db := dbtest.New(database.NewMemoryDB())
	ref, err := dbtest.Seed(context.Background(), db, "alice", "bob")
	require.NoError(t, err)
	metrics := utils.NewMetricsCollector()
	client := remote.NewClient(db, nil, metrics, zap.NewNop())

	e := NewEngine(actor.NewActorSystem(), client, &optimistic.NoticeLog{}, metrics, zap.NewNop(), Options{
		MountedThreads:   4,
		MountedMutations: 4,
		WriteWorkers:     2,
		RequestTimeout:   time.Second,
	})
	t.Cleanup(e.Stop)
	return e, ref
}

func TestEngineRoutesToActors(t *testing.T) {
	e, ref := newTestEngine(t)
	bob := models.User{ID: "u-bob", Username: "bob"}

	result, err := e.Request(e.GetThreadActor(), &actors.OpenThreadMsg{ThreadTarget: actors.ThreadTarget{Viewer: bob, Entity: ref}})
	require.NoError(t, err)
	assert.Equal(t, ref, result.(comments.View).Entity)

	result, err = e.Request(e.GetMutationActor(), &actors.ToggleActionMsg{Session: session.New(bob), Action: models.ActionLike, Entity: ref})
	require.NoError(t, err)
	toggled := result.(*actors.ToggleResult)
	assert.True(t, toggled.State.Active)
	<-toggled.Pending.Done()
}

func TestEngineReturnsErrorAnswers(t *testing.T) {
	e, ref := newTestEngine(t)

	_, err := e.Request(e.GetMutationActor(), &actors.ToggleActionMsg{Action: models.ActionLike, Entity: ref})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
}

func TestEngineRequestTimesOut(t *testing.T) {
	e, _ := newTestEngine(t)
	silent := e.system.Root.Spawn(actor.PropsFromFunc(func(actor.Context) {}))

	_, err := e.Request(silent, "ping")
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
}
