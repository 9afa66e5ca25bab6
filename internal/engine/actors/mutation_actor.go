package actors

import (
	stdctx "context"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/optimistic"
	"snapfeed/internal/session"
	"snapfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// GetCountsMsg asks a supervisor how many children it has mounted. Answers int.
type GetCountsMsg struct{}

// Message types for the mutation registry.
type (
	// ToggleActionMsg flips one relationship. Answers *ToggleResult.
	ToggleActionMsg struct {
		Session *session.Session
		Action  models.ActionKind
		Entity  models.EntityRef
	}

	// GetActionMsg answers the displayed models.SocialAction, seeding it if needed.
	GetActionMsg struct {
		Session *session.Session
		Action  models.ActionKind
		Entity  models.EntityRef
	}

	// ReconcileActionMsg refetches the entity and reseeds the mutation.
	// Answers models.SocialAction.
	ReconcileActionMsg struct {
		Session *session.Session
		Action  models.ActionKind
		Entity  models.EntityRef
	}
)

// ToggleResult carries the optimistic state and the handle on the pending write.
type ToggleResult struct {
	State   models.SocialAction
	Pending *optimistic.Pending
}

// ActionRemote is what mutations need from the data-access layer.
type ActionRemote interface {
	optimistic.Writer
	optimistic.OwnerNotifier
	GetEntity(ctx stdctx.Context, ref models.EntityRef, viewerID string) (*models.Entity, error)
}

// MutationDeps wires the mutations a registry creates.
type MutationDeps struct {
	Remote  ActionRemote
	Notices optimistic.NoticeSink
	Metrics *utils.MetricsCollector
	Logger  *zap.Logger
	Run     func(task func())
}

type mutationKey struct {
	viewerID string
	action   models.ActionKind
	entity   models.EntityRef
}

// MutationRegistry keeps the mounted optimistic mutations, one per viewer,
// action and entity, evicting the least recently used.
type MutationRegistry struct {
	mutations *lru.Cache[mutationKey, *optimistic.Mutation]
	deps      MutationDeps
	logger    *zap.Logger
	opTimeout time.Duration
}

func NewMutationRegistry(size int, deps MutationDeps, opTimeout time.Duration) actor.Actor {
	cache, _ := lru.New[mutationKey, *optimistic.Mutation](max(1, size))
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &MutationRegistry{
		mutations: cache,
		deps:      deps,
		logger:    deps.Logger.Named("mutations"),
		opTimeout: opTimeout,
	}
}

func (a *MutationRegistry) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Info("Mutation registry started", zap.String("pid", context.Self().String()))

	case *ToggleActionMsg:
		startTime := time.Now()
		m, err := a.mutation(msg.Session, msg.Action, msg.Entity)
		if err != nil {
			context.Respond(err)
			return
		}
		p := m.Toggle(stdctx.Background())
		a.deps.Metrics.AddOperationLatency("toggle_"+string(msg.Action), time.Since(startTime))
		context.Respond(&ToggleResult{State: p.Optimistic, Pending: p})

	case *GetActionMsg:
		m, err := a.mutation(msg.Session, msg.Action, msg.Entity)
		if err != nil {
			context.Respond(err)
			return
		}
		context.Respond(m.State())

	case *ReconcileActionMsg:
		m, err := a.mutation(msg.Session, msg.Action, msg.Entity)
		if err != nil {
			context.Respond(err)
			return
		}
		state, err := a.fetch(msg.Session, msg.Action, msg.Entity)
		if err != nil {
			context.Respond(err)
			return
		}
		m.Reconcile(state.active, state.count)
		context.Respond(m.State())

	case *GetCountsMsg:
		context.Respond(a.mutations.Len())
	}
}

func (a *MutationRegistry) mutation(sess *session.Session, action models.ActionKind, ref models.EntityRef) (*optimistic.Mutation, error) {
	if sess == nil {
		return nil, utils.NewUnauthorizedError("session required")
	}
	if err := ref.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	if !action.Accepts(ref.Kind) {
		return nil, utils.NewAppError(utils.ErrInvalidInput, string(action)+" does not apply to "+string(ref.Kind), nil)
	}
	if action == models.ActionFollow && ref.ID == sess.UserID() {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "users cannot follow themselves", nil)
	}

	key := mutationKey{viewerID: sess.UserID(), action: action, entity: ref}
	if m, ok := a.mutations.Get(key); ok {
		return m, nil
	}

	seed, err := a.fetch(sess, action, ref)
	if err != nil {
		return nil, err
	}
	viewer := sess.User()
	m := optimistic.New(optimistic.Config{
		State: models.SocialAction{
			Action:  action,
			Entity:  ref,
			ActorID: viewer.ID,
			Active:  seed.active,
			Count:   seed.count,
		},
		OwnerID: seed.ownerID,
		Actor:   viewer,
		Writer:  a.deps.Remote,
		Owner:   a.deps.Remote,
		Notices: a.deps.Notices,
		Session: sess,
		Metrics: a.deps.Metrics,
		Logger:  a.deps.Logger.Named("optimistic"),
		Run:     a.deps.Run,
	})
	a.mutations.Add(key, m)
	return m, nil
}

type seedState struct {
	ownerID string
	active  bool
	count   int
}

// fetch reads the stored counter and the viewer's membership.
func (a *MutationRegistry) fetch(sess *session.Session, action models.ActionKind, ref models.EntityRef) (seedState, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.opTimeout)
	defer cancel()

	entity, err := a.deps.Remote.GetEntity(ctx, ref, sess.UserID())
	if err != nil {
		return seedState{}, err
	}
	s := seedState{ownerID: entity.OwnerID}
	switch action {
	case models.ActionLike:
		s.active, s.count = entity.LikedByViewer, entity.LikeCount
	case models.ActionSave:
		s.active, s.count = sess.Has(action, ref), entity.SaveCount
	case models.ActionFollow:
		s.active, s.count = sess.Has(action, ref), entity.FollowerCount
	}
	return s, nil
}
