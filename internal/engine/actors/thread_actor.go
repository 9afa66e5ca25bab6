package actors

import (
	stdctx "context"
	"time"

	"snapfeed/internal/comments"
	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ThreadTarget names one viewer's comment thread on an entity.
type ThreadTarget struct {
	Viewer models.User      `json:"-"`
	Entity models.EntityRef `json:"entity"`
}

type threadKey struct {
	viewerID string
	entity   models.EntityRef
}

func (t ThreadTarget) key() threadKey {
	return threadKey{viewerID: t.Viewer.ID, entity: t.Entity}
}

// ComposeAction selects what a ComposeMsg does to the composer.
type ComposeAction string

const (
	ComposeText    ComposeAction = "text"
	ComposeReply   ComposeAction = "reply"
	ComposeEdit    ComposeAction = "edit"
	ComposeCancel  ComposeAction = "cancel"
	ComposeMention ComposeAction = "mention"
)

// Message types for thread actors. Every message answers with a
// comments.View or an *utils.AppError.
type (
	OpenThreadMsg struct {
		ThreadTarget
	}

	RefreshThreadMsg struct {
		ThreadTarget
	}

	ComposeMsg struct {
		ThreadTarget
		Action    ComposeAction `json:"action"`
		Text      string        `json:"text,omitempty"`
		CommentID string        `json:"commentId,omitempty"`
		UserID    string        `json:"userId,omitempty"`
	}

	SubmitCommentMsg struct {
		ThreadTarget
	}

	DeleteCommentMsg struct {
		ThreadTarget
		CommentID string `json:"commentId"`
	}

	ToggleExpandedMsg struct {
		ThreadTarget
		CommentID string `json:"commentId"`
	}

	// CloseThreadMsg discards the viewer's thread state. Answers true.
	CloseThreadMsg struct {
		ThreadTarget
	}
)

type threadMsg interface {
	target() ThreadTarget
}

func (t ThreadTarget) target() ThreadTarget { return t }

// ThreadFactory builds the thread owned by a ThreadActor.
type ThreadFactory func(target ThreadTarget) *comments.Thread

// ThreadActor owns one comments.Thread and handles its messages one at a time.
type ThreadActor struct {
	thread    *comments.Thread
	loaded    bool
	metrics   *utils.MetricsCollector
	logger    *zap.Logger
	opTimeout time.Duration
}

func NewThreadActor(thread *comments.Thread, metrics *utils.MetricsCollector, logger *zap.Logger, opTimeout time.Duration) actor.Actor {
	return &ThreadActor{
		thread:    thread,
		metrics:   metrics,
		logger:    logger,
		opTimeout: opTimeout,
	}
}

func (a *ThreadActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug("Thread actor started", zap.String("pid", context.Self().String()))

	case *OpenThreadMsg:
		a.respond(context, "open_thread", func(ctx stdctx.Context) error { return nil })

	case *RefreshThreadMsg:
		a.respond(context, "refresh_thread", func(ctx stdctx.Context) error {
			return a.thread.Refresh(ctx)
		})

	case *ComposeMsg:
		a.respond(context, "compose", func(ctx stdctx.Context) error {
			return a.compose(ctx, msg)
		})

	case *SubmitCommentMsg:
		a.respond(context, "submit_comment", func(ctx stdctx.Context) error {
			return a.thread.Submit(ctx)
		})

	case *DeleteCommentMsg:
		a.respond(context, "delete_comment", func(ctx stdctx.Context) error {
			return a.thread.Delete(ctx, msg.CommentID)
		})

	case *ToggleExpandedMsg:
		a.respond(context, "toggle_expanded", func(ctx stdctx.Context) error {
			a.thread.ToggleExpanded(msg.CommentID)
			return nil
		})

	case *actor.Stopping:
		a.logger.Debug("Thread actor stopping")
	}
}

func (a *ThreadActor) compose(ctx stdctx.Context, msg *ComposeMsg) error {
	switch msg.Action {
	case ComposeText:
		a.thread.SetText(ctx, msg.Text)
		return nil
	case ComposeReply:
		return a.thread.StartReply(msg.CommentID)
	case ComposeEdit:
		return a.thread.StartEdit(msg.CommentID)
	case ComposeCancel:
		a.thread.Cancel()
		return nil
	case ComposeMention:
		return a.thread.SelectMention(msg.UserID)
	default:
		return utils.NewAppError(utils.ErrInvalidInput, "unknown compose action: "+string(msg.Action), nil)
	}
}

// respond loads the thread on first use, runs op and answers with the view.
func (a *ThreadActor) respond(context actor.Context, op string, fn func(ctx stdctx.Context) error) {
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.opTimeout)
	defer cancel()

	if !a.loaded {
		if err := a.thread.Refresh(ctx); err != nil {
			a.logger.Warn("Initial comment load failed", zap.Error(err))
			context.Respond(err)
			return
		}
		a.loaded = true
	}

	if err := fn(ctx); err != nil {
		context.Respond(err)
		return
	}
	a.metrics.AddOperationLatency(op, time.Since(startTime))
	context.Respond(a.thread.View())
}

// ThreadSupervisor spawns one ThreadActor per viewer and entity and forwards
// thread messages to it. Least recently used threads are stopped once more
// than the configured number are mounted.
type ThreadSupervisor struct {
	threads   *lru.Cache[threadKey, *actor.PID]
	evicted   []*actor.PID
	factory   ThreadFactory
	metrics   *utils.MetricsCollector
	logger    *zap.Logger
	opTimeout time.Duration
}

func NewThreadSupervisor(size int, factory ThreadFactory, metrics *utils.MetricsCollector, logger *zap.Logger, opTimeout time.Duration) actor.Actor {
	s := &ThreadSupervisor{
		factory:   factory,
		metrics:   metrics,
		logger:    logger.Named("threads"),
		opTimeout: opTimeout,
	}
	s.threads, _ = lru.NewWithEvict[threadKey, *actor.PID](max(1, size), func(_ threadKey, pid *actor.PID) {
		s.evicted = append(s.evicted, pid)
	})
	return s
}

func (s *ThreadSupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		s.logger.Info("Thread supervisor started", zap.String("pid", context.Self().String()))

	case *CloseThreadMsg:
		// removal runs the evict callback, which queues the pid for stopping
		s.threads.Remove(msg.key())
		s.stopEvicted(context)
		context.Respond(true)

	case threadMsg:
		target := msg.target()
		if err := target.Entity.Validate(); err != nil {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err))
			return
		}
		if !target.Entity.Kind.Commentable() {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, string(target.Entity.Kind)+" entities have no comments", nil))
			return
		}
		if target.Viewer.ID == "" {
			context.Respond(utils.NewUnauthorizedError("viewer required"))
			return
		}
		context.Forward(s.threadFor(context, target))

	case *GetCountsMsg:
		context.Respond(s.threads.Len())

	case *actor.Terminated:
		s.logger.Debug("Thread actor terminated", zap.String("pid", msg.Who.String()))
	}
}

func (s *ThreadSupervisor) threadFor(context actor.Context, target ThreadTarget) *actor.PID {
	key := target.key()
	if pid, ok := s.threads.Get(key); ok {
		return pid
	}

	thread := s.factory(target)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewThreadActor(thread, s.metrics, s.logger.With(zap.String("entity", target.Entity.String())), s.opTimeout)
	})
	pid := context.Spawn(props)
	s.threads.Add(key, pid)
	s.stopEvicted(context)
	return pid
}

func (s *ThreadSupervisor) stopEvicted(context actor.Context) {
	for _, pid := range s.evicted {
		context.Stop(pid)
	}
	s.evicted = s.evicted[:0]
}
