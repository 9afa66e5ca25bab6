package engine

import (
	"time"

	"snapfeed/internal/comments"
	"snapfeed/internal/engine/actors"
	"snapfeed/internal/optimistic"
	"snapfeed/internal/remote"
	"snapfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// Options sizes the engine.
type Options struct {
	MountedThreads   int
	MountedMutations int
	WriteWorkers     int
	RequestTimeout   time.Duration
}

// Engine coordinates communication between actors
type Engine struct {
	system         *actor.ActorSystem
	threadActor    *actor.PID
	mutationActor  *actor.PID
	writes         *workerpool.WorkerPool
	requestTimeout time.Duration
}

func NewEngine(system *actor.ActorSystem, client *remote.Client, notices optimistic.NoticeSink, metrics *utils.MetricsCollector, logger *zap.Logger, opts Options) *Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.WriteWorkers <= 0 {
		opts.WriteWorkers = 4
	}
	context := system.Root
	writes := workerpool.New(opts.WriteWorkers)

	// Spawn thread supervisor
	threadProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewThreadSupervisor(opts.MountedThreads, func(t actors.ThreadTarget) *comments.Thread {
			return comments.NewThread(t.Entity, t.Viewer, client, logger.Named("comments"))
		}, metrics, logger, opts.RequestTimeout)
	})
	threadPID := context.Spawn(threadProps)

	// Spawn mutation registry
	mutationProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewMutationRegistry(opts.MountedMutations, actors.MutationDeps{
			Remote:  client,
			Notices: notices,
			Metrics: metrics,
			Logger:  logger,
			Run:     writes.Submit,
		}, opts.RequestTimeout)
	})
	mutationPID := context.Spawn(mutationProps)

	return &Engine{
		system:         system,
		threadActor:    threadPID,
		mutationActor:  mutationPID,
		writes:         writes,
		requestTimeout: opts.RequestTimeout,
	}
}

// GetThreadActor returns the PID of the thread supervisor
func (e *Engine) GetThreadActor() *actor.PID {
	return e.threadActor
}

// GetMutationActor returns the PID of the mutation registry
func (e *Engine) GetMutationActor() *actor.PID {
	return e.mutationActor
}

// Request sends msg to pid and waits for the answer. An error answer is
// returned as the error; a timed out future becomes ErrActorTimeout.
func (e *Engine) Request(pid *actor.PID, msg interface{}) (interface{}, error) {
	result, err := e.system.Root.RequestFuture(pid, msg, e.requestTimeout).Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError(pid.GetId())
	}
	if err, ok := result.(error); ok {
		return nil, err
	}
	return result, nil
}

// Stop stops the actors and waits for queued remote writes.
func (e *Engine) Stop() {
	e.system.Root.Stop(e.threadActor)
	e.system.Root.Stop(e.mutationActor)
	e.writes.StopWait()
}
