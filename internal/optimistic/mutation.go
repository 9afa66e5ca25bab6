// Package optimistic applies like/save/follow toggles locally before the
// remote write settles, reverting when the write fails.
package optimistic

import (
	"context"
	"sync"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/notify"
	"snapfeed/internal/session"
	"snapfeed/internal/utils"

	"go.uber.org/zap"
)

const defaultWriteTimeout = 15 * time.Second

// Writer performs the remote relationship write. active is the intended membership.
type Writer interface {
	SetRelationship(ctx context.Context, action models.ActionKind, ref models.EntityRef, actorID string, active bool) error
}

// OwnerNotifier queues the fire-and-forget notification for the entity owner.
type OwnerNotifier interface {
	Notify(req notify.Request)
}

// Config wires a Mutation. State, Actor and Writer are required.
type Config struct {
	State   models.SocialAction
	OwnerID string
	Actor   models.User

	Writer  Writer
	Owner   OwnerNotifier
	Notices NoticeSink
	Session *session.Session
	Metrics *utils.MetricsCollector
	Logger  *zap.Logger

	// Run executes background writes; defaults to a new goroutine.
	Run          func(task func())
	WriteTimeout time.Duration
}

// Result is the settled outcome of one toggle.
type Result struct {
	Outcome string              // utils.ToggleApplied, ToggleReverted or ToggleSuperseded
	State   models.SocialAction // displayed state right after settling
	Err     error
}

// Pending is returned by Toggle. Optimistic is the state shown immediately.
type Pending struct {
	Optimistic models.SocialAction
	done       chan struct{}
	result     Result
}

// Done is closed once the remote write has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the remote write settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type write struct {
	gen     uint64
	ctx     context.Context
	prev    models.SocialAction
	next    models.SocialAction
	pending *Pending
}

// Mutation owns the displayed state of one togglable relationship.
//
// Remote writes run one at a time in toggle order. A failed write reverts the
// display only when it belongs to the latest toggle; it then restores the last
// state the server confirmed, which is the pre-toggle state whenever no other
// toggle overlapped it.
type Mutation struct {
	cfg Config

	mu        sync.Mutex
	state     models.SocialAction
	confirmed models.SocialAction
	gen       uint64
	queue     []write
	draining  bool

	subs   map[int]chan models.SocialAction
	nextID int
}

func New(cfg Config) *Mutation {
	if cfg.Run == nil {
		cfg.Run = func(task func()) { go task() }
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.State.Count = max(0, cfg.State.Count)
	if cfg.State.ActorID == "" {
		cfg.State.ActorID = cfg.Actor.ID
	}
	return &Mutation{
		cfg:       cfg,
		state:     cfg.State,
		confirmed: cfg.State,
		subs:      map[int]chan models.SocialAction{},
	}
}

// State returns the displayed state.
func (m *Mutation) State() models.SocialAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle flips the displayed state now and queues the remote write.
// The write is not tied to ctx cancellation; only ctx values are kept.
func (m *Mutation) Toggle(ctx context.Context) *Pending {
	m.mu.Lock()
	prev := m.state
	next := flip(prev)
	m.gen++
	p := &Pending{Optimistic: next, done: make(chan struct{})}
	m.state = next
	m.publishLocked(next)

	m.queue = append(m.queue, write{gen: m.gen, ctx: context.WithoutCancel(ctx), prev: prev, next: next, pending: p})
	start := !m.draining
	m.draining = true
	m.mu.Unlock()

	if start {
		m.cfg.Run(m.drain)
	}
	return p
}

// Reconcile reseeds from a refetch. In-flight failures no longer revert past it.
func (m *Mutation) Reconcile(active bool, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.state.Active, m.state.Count = active, max(0, count)
	m.confirmed = m.state
	m.publishLocked(m.state)
}

// Subscribe streams displayed states. Slow readers only see the latest one.
func (m *Mutation) Subscribe() (<-chan models.SocialAction, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan models.SocialAction, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Idle reports whether no remote write is queued or running.
func (m *Mutation) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.draining
}

func (m *Mutation) publishLocked(s models.SocialAction) {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (m *Mutation) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		w := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.execute(w)
	}
}

func (m *Mutation) execute(w write) {
	s := w.next
	ctx, cancel := context.WithTimeout(w.ctx, m.cfg.WriteTimeout)
	err := m.safeWrite(ctx, s)
	cancel()

	var res Result
	if err == nil {
		res = m.applied(w)
	} else {
		res = m.failed(w, err)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordToggle(string(s.Action), res.Outcome)
	}
	w.pending.result = res
	close(w.pending.done)
}

// safeWrite turns a panicking writer into an error.
func (m *Mutation) safeWrite(ctx context.Context, s models.SocialAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.NewAppError(utils.ErrRemoteWrite, "remote write panicked", nil)
			m.cfg.Logger.Error("Remote write panicked", zap.Any("panic", r), zap.String("entity", s.Entity.String()))
		}
	}()
	return m.cfg.Writer.SetRelationship(ctx, s.Action, s.Entity, s.ActorID, s.Active)
}

func (m *Mutation) applied(w write) Result {
	m.mu.Lock()
	m.confirmed = w.next
	state := m.state
	m.mu.Unlock()

	if m.cfg.Session != nil {
		m.cfg.Session.Apply(session.Change{Action: w.next.Action, Entity: w.next.Entity, Active: w.next.Active})
	}
	if !w.prev.Active && w.next.Active {
		m.notifyOwner(w.next)
	}
	return Result{Outcome: utils.ToggleApplied, State: state}
}

func (m *Mutation) failed(w write, err error) Result {
	m.mu.Lock()
	latest := w.gen == m.gen
	if latest {
		m.state = m.confirmed
		m.publishLocked(m.state)
	}
	state := m.state
	m.mu.Unlock()

	fields := []zap.Field{
		zap.String("action", string(w.next.Action)),
		zap.String("entity", w.next.Entity.String()),
		zap.String("actor_id", w.next.ActorID),
		zap.Error(err),
	}
	if !latest {
		m.cfg.Logger.Warn("Remote write failed for a superseded toggle", fields...)
		return Result{Outcome: utils.ToggleSuperseded, State: state, Err: err}
	}

	m.cfg.Logger.Warn("Remote write failed, reverted toggle", fields...)
	if m.cfg.Notices != nil {
		m.cfg.Notices.Notice(Notice{
			ActorID: w.next.ActorID,
			Action:  w.next.Action,
			Entity:  w.next.Entity,
			Message: failureMessage(w.next),
			State:   state,
		})
	}
	return Result{Outcome: utils.ToggleReverted, State: state, Err: err}
}

func (m *Mutation) notifyOwner(s models.SocialAction) {
	if m.cfg.Owner == nil || m.cfg.OwnerID == "" || m.cfg.OwnerID == s.ActorID {
		return
	}
	t := models.NotifyLike
	if s.Action == models.ActionFollow {
		t = models.NotifyFollow
	} else if s.Action != models.ActionLike {
		return
	}
	ref := s.Entity
	m.cfg.Owner.Notify(notify.Request{ReceiverID: m.cfg.OwnerID, Sender: m.cfg.Actor, Type: t, Entity: &ref})
}

// flip inverts Active and moves Count by one, never below zero.
func flip(s models.SocialAction) models.SocialAction {
	s.Active = !s.Active
	if s.Active {
		s.Count++
	} else {
		s.Count = max(0, s.Count-1)
	}
	return s
}
