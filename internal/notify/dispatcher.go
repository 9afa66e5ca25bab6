// Package notify delivers activity notifications and streams them back to receivers.
package notify

import (
	"context"
	"sync"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	defaultWorkers   = 4
	defaultCacheSize = 1024
	deliveryTimeout  = 10 * time.Second
	// Above this many queued deliveries Dispatch starts waiting for a free worker.
	maxWaitingDeliveries = 10000
)

// Request describes one notification to deliver. Sender needs only an ID;
// missing name and avatar are filled from the profile cache.
type Request struct {
	ReceiverID string
	Sender     models.User
	Type       models.NotificationType
	Entity     *models.EntityRef
}

// Dispatcher writes notifications in the background. Delivery failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	db       database.DBAdapter
	pool     *workerpool.WorkerPool
	profiles *lru.Cache[string, models.User]
	metrics  *utils.MetricsCollector
	logger   *zap.Logger

	mu        sync.RWMutex
	stopped   bool
	delivered []func(models.Notification)
}

func NewDispatcher(db database.DBAdapter, workers, cacheSize int, metrics *utils.MetricsCollector, logger *zap.Logger) (*Dispatcher, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	profiles, err := lru.New[string, models.User](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		db:       db,
		pool:     workerpool.New(workers),
		profiles: profiles,
		metrics:  metrics,
		logger:   logger.Named("notify"),
	}, nil
}

// OnDelivered registers fn to run after every stored notification.
func (d *Dispatcher) OnDelivered(fn func(models.Notification)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, fn)
}

// Dispatch queues req and returns immediately. Self-notifications are dropped.
func (d *Dispatcher) Dispatch(req Request) {
	if req.ReceiverID == "" || req.ReceiverID == req.Sender.ID {
		d.record(req.Type, "skipped")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.logger.Warn("Dispatcher stopped, dropping notification",
			zap.String("receiver_id", req.ReceiverID), zap.String("type", string(req.Type)))
		d.record(req.Type, "failed")
		return
	}

	task := func() { d.deliver(req) }
	if d.pool.WaitingQueueSize() > maxWaitingDeliveries {
		d.pool.SubmitWait(task)
	} else {
		d.pool.Submit(task)
	}
}

// Stop waits for queued deliveries and rejects new ones.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.pool.StopWait()
}

// Remember primes the profile cache, e.g. with the session user.
func (d *Dispatcher) Remember(u models.User) {
	d.profiles.Add(u.ID, u)
}

func (d *Dispatcher) deliver(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	sender := d.resolveSender(ctx, req.Sender)
	n := models.Notification{
		ID:           uuid.NewString(),
		ReceiverID:   req.ReceiverID,
		SenderID:     sender.ID,
		SenderName:   sender.Username,
		SenderAvatar: sender.PhotoURL,
		Type:         req.Type,
		CreatedAt:    time.Now().UTC(),
	}
	if req.Entity != nil {
		n.EntityKind, n.EntityID = req.Entity.Kind, req.Entity.ID
	}

	if err := d.db.SaveNotification(ctx, &n); err != nil {
		d.logger.Error("Error sending notification",
			zap.String("receiver_id", n.ReceiverID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		d.record(n.Type, "failed")
		return
	}
	d.record(n.Type, "sent")

	d.mu.RLock()
	hooks := d.delivered
	d.mu.RUnlock()
	for _, fn := range hooks {
		fn(n)
	}
}

func (d *Dispatcher) resolveSender(ctx context.Context, sender models.User) models.User {
	if sender.Username != "" {
		d.profiles.Add(sender.ID, sender)
		return sender
	}
	if cached, ok := d.profiles.Get(sender.ID); ok {
		return cached
	}
	u, err := d.db.GetUser(ctx, sender.ID)
	if err != nil {
		d.logger.Warn("Could not resolve notification sender", zap.String("sender_id", sender.ID), zap.Error(err))
		return sender
	}
	d.profiles.Add(u.ID, *u)
	return *u
}

func (d *Dispatcher) record(t models.NotificationType, result string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(string(t), result)
	}
}
