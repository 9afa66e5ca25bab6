package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Broker hands out polling subscriptions that are also woken whenever the
// local dispatcher stores a notification for their receiver.
type Broker struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	wakers map[string]map[chan struct{}]struct{}
}

func NewBroker(src Source, interval time.Duration, logger *zap.Logger) *Broker {
	return &Broker{
		src:      src,
		interval: interval,
		logger:   logger.Named("notify-broker"),
		wakers:   map[string]map[chan struct{}]struct{}{},
	}
}

// Subscribe starts a subscription for receiverID; Cancel releases it.
func (b *Broker) Subscribe(ctx context.Context, receiverID string) Subscription {
	wake := make(chan struct{}, 1)
	b.mu.Lock()
	if b.wakers[receiverID] == nil {
		b.wakers[receiverID] = map[chan struct{}]struct{}{}
	}
	b.wakers[receiverID][wake] = struct{}{}
	b.mu.Unlock()

	sub := Poll(ctx, b.src, receiverID, PollOptions{Interval: b.interval, Wake: wake}, b.logger).(*pollSubscription)
	sub.onStop = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.wakers[receiverID], wake)
		if len(b.wakers[receiverID]) == 0 {
			delete(b.wakers, receiverID)
		}
	}
	return sub
}

// Wake nudges every subscription of receiverID to refetch now.
func (b *Broker) Wake(receiverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.wakers[receiverID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports how many live subscriptions receiverID has.
func (b *Broker) Subscribers(receiverID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.wakers[receiverID])
}
