package notify

import (
	"context"
	"sync"
	"time"

	"snapfeed/internal/models"

	"go.uber.org/zap"
)

// Subscription is a cancellable stream of a receiver's notification list.
// Every value is the full newest-first list; unchanged lists are not resent.
type Subscription interface {
	Updates() <-chan []models.Notification
	Cancel()
}

// Source is the read side the subscription polls.
type Source interface {
	GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error)
}

type PollOptions struct {
	Interval time.Duration
	Limit    int
	// Wake triggers an immediate refetch between ticks.
	Wake <-chan struct{}
}

type pollSubscription struct {
	updates chan []models.Notification
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	onStop  func()
}

// Poll fetches once right away and then on every interval tick or wake signal.
func Poll(ctx context.Context, src Source, receiverID string, opts PollOptions, logger *zap.Logger) Subscription {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &pollSubscription{
		updates: make(chan []models.Notification, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, src, receiverID, opts, logger)
	return s
}

func (s *pollSubscription) Updates() <-chan []models.Notification { return s.updates }

func (s *pollSubscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.onStop != nil {
			s.onStop()
		}
	})
}

func (s *pollSubscription) run(ctx context.Context, src Source, receiverID string, opts PollOptions, logger *zap.Logger) {
	defer close(s.done)
	defer close(s.updates)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last []models.Notification
	first := true
	for {
		list, err := src.GetNotifications(ctx, receiverID, opts.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Error getting notifications", zap.String("receiver_id", receiverID), zap.Error(err))
		} else {
			next := flatten(list)
			if first || !sameList(last, next) {
				s.publish(next)
				last, first = next, false
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-opts.Wake:
		}
	}
}

// publish replaces any value the consumer has not read yet.
func (s *pollSubscription) publish(list []models.Notification) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- list
}

func flatten(list []*models.Notification) []models.Notification {
	out := make([]models.Notification, len(list))
	for i, n := range list {
		out[i] = *n
	}
	return out
}

func sameList(a, b []models.Notification) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Read != b[i].Read {
			return false
		}
	}
	return true
}
