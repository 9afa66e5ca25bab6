package optimistic

import (
	"fmt"
	"sync"

	"snapfeed/internal/models"
)

// Notice tells the actor that a toggle was reverted.
type Notice struct {
	ActorID string              `json:"actorId"`
	Action  models.ActionKind   `json:"action"`
	Entity  models.EntityRef    `json:"entity"`
	Message string              `json:"message"`
	State   models.SocialAction `json:"state"`
}

// NoticeSink receives revert notices. Implementations must not block.
type NoticeSink interface {
	Notice(n Notice)
}

// NoticeFunc adapts a function to NoticeSink.
type NoticeFunc func(n Notice)

func (f NoticeFunc) Notice(n Notice) { f(n) }

// NoticeLog keeps notices in memory.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *NoticeLog) Notice(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

// All returns a copy of the recorded notices.
func (l *NoticeLog) All() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

func failureMessage(s models.SocialAction) string {
	verb := string(s.Action)
	if !s.Active {
		verb = "un" + verb
	}
	return fmt.Sprintf("Failed to %s %s. Please try again.", verb, s.Entity.Kind)
}
