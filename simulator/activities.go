package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"snapfeed/internal/comments"
	"snapfeed/internal/database"
	"snapfeed/internal/engine/actors"
	"snapfeed/internal/models"

	"go.uber.org/zap"
)

const numWorkers = 5

// threadView is the part of the thread answer the simulator reads.
type threadView struct {
	Roots       []*models.CommentNode     `json:"roots"`
	Composer    comments.ComposerView     `json:"composer"`
	Suggestions []models.MentionCandidate `json:"suggestions"`
}

var commentTexts = []string{
	"love this",
	"where was this taken?",
	"the light here is unreal",
	"saving this for later",
	"big mood",
}

func (s *Simulator) SimulateActivities(ctx context.Context) {
	s.logger.Info("Starting activities simulation")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runWorkers(ctx, s.config.ToggleFrequency, s.simulateToggle)
	}()
	go func() {
		defer wg.Done()
		s.runWorkers(ctx, s.config.CommentFrequency, s.simulateComment)
	}()
	wg.Wait()
}

// runWorkers offers every connected user to a pool of workers each tick; a
// user acts with the probability its hourly frequency gives for one tick.
func (s *Simulator) runWorkers(ctx context.Context, perHour float64, act func(context.Context, *SimulatedUser) error) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	p := perHour / 3600.0 * s.config.TickInterval.Seconds()
	jobs := make(chan *SimulatedUser, len(s.users))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				if err := act(ctx, user); err != nil && ctx.Err() == nil {
					s.logger.Debug("Activity failed", zap.String("user_id", user.ID), zap.Error(err))
				}
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				s.mu.RLock()
				connected := user.IsConnected
				s.mu.RUnlock()
				if !connected || !s.chance(p) {
					continue
				}
				select {
				case jobs <- user:
				default:
				}
			}
		}
	}
}

// simulateToggle likes or saves a popular post, or follows another user.
func (s *Simulator) simulateToggle(ctx context.Context, user *SimulatedUser) error {
	req := map[string]string{"kind": string(models.EntityPost), "entityId": database.DemoPostID(s.pickPost())}
	switch s.intn(3) {
	case 0:
		req["action"] = string(models.ActionLike)
	case 1:
		req["action"] = string(models.ActionSave)
	default:
		req["action"] = string(models.ActionFollow)
		req["kind"] = string(models.EntityUser)
		req["entityId"] = s.otherUser(user).ID
	}

	if _, err := s.makeRequest(ctx, user, http.MethodPost, "/actions/toggle", req); err != nil {
		return err
	}
	s.stats.mu.Lock()
	s.stats.TotalToggles++
	s.stats.mu.Unlock()
	return nil
}

// simulateComment opens a popular post's thread, optionally targets a root
// comment for reply, types text that may mention another user, and submits.
func (s *Simulator) simulateComment(ctx context.Context, user *SimulatedUser) error {
	thread := map[string]string{"kind": string(models.EntityPost), "entityId": database.DemoPostID(s.pickPost())}
	query := url.Values{"kind": {thread["kind"]}, "entityId": {thread["entityId"]}}

	view, err := s.threadRequest(ctx, user, http.MethodGet, "/comments?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	isReply := len(view.Roots) > 0 && s.chance(s.config.ReplyPercentage)
	if isReply {
		root := view.Roots[s.intn(len(view.Roots))]
		if _, err := s.compose(ctx, user, thread, actors.ComposeReply, map[string]string{"commentId": root.ID}); err != nil {
			return err
		}
	}

	text := commentTexts[s.intn(len(commentTexts))]
	if s.chance(s.config.MentionRate) {
		if err := s.mention(ctx, user, thread, text); err != nil {
			return err
		}
	} else if _, err := s.compose(ctx, user, thread, actors.ComposeText, map[string]string{"text": text}); err != nil {
		return err
	}

	if _, err := s.threadRequest(ctx, user, http.MethodPost, "/comments/submit", thread); err != nil {
		return err
	}

	s.stats.mu.Lock()
	if isReply {
		s.stats.TotalReplies++
	} else {
		s.stats.TotalComments++
	}
	s.stats.mu.Unlock()
	return nil
}

// mention types an @ prefix of another user's name and picks the first suggestion.
func (s *Simulator) mention(ctx context.Context, user *SimulatedUser, thread map[string]string, text string) error {
	other := s.otherUser(user)
	prefix := other.Username
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}

	view, err := s.compose(ctx, user, thread, actors.ComposeText, map[string]string{"text": text + " @" + prefix})
	if err != nil {
		return err
	}
	if len(view.Suggestions) == 0 {
		return nil
	}
	_, err = s.compose(ctx, user, thread, actors.ComposeMention, map[string]string{"userId": view.Suggestions[0].UserID})
	return err
}

func (s *Simulator) compose(ctx context.Context, user *SimulatedUser, thread map[string]string, action actors.ComposeAction, fields map[string]string) (*threadView, error) {
	req := map[string]string{"action": string(action)}
	for k, v := range thread {
		req[k] = v
	}
	for k, v := range fields {
		req[k] = v
	}
	return s.threadRequest(ctx, user, http.MethodPost, "/comments/compose", req)
}

func (s *Simulator) threadRequest(ctx context.Context, user *SimulatedUser, method, endpoint string, data interface{}) (*threadView, error) {
	body, err := s.makeRequest(ctx, user, method, endpoint, data)
	if err != nil {
		return nil, err
	}
	var view threadView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("decode thread: %w", err)
	}
	return &view, nil
}

func (s *Simulator) otherUser(user *SimulatedUser) *SimulatedUser {
	for {
		other := s.users[s.intn(len(s.users))]
		if other.ID != user.ID {
			return other
		}
	}
}
