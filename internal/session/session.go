// Package session holds the authenticated viewer and their relationship sets.
// A Session is created per viewer and passed to the components that need it.
package session

import (
	"context"
	"sort"
	"sync"

	"snapfeed/internal/models"
)

// Change is one relationship update applied to a session.
type Change struct {
	Action models.ActionKind `json:"action"`
	Entity models.EntityRef  `json:"entity"`
	Active bool              `json:"active"`
}

const subscriberBuffer = 32

type Session struct {
	mu        sync.RWMutex
	user      models.User
	liked     map[models.EntityRef]struct{}
	saved     map[string]struct{}
	following map[string]struct{}

	subs   map[int]chan Change
	nextID int
}

// New seeds a session from the stored user record.
func New(user models.User) *Session {
	s := &Session{
		user:      user,
		liked:     map[models.EntityRef]struct{}{},
		saved:     map[string]struct{}{},
		following: map[string]struct{}{},
		subs:      map[int]chan Change{},
	}
	for _, id := range user.SavedPosts {
		s.saved[id] = struct{}{}
	}
	for _, id := range user.Following {
		s.following[id] = struct{}{}
	}
	return s
}

// User returns the current user without relationship slices.
func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.user
	u.Followers, u.Following, u.SavedPosts = nil, nil, nil
	return u
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID
}

// Has reports whether the viewer currently holds the relationship.
func (s *Session) Has(action models.ActionKind, ref models.EntityRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch action {
	case models.ActionLike:
		_, ok := s.liked[ref]
		return ok
	case models.ActionSave:
		_, ok := s.saved[ref.ID]
		return ok
	case models.ActionFollow:
		_, ok := s.following[ref.ID]
		return ok
	}
	return false
}

// Apply records c and forwards it to subscribers. No-op changes are not forwarded.
func (s *Session) Apply(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed bool
	switch c.Action {
	case models.ActionLike:
		changed = toggleSet(s.liked, c.Entity, c.Active)
	case models.ActionSave:
		changed = toggleSet(s.saved, c.Entity.ID, c.Active)
	case models.ActionFollow:
		changed = toggleSet(s.following, c.Entity.ID, c.Active)
	}
	if !changed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default: // slow subscriber; it resyncs from Snapshot
		}
	}
}

// Subscribe returns a channel of applied changes and a func that ends the subscription.
func (s *Session) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Change, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Snapshot lists the relationship sets in a stable order.
type Snapshot struct {
	UserID    string             `json:"userId"`
	Liked     []models.EntityRef `json:"liked"`
	Saved     []string           `json:"saved"`
	Following []string           `json:"following"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{UserID: s.user.ID}
	for ref := range s.liked {
		snap.Liked = append(snap.Liked, ref)
	}
	for id := range s.saved {
		snap.Saved = append(snap.Saved, id)
	}
	for id := range s.following {
		snap.Following = append(snap.Following, id)
	}
	sort.Slice(snap.Liked, func(i, j int) bool { return snap.Liked[i].String() < snap.Liked[j].String() })
	sort.Strings(snap.Saved)
	sort.Strings(snap.Following)
	return snap
}

func toggleSet[K comparable](set map[K]struct{}, k K, present bool) bool {
	_, had := set[k]
	if had == present {
		return false
	}
	if present {
		set[k] = struct{}{}
	} else {
		delete(set, k)
	}
	return true
}

// UserLoader fetches the stored user record.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Registry keeps one session per signed-in viewer.
type Registry struct {
	loader   UserLoader
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(loader UserLoader) *Registry {
	return &Registry{loader: loader, sessions: map[string]*Session{}}
}

// Get returns the viewer's session, loading the user on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[userID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	user, err := r.loader.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s, nil
	}
	s := New(*user)
	r.sessions[userID] = s
	return s, nil
}

// Drop forgets the viewer's session, e.g. on sign-out.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
