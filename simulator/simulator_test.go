package simulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/middleware"
	"snapfeed/internal/models"
	"snapfeed/internal/websocket"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "sim-secret"

// fakeEngine answers the routes the simulator calls and records what it got.
type fakeEngine struct {
	auth *middleware.Authenticator

	mu       sync.Mutex
	users    []string
	toggles  []map[string]string
	composes []map[string]string
	submits  int
	roots    []*models.CommentNode
}

func newFakeEngine(t *testing.T) (*fakeEngine, *httptest.Server) {
	f := &fakeEngine{auth: middleware.NewAuthenticator(testSecret, nil, zap.NewNop())}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if r.URL.Path == "/ws" {
		token = r.URL.Query().Get("token")
	}
	claims, err := f.auth.ValidateToken(token)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, claims.UserID)

	var body map[string]string
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	switch r.URL.Path {
	case "/session":
		w.Write([]byte(`{}`))
	case "/actions/toggle":
		f.toggles = append(f.toggles, body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"success":true}`))
	case "/comments":
		json.NewEncoder(w).Encode(threadView{Roots: f.roots})
	case "/comments/compose":
		f.composes = append(f.composes, body)
		view := threadView{}
		if body["action"] == "text" && strings.Contains(body["text"], "@") {
			view.Suggestions = []models.MentionCandidate{{UserID: database.DemoUserID(1), Username: database.DemoUsername(1)}}
		}
		json.NewEncoder(w).Encode(view)
	case "/comments/submit":
		f.submits++
		json.NewEncoder(w).Encode(threadView{})
	case "/ws":
		conn, err := (&ws.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(websocket.Event{Type: websocket.EventToggleReverted})
		conn.WriteJSON(websocket.Event{Type: websocket.EventNotifications})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestSimulator(url string) *Simulator {
	return NewSimulator(SimConfig{
		NumUsers:  2,
		NumPosts:  5,
		EngineURL: url,
		JWTSecret: testSecret,
	}, zap.NewNop())
}

func TestInitializeSignsSeededUsers(t *testing.T) {
	f, srv := newFakeEngine(t)
	sim := newTestSimulator(srv.URL)

	require.NoError(t, sim.initialize(context.Background()))
	defer sim.disconnectAll()

	require.Len(t, sim.users, 2)
	assert.Equal(t, database.DemoUsername(1), sim.users[1].Username)

	f.mu.Lock()
	assert.Equal(t, database.DemoUserID(0), f.users[0])
	f.mu.Unlock()

	require.Eventually(t, func() bool {
		m := sim.GetMetrics()
		return m.ActiveUsers == 2 && m.RevertNotices == 2 && m.Notifications == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInitializeFailsWithWrongSecret(t *testing.T) {
	_, srv := newFakeEngine(t)
	sim := newTestSimulator(srv.URL)
	sim.config.JWTSecret = "other-secret"

	err := sim.initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, sim.GetMetrics().ErrorCount)
}

func TestInitializeNeedsTwoUsers(t *testing.T) {
	sim := newTestSimulator("http://unused")
	sim.config.NumUsers = 1
	assert.Error(t, sim.initialize(context.Background()))
}

func TestSimulateToggle(t *testing.T) {
	f, srv := newFakeEngine(t)
	sim := newTestSimulator(srv.URL)
	require.NoError(t, sim.initialize(context.Background()))
	defer sim.disconnectAll()

	for i := 0; i < 20; i++ {
		require.NoError(t, sim.simulateToggle(context.Background(), sim.users[0]))
	}
	assert.Equal(t, 20, sim.GetMetrics().TotalToggles)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.toggles {
		action := models.ActionKind(req["action"])
		require.True(t, action.Accepts(models.EntityKind(req["kind"])), "%v", req)
		if action == models.ActionFollow {
			assert.Equal(t, database.DemoUserID(1), req["entityId"])
		}
	}
}

func TestSimulateReplyWithMention(t *testing.T) {
	f, srv := newFakeEngine(t)
	f.roots = []*models.CommentNode{{Comment: models.Comment{ID: "c1", AuthorID: database.DemoUserID(1)}}}

	sim := newTestSimulator(srv.URL)
	sim.config.ReplyPercentage = 1
	sim.config.MentionRate = 1
	require.NoError(t, sim.initialize(context.Background()))
	defer sim.disconnectAll()

	require.NoError(t, sim.simulateComment(context.Background(), sim.users[0]))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.composes, 3)
	assert.Equal(t, "reply", f.composes[0]["action"])
	assert.Equal(t, "c1", f.composes[0]["commentId"])
	assert.Equal(t, "text", f.composes[1]["action"])
	assert.Contains(t, f.composes[1]["text"], "@use")
	assert.Equal(t, "mention", f.composes[2]["action"])
	assert.Equal(t, database.DemoUserID(1), f.composes[2]["userId"])
	assert.Equal(t, 1, f.submits)

	m := sim.GetMetrics()
	assert.Equal(t, 1, m.TotalReplies)
	assert.Equal(t, 0, m.TotalComments)
}

func TestSimulateRootComment(t *testing.T) {
	f, srv := newFakeEngine(t)
	sim := newTestSimulator(srv.URL)
	sim.config.ReplyPercentage = 1
	require.NoError(t, sim.initialize(context.Background()))
	defer sim.disconnectAll()

	// no roots to reply to
	require.NoError(t, sim.simulateComment(context.Background(), sim.users[1]))

	f.mu.Lock()
	require.Len(t, f.composes, 1)
	assert.Equal(t, "text", f.composes[0]["action"])
	f.mu.Unlock()
	assert.Equal(t, 1, sim.GetMetrics().TotalComments)
}

func TestPickPostStaysInRange(t *testing.T) {
	sim := newTestSimulator("http://unused")
	counts := make([]int, sim.config.NumPosts)
	for i := 0; i < 2000; i++ {
		p := sim.pickPost()
		require.True(t, p >= 0 && p < sim.config.NumPosts)
		counts[p]++
	}
	assert.Greater(t, counts[0], counts[sim.config.NumPosts-1])
}
