// Package simulator drives a running snapfeed engine with simulated viewers
// who toggle likes, saves and follows, comment, reply and mention each other.
// It addresses the records the engine writes when started with SEED_USERS.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/middleware"
	"snapfeed/internal/websocket"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SimConfig struct {
	NumUsers         int
	NumPosts         int
	SimulationTime   time.Duration
	ToggleFrequency  float64 // toggles per user per hour
	CommentFrequency float64 // comments per user per hour
	ReplyPercentage  float64
	MentionRate      float64
	DisconnectRate   float64
	ReconnectRate    float64
	ZipfS            float64
	TickInterval     time.Duration
	EngineURL        string
	JWTSecret        string
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ActiveUsers     int
	TotalToggles    int
	TotalComments   int
	TotalReplies    int
	RevertNotices   int
	Notifications   int
}

// SimulatedUser is one seeded account and its push connection.
type SimulatedUser struct {
	ID          string
	Username    string
	Token       string
	IsConnected bool
	LastActive  time.Time
	conn        *ws.Conn
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	client *http.Client
	logger *zap.Logger

	mu   sync.RWMutex
	rand *rand.Rand
	zipf *rand.Zipf
}

func NewSimulator(config SimConfig, logger *zap.Logger) *Simulator {
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &Simulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("simulator"),
		rand:   r,
	}
	if config.NumPosts > 0 {
		// post popularity follows Zipf's law
		s.zipf = rand.NewZipf(r, config.ZipfS, 1, uint64(config.NumPosts-1))
	}
	return s
}

func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Starting simulation",
		zap.String("engine_url", s.config.EngineURL),
		zap.Int("users", s.config.NumUsers),
		zap.Int("posts", s.config.NumPosts),
		zap.Duration("duration", s.config.SimulationTime))

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()
	wg.Wait()
	return nil
}

// initialize signs a token for every seeded user and checks the engine knows them.
func (s *Simulator) initialize(ctx context.Context) error {
	if s.config.NumUsers < 2 || s.config.NumPosts < 1 {
		return fmt.Errorf("need at least 2 users and 1 post, have %d and %d", s.config.NumUsers, s.config.NumPosts)
	}
	auth := middleware.NewAuthenticator(s.config.JWTSecret, nil, s.logger)

	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)
	for i := 0; i < s.config.NumUsers; i++ {
		token, err := auth.GenerateToken(database.DemoUserID(i))
		if err != nil {
			return err
		}
		s.users = append(s.users, &SimulatedUser{
			ID:       database.DemoUserID(i),
			Username: database.DemoUsername(i),
			Token:    token,
		})
	}

	if _, err := s.makeRequest(ctx, s.users[0], http.MethodGet, "/session", nil); err != nil {
		return fmt.Errorf("engine does not know the seeded users (start it with SEED_USERS): %w", err)
	}
	for _, user := range s.users {
		s.connect(ctx, user)
	}
	s.logger.Info("Initialization completed", zap.Int("users", len(s.users)))
	return nil
}

// connect opens the user's websocket and counts the events it receives.
func (s *Simulator) connect(ctx context.Context, user *SimulatedUser) {
	url := "ws" + strings.TrimPrefix(s.config.EngineURL, "http") + "/ws?token=" + user.Token
	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		s.logger.Debug("WebSocket dial failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	s.mu.Lock()
	user.conn = conn
	user.IsConnected = true
	user.LastActive = time.Now()
	s.mu.Unlock()

	go s.listen(conn)
}

func (s *Simulator) listen(conn *ws.Conn) {
	for {
		var ev struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		s.stats.mu.Lock()
		switch ev.Type {
		case websocket.EventToggleReverted:
			s.stats.RevertNotices++
		case websocket.EventNotifications:
			s.stats.Notifications++
		}
		s.stats.mu.Unlock()
	}
}

func (s *Simulator) disconnect(user *SimulatedUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.conn != nil {
		user.conn.Close()
		user.conn = nil
	}
	user.IsConnected = false
}

func (s *Simulator) disconnectAll() {
	for _, user := range s.users {
		s.disconnect(user)
	}
}

func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				s.mu.RLock()
				connected := user.IsConnected
				s.mu.RUnlock()

				if connected && s.chance(s.config.DisconnectRate) {
					s.disconnect(user)
				} else if !connected && s.chance(s.config.ReconnectRate) {
					s.connect(ctx, user)
				}
			}
		}
	}
}

func (s *Simulator) chance(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64() < p
}

func (s *Simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

// pickPost returns a demo post index, popular posts first.
func (s *Simulator) pickPost() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zipf == nil {
		return 0
	}
	return int(s.zipf.Uint64())
}

// makeRequest sends an authenticated JSON request as user and returns the body.
func (s *Simulator) makeRequest(ctx context.Context, user *SimulatedUser, method, endpoint string, data interface{}) ([]byte, error) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("%s %s failed with status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.logger.Info("Simulation metrics",
				zap.Float64("requests_per_sec", m.RequestsPerSecond),
				zap.Duration("average_latency", m.AverageLatency),
				zap.Int("active_users", m.ActiveUsers),
				zap.Int("toggles", m.TotalToggles),
				zap.Int("comments", m.TotalComments),
				zap.Int("replies", m.TotalReplies),
				zap.Int("revert_notices", m.RevertNotices),
				zap.Int("errors", m.ErrorCount))
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	TotalToggles      int
	TotalComments     int
	TotalReplies      int
	RevertNotices     int
	Notifications     int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *Simulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	active := 0
	for _, user := range s.users {
		if user.IsConnected {
			active++
		}
	}
	total := len(s.users)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	elapsed := time.Since(s.stats.StartTime)

	return SimulationMetrics{
		TotalUsers:        total,
		ActiveUsers:       active,
		TotalToggles:      s.stats.TotalToggles,
		TotalComments:     s.stats.TotalComments,
		TotalReplies:      s.stats.TotalReplies,
		RevertNotices:     s.stats.RevertNotices,
		Notifications:     s.stats.Notifications,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
