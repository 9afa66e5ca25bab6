package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snapfeed/internal/api"
	"snapfeed/internal/config"
	"snapfeed/internal/database"
	"snapfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	core := config.DefaultCoreConfig()
	core.SeedUsers = 3
	core.SeedPosts = 2
	core.NotificationPollInterval = 50 * time.Millisecond
	return &config.Config{
		Server:         config.DefaultConfig(),
		Database:       config.DefaultDatabaseConfig(),
		Firebase:       &config.FirebaseConfig{},
		Core:           core,
		Log:            &config.LogConfig{Level: "info", Format: "json"},
		JWTSecret:      "integration-secret",
		AllowedOrigins: []string{"*"},
	}
}

func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	owner, liker := database.DemoUserID(0), database.DemoUserID(1)
	call := func(userID, method, path string, body, out interface{}) int {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+path, &buf)
		require.NoError(t, err)
		token, err := app.Auth.GenerateToken(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		if out != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		}
		return resp.StatusCode
	}

	// Step 1: the liker likes the owner's post
	var toggled api.ToggleResponse
	require.Equal(t, http.StatusAccepted, call(liker, http.MethodPost, "/actions/toggle", map[string]string{
		"action": "like", "kind": "post", "entityId": database.DemoPostID(0),
	}, &toggled))
	assert.True(t, toggled.State.Active)
	assert.Equal(t, 1, toggled.State.Count)

	// Step 2: the owner is notified once the write lands
	require.Eventually(t, func() bool {
		var list api.NotificationsResponse
		call(owner, http.MethodGet, "/notifications", nil, &list)
		return len(list.Notifications) == 1 && list.Notifications[0].Type == models.NotifyLike
	}, 2*time.Second, 20*time.Millisecond)

	// Step 3: health reports the mounted mutation
	var health api.HealthResponse
	require.Equal(t, http.StatusOK, call(owner, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, 1, health.MountedMutations)
}
