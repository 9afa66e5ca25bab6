package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if uid, ok := f[idToken]; ok {
		return &auth.Token{UID: uid}, nil
	}
	return nil, errors.New("not a firebase token")
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			id = "anonymous"
		}
		w.Write([]byte(id))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewAuthenticator("secret", nil, zap.NewNop())
	token, err := a.GenerateToken("u-bob")
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-bob", claims.UserID)

	_, err = NewAuthenticator("other", nil, zap.NewNop()).ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	a := NewAuthenticator("secret", nil, zap.NewNop())
	claims := &Claims{
		UserID: "u-bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    tokenIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.Error(t, err)
}

func TestMiddlewareSetsUserID(t *testing.T) {
	a := NewAuthenticator("secret", fakeVerifier{"firebase-token": "fb-alice"}, zap.NewNop())
	h := a.Middleware(echoUser())
	signed, err := a.GenerateToken("u-bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		body   string
	}{
		{"signed bearer", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/comments", nil)
			r.Header.Set("Authorization", "Bearer "+signed)
			return r
		}, http.StatusOK, "u-bob"},
		{"firebase bearer", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/comments", nil)
			r.Header.Set("Authorization", "Bearer firebase-token")
			return r
		}, http.StatusOK, "fb-alice"},
		{"query token", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws?token="+signed, nil)
		}, http.StatusOK, "u-bob"},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/comments", nil)
		}, http.StatusUnauthorized, ""},
		{"wrong scheme", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/comments", nil)
			r.Header.Set("Authorization", "Basic abc")
			return r
		}, http.StatusUnauthorized, ""},
		{"garbage", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/comments", nil)
			r.Header.Set("Authorization", "Bearer nope")
			return r
		}, http.StatusUnauthorized, ""},
		{"unprotected", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/health", nil)
		}, http.StatusOK, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.req())
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestFirebaseOnlyRejectsSignedTokens(t *testing.T) {
	signer := NewAuthenticator("secret", nil, zap.NewNop())
	signed, err := signer.GenerateToken("u-bob")
	require.NoError(t, err)

	a := NewAuthenticator("", fakeVerifier{}, zap.NewNop())
	_, err = a.Resolve(context.Background(), signed)
	assert.Error(t, err)
	_, err = a.GenerateToken("u-bob")
	assert.Error(t, err)
}

func TestCORSMiddleware(t *testing.T) {
	cfg := DefaultCORSConfig([]string{"https://app.example.com"})
	h := CORSMiddleware(cfg)(echoUser())

	r := httptest.NewRequest(http.MethodOptions, "/comments", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	r = httptest.NewRequest(http.MethodGet, "/comments", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	assert.True(t, cfg.CheckOrigin(httptest.NewRequest(http.MethodGet, "/ws", nil)))
	assert.False(t, cfg.CheckOrigin(r))
}
