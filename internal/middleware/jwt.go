// internal/middleware/jwt.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"snapfeed/internal/utils"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// Token expiration time - 24 hours
	tokenExpiration = 24 * time.Hour

	tokenIssuer = "snapfeed-api"
)

// Claims represents the JWT claims for our application
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// UnprotectedRoutes defines routes that don't require authentication
var UnprotectedRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// IDTokenVerifier checks Firebase ID tokens. *auth.Client satisfies it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Authenticator resolves the caller's user ID from a bearer token. Tokens are
// tried as Firebase ID tokens first when a verifier is configured, then as
// tokens signed with the server secret.
type Authenticator struct {
	secret   []byte
	verifier IDTokenVerifier
	logger   *zap.Logger
}

// NewAuthenticator builds an authenticator. verifier may be nil; secret may be
// empty when only Firebase tokens are accepted.
func NewAuthenticator(secret string, verifier IDTokenVerifier, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		verifier: verifier,
		logger:   logger.Named("auth"),
	}
}

// GenerateToken creates a new JWT token for the given user ID
func (a *Authenticator) GenerateToken(userID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a token signed with the server secret. Expiry is
// checked by the parser.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Resolve returns the user ID carried by tokenString.
func (a *Authenticator) Resolve(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", utils.NewUnauthorizedError("missing token")
	}
	if a.verifier != nil {
		tok, err := a.verifier.VerifyIDToken(ctx, tokenString)
		if err == nil && tok.UID != "" {
			return tok.UID, nil
		}
		if len(a.secret) == 0 {
			return "", utils.NewAppError(utils.ErrInvalidToken, "Invalid token", err)
		}
	}
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return "", utils.NewAppError(utils.ErrInvalidToken, "Invalid token", err)
	}
	return claims.UserID, nil
}

// Middleware validates the caller on every protected route and stores the
// user ID in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UnprotectedRoutes[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := tokenFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		userID, err := a.Resolve(r.Context(), tokenString)
		if err != nil {
			a.logger.Debug("Rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserIDInContext(r.Context(), userID)))
	})
}

// tokenFromRequest reads the bearer token. Browsers cannot set headers on a
// websocket handshake, so a "token" query parameter is accepted as well.
func tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errors.New("Authorization header required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("Invalid authorization format")
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), nil
}

// Define a custom context key type to avoid collisions
type contextKey string

// UserIDKey is the key used to store the user ID in the context
const UserIDKey contextKey = "user_id"

// SetUserIDInContext saves the user ID in the request context
func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the user ID from the context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
