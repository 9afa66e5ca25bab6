package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"snapfeed/internal/api"
	"snapfeed/internal/engine"
	"snapfeed/internal/middleware"
	"snapfeed/internal/notify"
	"snapfeed/internal/remote"
	"snapfeed/internal/session"
	"snapfeed/internal/utils"
	"snapfeed/internal/websocket"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server holds all server dependencies, including the engine and the push hub
type Server struct {
	Engine   *engine.Engine
	Sessions *session.Registry
	Remote   *remote.Client
	Hub      *websocket.Hub
	Broker   *notify.Broker
	Metrics  *utils.MetricsCollector

	// streams outlive the upgrade request, so they hang off the server's context
	baseCtx  context.Context
	upgrader ws.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new Server instance with the given components
func NewServer(
	baseCtx context.Context,
	eng *engine.Engine,
	sessions *session.Registry,
	client *remote.Client,
	hub *websocket.Hub,
	broker *notify.Broker,
	metrics *utils.MetricsCollector,
	cors *middleware.CORSConfig,
	logger *zap.Logger,
) *Server {
	if cors == nil {
		cors = middleware.DefaultCORSConfig(nil)
	}
	return &Server{
		Engine:   eng,
		Sessions: sessions,
		Remote:   client,
		Hub:      hub,
		Broker:   broker,
		Metrics:  metrics,
		baseCtx:  baseCtx,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cors.CheckOrigin,
		},
		logger: logger.Named("http"),
	}
}

// Routes registers every endpoint behind the auth and CORS middleware.
func (s *Server) Routes(auth *middleware.Authenticator, cors *middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth())
	mux.Handle("/metrics", s.Metrics.Handler())

	mux.HandleFunc("/comments", s.HandleComments())
	mux.HandleFunc("/comments/compose", s.HandleCompose())
	mux.HandleFunc("/comments/submit", s.HandleSubmit())
	mux.HandleFunc("/comments/expand", s.HandleExpand())
	mux.HandleFunc("/comments/close", s.HandleCloseThread())

	mux.HandleFunc("/actions", s.HandleAction())
	mux.HandleFunc("/actions/toggle", s.HandleToggle())
	mux.HandleFunc("/actions/reconcile", s.HandleReconcile())

	mux.HandleFunc("/session", s.HandleSession())
	mux.HandleFunc("/notifications", s.HandleNotifications())
	mux.HandleFunc("/notifications/read", s.HandleMarkRead())

	mux.HandleFunc("/ws", s.HandleWebSocket())

	return middleware.CORSMiddleware(cors)(auth.Middleware(s.instrument(mux)))
}

// instrument counts every request and every error answer.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Metrics.IncrementRequests()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusBadRequest {
			s.Metrics.IncrementErrors()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// viewer returns the caller's session, writing the error answer when there is none.
func (s *Server) viewer(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		s.writeError(w, utils.NewUnauthorizedError("no authenticated user"))
		return nil, false
	}
	sess, err := s.Sessions.Get(r.Context(), userID)
	if err != nil {
		if utils.IsNotFound(err) {
			err = utils.NewUnauthorizedError("unknown user " + userID)
		}
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an AppError to its status; anything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		appErr = utils.NewAppError(utils.ErrDatabase, "Internal error", err)
	}
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	writeJSON(w, status, api.ErrorResponse{Success: false, Code: appErr.Code, Error: appErr.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "Invalid request", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
