package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapfeed/internal/config"
	"snapfeed/internal/database"
	"snapfeed/internal/engine"
	"snapfeed/internal/handlers"
	"snapfeed/internal/logging"
	"snapfeed/internal/middleware"
	"snapfeed/internal/models"
	"snapfeed/internal/notify"
	"snapfeed/internal/remote"
	"snapfeed/internal/session"
	"snapfeed/internal/utils"
	"snapfeed/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired service and the order its parts stop in.
type App struct {
	Handler http.Handler
	Auth    *middleware.Authenticator

	db         database.DBAdapter
	engine     *engine.Engine
	dispatcher *notify.Dispatcher
	stopHub    context.CancelFunc
	logger     *zap.Logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Fields: map[string]string{"service": "snapfeed"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr), zap.String("db_type", cfg.Database.Type))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewApp connects the store and wires the engine, push hub and HTTP routes.
// Streams opened by websocket clients live until ctx ends or Close is called.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics := utils.NewMetricsCollector()

	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Core.SeedUsers > 0 {
		if err := database.SeedDemo(ctx, db, cfg.Core.SeedUsers, cfg.Core.SeedPosts); err != nil {
			db.Close(ctx)
			return nil, err
		}
		logger.Info("Seeded demo data", zap.Int("users", cfg.Core.SeedUsers), zap.Int("posts", cfg.Core.SeedPosts))
	}

	verifier, err := firebaseVerifier(ctx, cfg)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	auth := middleware.NewAuthenticator(cfg.JWTSecret, verifier, logger)

	dispatcher, err := notify.NewDispatcher(db, cfg.Core.NotifyWorkers, cfg.Core.ProfileCacheSize, metrics, logger)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	broker := notify.NewBroker(db, cfg.Core.NotificationPollInterval, logger)
	// a stored notification refreshes its receiver's open streams right away
	dispatcher.OnDelivered(func(n models.Notification) { broker.Wake(n.ReceiverID) })

	client := remote.NewClient(db, dispatcher, metrics, logger)

	hubCtx, stopHub := context.WithCancel(ctx)
	hub := websocket.NewHub(logger)
	go hub.Run(hubCtx)

	eng := engine.NewEngine(actor.NewActorSystem(), client, hub, metrics, logger, engine.Options{
		MountedThreads:   cfg.Core.MountedThreads,
		MountedMutations: cfg.Core.MountedMutations,
		WriteWorkers:     cfg.Core.WriteWorkers,
		RequestTimeout:   cfg.Server.RequestTimeout,
	})

	cors := middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	server := handlers.NewServer(hubCtx, eng, session.NewRegistry(client), client, hub, broker, metrics, cors, logger)

	return &App{
		Handler:    server.Routes(auth, cors),
		Auth:       auth,
		db:         db,
		engine:     eng,
		dispatcher: dispatcher,
		stopHub:    stopHub,
		logger:     logger,
	}, nil
}

// firebaseVerifier returns the Firebase ID-token verifier when a project is configured.
func firebaseVerifier(ctx context.Context, cfg *config.Config) (middleware.IDTokenVerifier, error) {
	if !cfg.Firebase.Enabled() {
		return nil, nil
	}
	app, err := database.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return client, nil
}

// Close stops pushing to sockets, drains remote writes and queued
// notifications, then closes the store.
func (a *App) Close() {
	a.stopHub()
	a.engine.Stop()
	a.dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.db.Close(ctx); err != nil {
		a.logger.Warn("Closing database failed", zap.Error(err))
	}
}
