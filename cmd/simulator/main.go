package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"snapfeed/internal/logging"
	"snapfeed/simulator"

	"go.uber.org/zap"
)

func main() {
	config := simulator.SimConfig{
		NumUsers:         10,
		NumPosts:         20,
		SimulationTime:   10 * time.Minute,
		ToggleFrequency:  120.0,
		CommentFrequency: 60.0,
		ReplyPercentage:  0.3,
		MentionRate:      0.2,
		DisconnectRate:   0.01,
		ReconnectRate:    0.05,
		ZipfS:            1.07,
		EngineURL:        "http://localhost:8080",
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}
	flag.StringVar(&config.EngineURL, "url", config.EngineURL, "engine base URL")
	flag.IntVar(&config.NumUsers, "users", config.NumUsers, "seeded users to drive (engine SEED_USERS)")
	flag.IntVar(&config.NumPosts, "posts", config.NumPosts, "seeded posts to target (engine SEED_POSTS)")
	flag.DurationVar(&config.SimulationTime, "duration", config.SimulationTime, "how long to run")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sim := simulator.NewSimulator(config, logger)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	logger.Info("Starting simulation with configuration",
		zap.Float64("toggle_frequency", config.ToggleFrequency),
		zap.Float64("comment_frequency", config.CommentFrequency),
		zap.Float64("reply_percentage", config.ReplyPercentage),
		zap.Float64("mention_rate", config.MentionRate),
		zap.Float64("disconnect_rate", config.DisconnectRate),
		zap.Float64("reconnect_rate", config.ReconnectRate),
		zap.Float64("zipf_s", config.ZipfS))

	if err := sim.Run(ctx); err != nil {
		logger.Fatal("Simulation failed", zap.Error(err))
	}

	metrics := sim.GetMetrics()
	logger.Info("Simulation completed",
		zap.Int("total_users", metrics.TotalUsers),
		zap.Int("active_users", metrics.ActiveUsers),
		zap.Int("toggles", metrics.TotalToggles),
		zap.Int("comments", metrics.TotalComments),
		zap.Int("replies", metrics.TotalReplies),
		zap.Int("revert_notices", metrics.RevertNotices),
		zap.Int("notifications", metrics.Notifications),
		zap.Int("errors", metrics.ErrorCount))
}
