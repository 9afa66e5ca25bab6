// internal/database/adapter.go
package database

import (
	"context"
	"fmt"

	"snapfeed/internal/config"
	"snapfeed/internal/models"

	"go.uber.org/zap"
)

// DBAdapter defines the common interface for database operations.
// Every backend (memory, PostgreSQL, MongoDB, Firestore) implements it.
type DBAdapter interface {
	// Connection
	Close(ctx context.Context) error

	// Entity methods. Counters are maintained by the store and never go below zero.
	SaveEntity(ctx context.Context, entity *models.Entity) error
	GetEntity(ctx context.Context, ref models.EntityRef, requestingUserID string) (*models.Entity, error)

	// Relationship sets. Each call states the intended membership; repeating a
	// call is a no-op and only an actual membership change moves a counter.
	SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error
	SetSave(ctx context.Context, postID, userID string, saved bool) error
	SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error

	// User methods
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error)

	// Comment methods
	// GetEntityComments returns every comment of the entity, ascending by creation time.
	GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error)
	GetComment(ctx context.Context, ref models.EntityRef, commentID string) (*models.Comment, error)
	// SaveCommentAndIncrementCount appends the comment and bumps the entity's comment counter.
	SaveCommentAndIncrementCount(ctx context.Context, comment *models.Comment) error
	UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error
	// DeleteCommentAndDecrementCount removes only the named comment; replies are left in place.
	DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error

	// Notification methods
	SaveNotification(ctx context.Context, n *models.Notification) error
	GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, receiverID string) error
}

// Open connects to the backend selected by cfg.Database.Type.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (DBAdapter, error) {
	switch cfg.Database.Type {
	case config.DBMemory:
		logger.Info("Using in-memory store")
		return NewMemoryDB(), nil
	case config.DBPostgres:
		db, err := NewPostgresDB(cfg.Database.URI, logger)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBMongo:
		db, err := NewMongoDB(ctx, cfg.Database.URI, cfg.Database.Name, logger)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBFirestore:
		return NewFirestoreDB(ctx, cfg.Firebase, logger)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}

// Default page sizes shared by the backends.
const (
	DefaultSearchLimit       = 10
	DefaultNotificationLimit = 50
)

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

// entityCollection maps an entity kind to the collection/table holding it.
func entityCollection(kind models.EntityKind) string {
	switch kind {
	case models.EntityPost:
		return "posts"
	case models.EntityReel:
		return "reels"
	case models.EntityStory:
		return "stories"
	case models.EntityUser:
		return "users"
	}
	return ""
}
