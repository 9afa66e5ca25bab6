// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, logger *zap.Logger) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{DB: db, logger: logger}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.logger.Info("Closing PostgreSQL connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username VARCHAR(50) UNIQUE NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				photo_url TEXT NOT NULL DEFAULT '',
				bio TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"entities", `
			CREATE TABLE IF NOT EXISTS entities (
				kind VARCHAR(10) NOT NULL,
				id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				like_count INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0),
				comment_count INTEGER NOT NULL DEFAULT 0 CHECK (comment_count >= 0),
				save_count INTEGER NOT NULL DEFAULT 0 CHECK (save_count >= 0),
				PRIMARY KEY (kind, id)
			)`},
		{"likes", `
			CREATE TABLE IF NOT EXISTS likes (
				entity_kind VARCHAR(10) NOT NULL,
				entity_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (entity_kind, entity_id, user_id)
			)`},
		{"saves", `
			CREATE TABLE IF NOT EXISTS saves (
				post_id TEXT NOT NULL,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (post_id, user_id)
			)`},
		{"follows", `
			CREATE TABLE IF NOT EXISTS follows (
				follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				followee_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (follower_id, followee_id)
			)`},
		// parent_id carries no foreign key: replies outlive a deleted parent.
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id TEXT PRIMARY KEY,
				entity_kind VARCHAR(10) NOT NULL,
				entity_id TEXT NOT NULL,
				parent_id TEXT,
				author_id TEXT NOT NULL,
				author_name TEXT NOT NULL,
				author_avatar TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				is_edited BOOLEAN NOT NULL DEFAULT FALSE,
				reply_to_username TEXT,
				mention_ids TEXT[] NOT NULL DEFAULT '{}'
			)`},
		{"comments_entity_idx", `CREATE INDEX IF NOT EXISTS comments_entity_idx ON comments (entity_kind, entity_id, created_at)`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				receiver_id TEXT NOT NULL,
				sender_id TEXT NOT NULL,
				sender_name TEXT NOT NULL,
				sender_avatar TEXT NOT NULL DEFAULT '',
				type VARCHAR(10) NOT NULL,
				entity_kind VARCHAR(10) NOT NULL DEFAULT '',
				entity_id TEXT NOT NULL DEFAULT '',
				read BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			)`},
		{"notifications_receiver_idx", `CREATE INDEX IF NOT EXISTS notifications_receiver_idx ON notifications (receiver_id, created_at DESC)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %v", stmt.name, err)
		}
	}
	return nil
}

// Entity methods

func (p *PostgresDB) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if err := entity.Ref.Validate(); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	query := `
		INSERT INTO entities (kind, id, owner_id, comment_count, save_count)
		VALUES ($1, $2, $3, GREATEST(0, $4), GREATEST(0, $5))
		ON CONFLICT (kind, id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			comment_count = EXCLUDED.comment_count,
			save_count = EXCLUDED.save_count
	`
	_, err := p.DB.ExecContext(ctx, query, entity.Ref.Kind, entity.Ref.ID, entity.OwnerID, entity.CommentCount, entity.SaveCount)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save entity", err)
	}
	return nil
}

func (p *PostgresDB) GetEntity(ctx context.Context, ref models.EntityRef, requestingUserID string) (*models.Entity, error) {
	if ref.Kind == models.EntityUser {
		var followers int
		query := `SELECT (SELECT COUNT(*) FROM follows WHERE followee_id = u.id) FROM users u WHERE u.id = $1`
		if err := p.DB.GetContext(ctx, &followers, query, ref.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, utils.NewEntityNotFoundError(ref)
			}
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user entity", err)
		}
		return &models.Entity{Ref: ref, OwnerID: ref.ID, FollowerCount: followers}, nil
	}

	var row struct {
		OwnerID      string `db:"owner_id"`
		LikeCount    int    `db:"like_count"`
		CommentCount int    `db:"comment_count"`
		SaveCount    int    `db:"save_count"`
		Liked        bool   `db:"liked"`
	}
	query := `
		SELECT e.owner_id, e.like_count, e.comment_count, e.save_count,
			EXISTS (SELECT 1 FROM likes l WHERE l.entity_kind = e.kind AND l.entity_id = e.id AND l.user_id = $3) AS liked
		FROM entities e
		WHERE e.kind = $1 AND e.id = $2
	`
	if err := p.DB.GetContext(ctx, &row, query, ref.Kind, ref.ID, requestingUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewEntityNotFoundError(ref)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get entity", err)
	}
	return &models.Entity{
		Ref:           ref,
		OwnerID:       row.OwnerID,
		LikeCount:     row.LikeCount,
		CommentCount:  row.CommentCount,
		SaveCount:     row.SaveCount,
		LikedByViewer: row.Liked,
	}, nil
}

// SetLike inserts or deletes the like row and moves like_count only when a row changed.
func (p *PostgresDB) SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error {
	return p.withTx(ctx, "like", func(tx *sqlx.Tx) error {
		if err := p.entityExists(ctx, tx, ref); err != nil {
			return err
		}

		var result sql.Result
		var err error
		if liked {
			result, err = tx.ExecContext(ctx,
				`INSERT INTO likes (entity_kind, entity_id, user_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				ref.Kind, ref.ID, userID)
		} else {
			result, err = tx.ExecContext(ctx,
				`DELETE FROM likes WHERE entity_kind = $1 AND entity_id = $2 AND user_id = $3`,
				ref.Kind, ref.ID, userID)
		}
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to update like record", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}

		update := `UPDATE entities SET like_count = like_count + 1 WHERE kind = $1 AND id = $2`
		if !liked {
			update = `UPDATE entities SET like_count = GREATEST(0, like_count - 1) WHERE kind = $1 AND id = $2`
		}
		if _, err := tx.ExecContext(ctx, update, ref.Kind, ref.ID); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to update like_count", err)
		}
		return nil
	})
}

func (p *PostgresDB) SetSave(ctx context.Context, postID, userID string, saved bool) error {
	ref := models.EntityRef{Kind: models.EntityPost, ID: postID}
	return p.withTx(ctx, "save", func(tx *sqlx.Tx) error {
		if err := p.entityExists(ctx, tx, ref); err != nil {
			return err
		}

		var result sql.Result
		var err error
		if saved {
			result, err = tx.ExecContext(ctx,
				`INSERT INTO saves (post_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, postID, userID)
		} else {
			result, err = tx.ExecContext(ctx,
				`DELETE FROM saves WHERE post_id = $1 AND user_id = $2`, postID, userID)
		}
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
				return utils.NewUserNotFoundError(userID)
			}
			return utils.NewAppError(utils.ErrDatabase, "failed to update save record", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}

		update := `UPDATE entities SET save_count = save_count + 1 WHERE kind = 'post' AND id = $1`
		if !saved {
			update = `UPDATE entities SET save_count = GREATEST(0, save_count - 1) WHERE kind = 'post' AND id = $1`
		}
		if _, err := tx.ExecContext(ctx, update, postID); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to update save_count", err)
		}
		return nil
	})
}

func (p *PostgresDB) SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error {
	var err error
	if following {
		_, err = p.DB.ExecContext(ctx,
			`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			followerID, targetUserID)
	} else {
		_, err = p.DB.ExecContext(ctx,
			`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, targetUserID)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return utils.NewUserNotFoundError(targetUserID)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to update follow record", err)
	}
	return nil
}

// User methods

func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, display_name, photo_url, bio, created_at)
		VALUES (:id, :username, :display_name, :photo_url, :bio, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			photo_url = EXCLUDED.photo_url,
			bio = EXCLUDED.bio
	`
	row := *user
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, err := p.DB.NamedExecContext(ctx, query, &row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return utils.NewAppError(utils.ErrDuplicate, "username already taken: "+user.Username, err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (p *PostgresDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, display_name, photo_url, bio, created_at FROM users WHERE id = $1`
	if err := p.DB.GetContext(ctx, user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user", err)
	}

	var rel struct {
		Followers pq.StringArray `db:"followers"`
		Following pq.StringArray `db:"following"`
		Saved     pq.StringArray `db:"saved"`
	}
	relQuery := `
		SELECT
			ARRAY(SELECT follower_id FROM follows WHERE followee_id = $1 ORDER BY created_at) AS followers,
			ARRAY(SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY created_at) AS following,
			ARRAY(SELECT post_id FROM saves WHERE user_id = $1 ORDER BY created_at) AS saved
	`
	if err := p.DB.GetContext(ctx, &rel, relQuery, id); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to load user relationships", err)
	}
	user.Followers = []string(rel.Followers)
	user.Following = []string(rel.Following)
	user.SavedPosts = []string(rel.Saved)
	return user, nil
}

func (p *PostgresDB) SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	limit = clampLimit(limit, DefaultSearchLimit)
	var users []*models.User
	query := `
		SELECT id, username, display_name, photo_url, bio, created_at
		FROM users
		WHERE lower(username) LIKE $1 ESCAPE '\'
		ORDER BY username
		LIMIT $2
	`
	if err := p.DB.SelectContext(ctx, &users, query, likePrefix(prefix), limit); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to search users", err)
	}
	return users, nil
}

// Comment methods

// commentRow is the table shape of a comment; mention ids live in a TEXT[] column.
type commentRow struct {
	models.Comment
	Mentions pq.StringArray `db:"mention_ids"`
}

func (r *commentRow) toModel() *models.Comment {
	c := r.Comment
	c.MentionIDs = []string(r.Mentions)
	return &c
}

const commentColumns = `id, entity_kind, entity_id, parent_id, author_id, author_name, author_avatar,
	text, created_at, is_edited, reply_to_username, mention_ids`

func (p *PostgresDB) GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error) {
	var rows []*commentRow
	query := `SELECT ` + commentColumns + ` FROM comments WHERE entity_kind = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC`
	if err := p.DB.SelectContext(ctx, &rows, query, ref.Kind, ref.ID); err != nil {
		p.logger.Error("Error querying entity comments", zap.String("entity", ref.String()), zap.Error(err))
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query entity comments", err)
	}
	comments := make([]*models.Comment, len(rows))
	for i, r := range rows {
		comments[i] = r.toModel()
	}
	return comments, nil
}

func (p *PostgresDB) GetComment(ctx context.Context, ref models.EntityRef, commentID string) (*models.Comment, error) {
	var row commentRow
	query := `SELECT ` + commentColumns + ` FROM comments WHERE entity_kind = $1 AND entity_id = $2 AND id = $3`
	if err := p.DB.GetContext(ctx, &row, query, ref.Kind, ref.ID, commentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewCommentNotFoundError(commentID)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get comment", err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) SaveCommentAndIncrementCount(ctx context.Context, comment *models.Comment) error {
	ref := comment.Ref()
	return p.withTx(ctx, "save comment", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE entities SET comment_count = comment_count + 1 WHERE kind = $1 AND id = $2`, ref.Kind, ref.ID)
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to update comment_count", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return utils.NewEntityNotFoundError(ref)
		}

		row := commentRow{Comment: *comment, Mentions: pq.StringArray(comment.MentionIDs)}
		if row.Mentions == nil {
			row.Mentions = pq.StringArray{}
		}
		query := `
			INSERT INTO comments (` + commentColumns + `)
			VALUES (:id, :entity_kind, :entity_id, :parent_id, :author_id, :author_name, :author_avatar,
				:text, :created_at, :is_edited, :reply_to_username, :mention_ids)
		`
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to insert comment", err)
		}
		return nil
	})
}

func (p *PostgresDB) UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE comments SET text = $1, is_edited = TRUE WHERE entity_kind = $2 AND entity_id = $3 AND id = $4`,
		text, ref.Kind, ref.ID, commentID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update comment", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewCommentNotFoundError(commentID)
	}
	return nil
}

func (p *PostgresDB) DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error {
	return p.withTx(ctx, "delete comment", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE entity_kind = $1 AND entity_id = $2 AND id = $3`, ref.Kind, ref.ID, commentID)
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete comment", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return utils.NewCommentNotFoundError(commentID)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE entities SET comment_count = GREATEST(0, comment_count - 1) WHERE kind = $1 AND id = $2`,
			ref.Kind, ref.ID)
		if err != nil {
			p.logger.Error("Failed to decrement comment_count, rolling back comment deletion",
				zap.String("entity", ref.String()), zap.Error(err))
			return utils.NewAppError(utils.ErrDatabase, "failed to update comment_count after deleting comment", err)
		}
		return nil
	})
}

// Notification methods

func (p *PostgresDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, receiver_id, sender_id, sender_name, sender_avatar, type, entity_kind, entity_id, read, created_at)
		VALUES (:id, :receiver_id, :sender_id, :sender_name, :sender_avatar, :type, :entity_kind, :entity_id, :read, :created_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, n); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save notification", err)
	}
	return nil
}

func (p *PostgresDB) GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error) {
	limit = clampLimit(limit, DefaultNotificationLimit)
	var out []*models.Notification
	query := `
		SELECT id, receiver_id, sender_id, sender_name, sender_avatar, type, entity_kind, entity_id, read, created_at
		FROM notifications
		WHERE receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := p.DB.SelectContext(ctx, &out, query, receiverID, limit); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query notifications", err)
	}
	return out, nil
}

func (p *PostgresDB) MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE receiver_id = $1 AND id = $2`, receiverID, notificationID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark notification read", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrNotFound, "Notification not found: "+notificationID, nil)
	}
	return nil
}

func (p *PostgresDB) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	if _, err := p.DB.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE receiver_id = $1 AND read = FALSE`, receiverID); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark notifications read", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (p *PostgresDB) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin transaction for "+op, err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to commit "+op+" transaction", err)
	}
	return nil
}

func (p *PostgresDB) entityExists(ctx context.Context, tx *sqlx.Tx, ref models.EntityRef) error {
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM entities WHERE kind = $1 AND id = $2)`, ref.Kind, ref.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to look up entity", err)
	}
	if !exists {
		return utils.NewEntityNotFoundError(ref)
	}
	return nil
}

// likePrefix escapes LIKE wildcards and appends the prefix match.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}
