// internal/database/firestore.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapfeed/internal/config"
	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDB stores data in the layout the mobile app writes directly:
// posts/{id}, reels/{id} and stories/{id} with a "comments" subcollection,
// users/{uid} carrying relationship arrays, and users/{uid}/notifications.
type FirestoreDB struct {
	Client *firestore.Client
	logger *zap.Logger
}

// firestoreEntity is the counter/ownership slice of a post, reel or story document.
type firestoreEntity struct {
	OwnerID       string   `firestore:"userId"`
	Likes         []string `firestore:"likes"`
	CommentsCount int      `firestore:"commentsCount"`
	SaveCount     int      `firestore:"saveCount"`
}

// NewFirebaseApp initializes the Firebase app shared by the store and ID-token auth.
func NewFirebaseApp(ctx context.Context, cfg *config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %v", err)
	}
	return app, nil
}

func NewFirestoreDB(ctx context.Context, cfg *config.FirebaseConfig, logger *zap.Logger) (*FirestoreDB, error) {
	app, err := NewFirebaseApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open Firestore: %v", err)
	}
	logger.Info("Successfully connected to Firestore", zap.String("project", cfg.ProjectID))
	return &FirestoreDB{Client: client, logger: logger}, nil
}

func (f *FirestoreDB) Close(ctx context.Context) error {
	return f.Client.Close()
}

func (f *FirestoreDB) entityDoc(ref models.EntityRef) *firestore.DocumentRef {
	return f.Client.Collection(entityCollection(ref.Kind)).Doc(ref.ID)
}

func (f *FirestoreDB) commentsOf(ref models.EntityRef) *firestore.CollectionRef {
	return f.entityDoc(ref).Collection("comments")
}

func (f *FirestoreDB) userDoc(id string) *firestore.DocumentRef {
	return f.Client.Collection("users").Doc(id)
}

func (f *FirestoreDB) notificationsOf(receiverID string) *firestore.CollectionRef {
	return f.userDoc(receiverID).Collection("notifications")
}

// Entity methods

func (f *FirestoreDB) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if err := entity.Ref.Validate(); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	if entity.Ref.Kind == models.EntityUser {
		return utils.NewAppError(utils.ErrInvalidInput, "users are saved with SaveUser", nil)
	}
	_, err := f.entityDoc(entity.Ref).Set(ctx, map[string]interface{}{
		"userId":        entity.OwnerID,
		"commentsCount": max(0, entity.CommentCount),
		"saveCount":     max(0, entity.SaveCount),
	}, firestore.MergeAll)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save entity", err)
	}
	return nil
}

func (f *FirestoreDB) GetEntity(ctx context.Context, ref models.EntityRef, requestingUserID string) (*models.Entity, error) {
	if ref.Kind == models.EntityUser {
		user, err := f.GetUser(ctx, ref.ID)
		if err != nil {
			if utils.IsNotFound(err) {
				return nil, utils.NewEntityNotFoundError(ref)
			}
			return nil, err
		}
		return &models.Entity{Ref: ref, OwnerID: user.ID, FollowerCount: len(user.Followers)}, nil
	}

	snap, err := f.entityDoc(ref).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, utils.NewEntityNotFoundError(ref)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get entity", err)
	}
	var doc firestoreEntity
	if err := snap.DataTo(&doc); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode entity", err)
	}
	return &models.Entity{
		Ref:           ref,
		OwnerID:       doc.OwnerID,
		LikeCount:     len(doc.Likes),
		CommentCount:  doc.CommentsCount,
		SaveCount:     doc.SaveCount,
		LikedByViewer: contains(doc.Likes, requestingUserID),
	}, nil
}

// SetLike mirrors the app's arrayUnion/arrayRemove on the entity's likes array.
func (f *FirestoreDB) SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error {
	var value interface{} = firestore.ArrayUnion(userID)
	if !liked {
		value = firestore.ArrayRemove(userID)
	}
	_, err := f.entityDoc(ref).Update(ctx, []firestore.Update{{Path: "likes", Value: value}})
	if status.Code(err) == codes.NotFound {
		return utils.NewEntityNotFoundError(ref)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update likes", err)
	}
	return nil
}

func (f *FirestoreDB) SetSave(ctx context.Context, postID, userID string, saved bool) error {
	ref := models.EntityRef{Kind: models.EntityPost, ID: postID}
	err := f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		postSnap, err := tx.Get(f.entityDoc(ref))
		if status.Code(err) == codes.NotFound {
			return utils.NewEntityNotFoundError(ref)
		}
		if err != nil {
			return err
		}
		userSnap, err := tx.Get(f.userDoc(userID))
		if status.Code(err) == codes.NotFound {
			return utils.NewUserNotFoundError(userID)
		}
		if err != nil {
			return err
		}

		var user models.User
		if err := userSnap.DataTo(&user); err != nil {
			return err
		}
		if contains(user.SavedPosts, postID) == saved {
			return nil
		}

		var post firestoreEntity
		if err := postSnap.DataTo(&post); err != nil {
			return err
		}
		if saved {
			if err := tx.Update(userSnap.Ref, []firestore.Update{{Path: "savedPosts", Value: firestore.ArrayUnion(postID)}}); err != nil {
				return err
			}
			return tx.Update(postSnap.Ref, []firestore.Update{{Path: "saveCount", Value: post.SaveCount + 1}})
		}
		if err := tx.Update(userSnap.Ref, []firestore.Update{{Path: "savedPosts", Value: firestore.ArrayRemove(postID)}}); err != nil {
			return err
		}
		return tx.Update(postSnap.Ref, []firestore.Update{{Path: "saveCount", Value: max(0, post.SaveCount-1)}})
	})
	return f.wrapTxError(err, "failed to update saved posts")
}

func (f *FirestoreDB) SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error {
	change := func(id string) interface{} {
		if following {
			return firestore.ArrayUnion(id)
		}
		return firestore.ArrayRemove(id)
	}
	err := f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, id := range []string{targetUserID, followerID} {
			if _, err := tx.Get(f.userDoc(id)); status.Code(err) == codes.NotFound {
				return utils.NewUserNotFoundError(id)
			} else if err != nil {
				return err
			}
		}
		if err := tx.Update(f.userDoc(targetUserID), []firestore.Update{{Path: "followers", Value: change(followerID)}}); err != nil {
			return err
		}
		return tx.Update(f.userDoc(followerID), []firestore.Update{{Path: "following", Value: change(targetUserID)}})
	})
	return f.wrapTxError(err, "failed to update follow")
}

// User methods

func (f *FirestoreDB) SaveUser(ctx context.Context, user *models.User) error {
	doc := *user
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := f.userDoc(user.ID).Set(ctx, &doc); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (f *FirestoreDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	snap, err := f.userDoc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user", err)
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode user", err)
	}
	user.ID = snap.Ref.ID
	return &user, nil
}

// SearchUsers uses the app's range trick for prefix matching; it is case-sensitive.
func (f *FirestoreDB) SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	limit = clampLimit(limit, DefaultSearchLimit)
	q := f.Client.Collection("users").
		Where("username", ">=", prefix).
		Where("username", "<=", prefix+"\uf8ff").
		OrderBy("username", firestore.Asc).
		Limit(limit)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var users []*models.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to search users", err)
		}
		var user models.User
		if err := snap.DataTo(&user); err != nil {
			f.logger.Warn("Skipping undecodable user", zap.String("user_id", snap.Ref.ID), zap.Error(err))
			continue
		}
		user.ID = snap.Ref.ID
		users = append(users, &user)
	}
	return users, nil
}

// Comment methods

func (f *FirestoreDB) GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error) {
	snaps, err := f.commentsOf(ref).OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get entity comments", err)
	}
	comments := make([]*models.Comment, 0, len(snaps))
	for _, snap := range snaps {
		var c models.Comment
		if err := snap.DataTo(&c); err != nil {
			f.logger.Warn("Skipping undecodable comment", zap.String("comment_id", snap.Ref.ID), zap.Error(err))
			continue
		}
		c.ID = snap.Ref.ID
		c.EntityKind, c.EntityID = ref.Kind, ref.ID
		comments = append(comments, &c)
	}
	return comments, nil
}

func (f *FirestoreDB) GetComment(ctx context.Context, ref models.EntityRef, commentID string) (*models.Comment, error) {
	snap, err := f.commentsOf(ref).Doc(commentID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, utils.NewCommentNotFoundError(commentID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get comment", err)
	}
	var c models.Comment
	if err := snap.DataTo(&c); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode comment", err)
	}
	c.ID = snap.Ref.ID
	c.EntityKind, c.EntityID = ref.Kind, ref.ID
	return &c, nil
}

func (f *FirestoreDB) SaveCommentAndIncrementCount(ctx context.Context, comment *models.Comment) error {
	ref := comment.Ref()
	err := f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(f.entityDoc(ref)); status.Code(err) == codes.NotFound {
			return utils.NewEntityNotFoundError(ref)
		} else if err != nil {
			return err
		}
		if err := tx.Create(f.commentsOf(ref).Doc(comment.ID), comment); err != nil {
			return err
		}
		return tx.Update(f.entityDoc(ref), []firestore.Update{{Path: "commentsCount", Value: firestore.Increment(1)}})
	})
	return f.wrapTxError(err, "failed to save comment")
}

func (f *FirestoreDB) UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	_, err := f.commentsOf(ref).Doc(commentID).Update(ctx, []firestore.Update{
		{Path: "text", Value: text},
		{Path: "isEdited", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return utils.NewCommentNotFoundError(commentID)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update comment", err)
	}
	return nil
}

func (f *FirestoreDB) DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error {
	err := f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		commentRef := f.commentsOf(ref).Doc(commentID)
		if _, err := tx.Get(commentRef); status.Code(err) == codes.NotFound {
			return utils.NewCommentNotFoundError(commentID)
		} else if err != nil {
			return err
		}
		entitySnap, err := tx.Get(f.entityDoc(ref))
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Delete(commentRef); err != nil {
			return err
		}
		if entitySnap == nil || !entitySnap.Exists() {
			return nil
		}
		var doc firestoreEntity
		if err := entitySnap.DataTo(&doc); err != nil {
			return err
		}
		return tx.Update(entitySnap.Ref, []firestore.Update{{Path: "commentsCount", Value: max(0, doc.CommentsCount-1)}})
	})
	return f.wrapTxError(err, "failed to delete comment")
}

// Notification methods

func (f *FirestoreDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	if _, err := f.notificationsOf(n.ReceiverID).Doc(n.ID).Set(ctx, n); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save notification", err)
	}
	return nil
}

func (f *FirestoreDB) GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error) {
	limit = clampLimit(limit, DefaultNotificationLimit)
	snaps, err := f.notificationsOf(receiverID).OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query notifications", err)
	}
	out := make([]*models.Notification, 0, len(snaps))
	for _, snap := range snaps {
		var n models.Notification
		if err := snap.DataTo(&n); err != nil {
			f.logger.Warn("Skipping undecodable notification", zap.String("notification_id", snap.Ref.ID), zap.Error(err))
			continue
		}
		n.ID = snap.Ref.ID
		out = append(out, &n)
	}
	return out, nil
}

func (f *FirestoreDB) MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error {
	_, err := f.notificationsOf(receiverID).Doc(notificationID).Update(ctx, []firestore.Update{{Path: "read", Value: true}})
	if status.Code(err) == codes.NotFound {
		return utils.NewAppError(utils.ErrNotFound, "Notification not found: "+notificationID, err)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark notification read", err)
	}
	return nil
}

func (f *FirestoreDB) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	snaps, err := f.notificationsOf(receiverID).Where("read", "==", false).Documents(ctx).GetAll()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to query unread notifications", err)
	}
	if len(snaps) == 0 {
		return nil
	}

	bw := f.Client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Update(snap.Ref, []firestore.Update{{Path: "read", Value: true}})
		if err != nil {
			bw.End()
			return utils.NewAppError(utils.ErrDatabase, "failed to queue notification update", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to mark notifications read", err)
		}
	}
	return nil
}

// wrapTxError keeps AppErrors raised inside a transaction and wraps the rest.
func (f *FirestoreDB) wrapTxError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return utils.NewAppError(utils.ErrDatabase, message, err)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
