// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoDB struct {
	Client        *mongo.Client
	Users         *mongo.Collection
	Entities      *mongo.Collection
	Comments      *mongo.Collection
	Notifications *mongo.Collection
	logger        *zap.Logger
}

// entityDocument is one post/reel/story; _id is the EntityRef string ("post/abc").
type entityDocument struct {
	Key          string   `bson:"_id"`
	Kind         string   `bson:"kind"`
	EntityID     string   `bson:"entityId"`
	OwnerID      string   `bson:"ownerId"`
	Likes        []string `bson:"likes"`
	LikeCount    int      `bson:"likeCount"`
	CommentCount int      `bson:"commentCount"`
	SaveCount    int      `bson:"saveCount"`
}

func NewMongoDB(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	logger.Info("Successfully connected to MongoDB", zap.String("database", dbName))

	db := client.Database(dbName)
	return &MongoDB{
		Client:        client,
		Users:         db.Collection("users"),
		Entities:      db.Collection("entities"),
		Comments:      db.Collection("comments"),
		Notifications: db.Collection("notifications"),
		logger:        logger,
	}, nil
}

// EnsureIndexes creates the lookup indexes used by the queries below.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	if _, err := m.Comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entityKind", Value: 1}, {Key: "entityId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create comments index: %v", err)
	}
	if _, err := m.Notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create notifications index: %v", err)
	}
	if _, err := m.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create users index: %v", err)
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// Entity methods

func (m *MongoDB) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if err := entity.Ref.Validate(); err != nil {
		return utils.NewAppError(utils.ErrInvalidInput, "invalid entity", err)
	}
	filter := bson.M{"_id": entity.Ref.String()}
	update := bson.M{
		"$set": bson.M{
			"kind":         string(entity.Ref.Kind),
			"entityId":     entity.Ref.ID,
			"ownerId":      entity.OwnerID,
			"commentCount": max(0, entity.CommentCount),
			"saveCount":    max(0, entity.SaveCount),
		},
		"$setOnInsert": bson.M{"likes": bson.A{}, "likeCount": 0},
	}
	if _, err := m.Entities.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save entity", err)
	}
	return nil
}

func (m *MongoDB) GetEntity(ctx context.Context, ref models.EntityRef, requestingUserID string) (*models.Entity, error) {
	if ref.Kind == models.EntityUser {
		user, err := m.GetUser(ctx, ref.ID)
		if err != nil {
			if utils.IsNotFound(err) {
				return nil, utils.NewEntityNotFoundError(ref)
			}
			return nil, err
		}
		return &models.Entity{Ref: ref, OwnerID: user.ID, FollowerCount: len(user.Followers)}, nil
	}

	var doc entityDocument
	err := m.Entities.FindOne(ctx, bson.M{"_id": ref.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewEntityNotFoundError(ref)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get entity", err)
	}
	liked := false
	for _, id := range doc.Likes {
		if id == requestingUserID {
			liked = true
			break
		}
	}
	return &models.Entity{
		Ref:           ref,
		OwnerID:       doc.OwnerID,
		LikeCount:     doc.LikeCount,
		CommentCount:  doc.CommentCount,
		SaveCount:     doc.SaveCount,
		LikedByViewer: liked,
	}, nil
}

// SetLike only moves likeCount when the likes array actually changed.
func (m *MongoDB) SetLike(ctx context.Context, ref models.EntityRef, userID string, liked bool) error {
	key := ref.String()
	var filter, update bson.M
	if liked {
		filter = bson.M{"_id": key, "likes": bson.M{"$ne": userID}}
		update = bson.M{"$addToSet": bson.M{"likes": userID}, "$inc": bson.M{"likeCount": 1}}
	} else {
		filter = bson.M{"_id": key, "likes": userID}
		update = bson.M{"$pull": bson.M{"likes": userID}}
	}

	result, err := m.Entities.UpdateOne(ctx, filter, update)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update likes", err)
	}
	if result.MatchedCount == 0 {
		return m.requireEntity(ctx, ref)
	}
	if !liked {
		return m.decrementCounter(ctx, key, "likeCount")
	}
	return nil
}

func (m *MongoDB) SetSave(ctx context.Context, postID, userID string, saved bool) error {
	ref := models.EntityRef{Kind: models.EntityPost, ID: postID}
	if err := m.requireEntity(ctx, ref); err != nil {
		return err
	}

	var filter, update bson.M
	if saved {
		filter = bson.M{"_id": userID, "savedPosts": bson.M{"$ne": postID}}
		update = bson.M{"$addToSet": bson.M{"savedPosts": postID}}
	} else {
		filter = bson.M{"_id": userID, "savedPosts": postID}
		update = bson.M{"$pull": bson.M{"savedPosts": postID}}
	}
	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update saved posts", err)
	}
	if result.ModifiedCount == 0 {
		if _, err := m.GetUser(ctx, userID); err != nil {
			return err
		}
		return nil
	}

	if saved {
		_, err = m.Entities.UpdateOne(ctx, bson.M{"_id": ref.String()}, bson.M{"$inc": bson.M{"saveCount": 1}})
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to update saveCount", err)
		}
		return nil
	}
	return m.decrementCounter(ctx, ref.String(), "saveCount")
}

func (m *MongoDB) SetFollow(ctx context.Context, targetUserID, followerID string, following bool) error {
	op := "$addToSet"
	if !following {
		op = "$pull"
	}
	result, err := m.Users.UpdateOne(ctx, bson.M{"_id": targetUserID}, bson.M{op: bson.M{"followers": followerID}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update followers", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(targetUserID)
	}
	result, err = m.Users.UpdateOne(ctx, bson.M{"_id": followerID}, bson.M{op: bson.M{"following": targetUserID}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update following", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(followerID)
	}
	return nil
}

// User methods

func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	doc := *user
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Followers == nil {
		doc.Followers = []string{}
	}
	if doc.Following == nil {
		doc.Following = []string{}
	}
	if doc.SavedPosts == nil {
		doc.SavedPosts = []string{}
	}

	_, err := m.Users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, &doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrDuplicate, "username already taken: "+user.Username, err)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (m *MongoDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := m.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get user", err)
	}
	return &user, nil
}

func (m *MongoDB) SearchUsers(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	limit = clampLimit(limit, DefaultSearchLimit)
	filter := bson.M{"username": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix), "$options": "i"}}
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}}).SetLimit(int64(limit))

	cursor, err := m.Users.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to search users", err)
	}
	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode users", err)
	}
	return users, nil
}

// Comment methods

func (m *MongoDB) GetEntityComments(ctx context.Context, ref models.EntityRef) ([]*models.Comment, error) {
	filter := bson.M{"entityKind": ref.Kind, "entityId": ref.ID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Comments.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get entity comments", err)
	}
	defer cursor.Close(ctx)

	var comments []*models.Comment
	for cursor.Next(ctx) {
		var c models.Comment
		if err := cursor.Decode(&c); err != nil {
			m.logger.Warn("Skipping undecodable comment", zap.String("entity", ref.String()), zap.Error(err))
			continue
		}
		comments = append(comments, &c)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to iterate entity comments", err)
	}
	return comments, nil
}

func (m *MongoDB) GetComment(ctx context.Context, ref models.EntityRef, commentID string) (*models.Comment, error) {
	var c models.Comment
	err := m.Comments.FindOne(ctx, bson.M{"_id": commentID, "entityKind": ref.Kind, "entityId": ref.ID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewCommentNotFoundError(commentID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get comment", err)
	}
	return &c, nil
}

func (m *MongoDB) SaveCommentAndIncrementCount(ctx context.Context, comment *models.Comment) error {
	ref := comment.Ref()
	result, err := m.Entities.UpdateOne(ctx, bson.M{"_id": ref.String()}, bson.M{"$inc": bson.M{"commentCount": 1}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update commentCount", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewEntityNotFoundError(ref)
	}

	if _, err := m.Comments.InsertOne(ctx, comment); err != nil {
		// Undo the increment; standalone deployments have no multi-document transactions.
		if derr := m.decrementCounter(ctx, ref.String(), "commentCount"); derr != nil {
			m.logger.Error("Failed to restore commentCount", zap.String("entity", ref.String()), zap.Error(derr))
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to insert comment", err)
	}
	return nil
}

func (m *MongoDB) UpdateCommentText(ctx context.Context, ref models.EntityRef, commentID, text string) error {
	filter := bson.M{"_id": commentID, "entityKind": ref.Kind, "entityId": ref.ID}
	result, err := m.Comments.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"text": text, "isEdited": true}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update comment", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewCommentNotFoundError(commentID)
	}
	return nil
}

func (m *MongoDB) DeleteCommentAndDecrementCount(ctx context.Context, ref models.EntityRef, commentID string) error {
	result, err := m.Comments.DeleteOne(ctx, bson.M{"_id": commentID, "entityKind": ref.Kind, "entityId": ref.ID})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete comment", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewCommentNotFoundError(commentID)
	}
	return m.decrementCounter(ctx, ref.String(), "commentCount")
}

// Notification methods

func (m *MongoDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	if _, err := m.Notifications.InsertOne(ctx, n); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save notification", err)
	}
	return nil
}

func (m *MongoDB) GetNotifications(ctx context.Context, receiverID string, limit int) ([]*models.Notification, error) {
	limit = clampLimit(limit, DefaultNotificationLimit)
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.Notifications.Find(ctx, bson.M{"receiverId": receiverID}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query notifications", err)
	}
	var out []*models.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode notifications", err)
	}
	return out, nil
}

func (m *MongoDB) MarkNotificationRead(ctx context.Context, receiverID, notificationID string) error {
	result, err := m.Notifications.UpdateOne(ctx,
		bson.M{"_id": notificationID, "receiverId": receiverID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark notification read", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewAppError(utils.ErrNotFound, "Notification not found: "+notificationID, nil)
	}
	return nil
}

func (m *MongoDB) MarkAllNotificationsRead(ctx context.Context, receiverID string) error {
	_, err := m.Notifications.UpdateMany(ctx,
		bson.M{"receiverId": receiverID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to mark notifications read", err)
	}
	return nil
}

// decrementCounter lowers a counter field by one, never below zero.
func (m *MongoDB) decrementCounter(ctx context.Context, key, field string) error {
	_, err := m.Entities.UpdateOne(ctx,
		bson.M{"_id": key, field: bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{field: -1}})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to decrement "+field, err)
	}
	return nil
}

func (m *MongoDB) requireEntity(ctx context.Context, ref models.EntityRef) error {
	n, err := m.Entities.CountDocuments(ctx, bson.M{"_id": ref.String()}, options.Count().SetLimit(1))
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to look up entity", err)
	}
	if n == 0 {
		return utils.NewEntityNotFoundError(ref)
	}
	return nil
}
