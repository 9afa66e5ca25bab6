package models

import "time"

type NotificationType string

const (
	NotifyLike    NotificationType = "like"
	NotifyComment NotificationType = "comment"
	NotifyReply   NotificationType = "reply"
	NotifyMention NotificationType = "mention"
	NotifyFollow  NotificationType = "follow"
)

// Notification is an activity record stored under its receiver.
// EntityKind/EntityID are empty for follow notifications.
type Notification struct {
	ID           string           `json:"id" db:"id" bson:"_id" firestore:"-"`
	ReceiverID   string           `json:"receiverId" db:"receiver_id" bson:"receiverId" firestore:"receiverId"`
	SenderID     string           `json:"senderId" db:"sender_id" bson:"senderId" firestore:"senderId"`
	SenderName   string           `json:"senderName" db:"sender_name" bson:"senderName" firestore:"senderName"`
	SenderAvatar string           `json:"senderAvatar,omitempty" db:"sender_avatar" bson:"senderAvatar,omitempty" firestore:"senderAvatar"`
	Type         NotificationType `json:"type" db:"type" bson:"type" firestore:"type"`
	EntityKind   EntityKind       `json:"entityKind,omitempty" db:"entity_kind" bson:"entityKind,omitempty" firestore:"entityKind"`
	EntityID     string           `json:"entityId,omitempty" db:"entity_id" bson:"entityId,omitempty" firestore:"entityId"`
	Read         bool             `json:"read" db:"read" bson:"read" firestore:"read"`
	CreatedAt    time.Time        `json:"createdAt" db:"created_at" bson:"createdAt" firestore:"createdAt"`
}
