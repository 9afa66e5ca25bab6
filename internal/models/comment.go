package models

import (
	"errors"
	"strings"
	"time"
)

// Comment is the single record shape for comments on posts, reels and stories.
// Optional fields are pointers; every record is normalized and validated at the
// data-access boundary before callers see it.
type Comment struct {
	ID              string     `json:"id" db:"id" bson:"_id" firestore:"-"`
	EntityID        string     `json:"entityId" db:"entity_id" bson:"entityId" firestore:"entityId"`
	EntityKind      EntityKind `json:"entityKind" db:"entity_kind" bson:"entityKind" firestore:"entityKind"`
	ParentID        *string    `json:"parentId,omitempty" db:"parent_id" bson:"parentId,omitempty" firestore:"parentId"`
	AuthorID        string     `json:"authorId" db:"author_id" bson:"authorId" firestore:"userId"`
	AuthorName      string     `json:"authorName" db:"author_name" bson:"authorName" firestore:"username"`
	AuthorAvatar    string     `json:"authorAvatar,omitempty" db:"author_avatar" bson:"authorAvatar,omitempty" firestore:"userAvatar"`
	Text            string     `json:"text" db:"text" bson:"text" firestore:"text"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at" bson:"createdAt" firestore:"createdAt"`
	IsEdited        bool       `json:"isEdited" db:"is_edited" bson:"isEdited" firestore:"isEdited"`
	ReplyToUsername *string    `json:"replyToUsername,omitempty" db:"reply_to_username" bson:"replyToUsername,omitempty" firestore:"replyToUsername"`
	MentionIDs      []string   `json:"mentionIds,omitempty" db:"-" bson:"mentionIds,omitempty" firestore:"mentionIds"`
}

var (
	ErrCommentMissingID     = errors.New("comment has no id")
	ErrCommentMissingAuthor = errors.New("comment has no author")
	ErrCommentEmptyText     = errors.New("comment text is empty")
	ErrCommentNoTimestamp   = errors.New("comment has no creation time")
)

// Ref returns the entity the comment belongs to.
func (c Comment) Ref() EntityRef {
	return EntityRef{Kind: c.EntityKind, ID: c.EntityID}
}

// IsReply reports whether the comment names a parent.
func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

// Normalized returns a copy with blank optional fields collapsed to nil.
func (c Comment) Normalized() Comment {
	if c.ParentID != nil && strings.TrimSpace(*c.ParentID) == "" {
		c.ParentID = nil
	}
	if c.ReplyToUsername != nil && strings.TrimSpace(*c.ReplyToUsername) == "" {
		c.ReplyToUsername = nil
	}
	if len(c.MentionIDs) == 0 {
		c.MentionIDs = nil
	}
	return c
}

// Validate checks the fields every stored comment must carry.
func (c Comment) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrCommentMissingID
	}
	if strings.TrimSpace(c.AuthorID) == "" {
		return ErrCommentMissingAuthor
	}
	if strings.TrimSpace(c.Text) == "" {
		return ErrCommentEmptyText
	}
	if c.CreatedAt.IsZero() {
		return ErrCommentNoTimestamp
	}
	return nil
}

// CommentNode is a comment with its direct replies, in fetch order.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}

// NewComment carries the caller-supplied fields of a comment being created.
type NewComment struct {
	Author          User
	Text            string
	MentionIDs      []string
	ParentID        *string
	ReplyToUsername *string
}
