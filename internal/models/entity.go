package models

import (
	"fmt"
	"strings"
)

// EntityKind identifies which collection an entity lives in.
type EntityKind string

const (
	EntityPost  EntityKind = "post"
	EntityReel  EntityKind = "reel"
	EntityStory EntityKind = "story"
	EntityUser  EntityKind = "user"
)

// Valid reports whether k is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityPost, EntityReel, EntityStory, EntityUser:
		return true
	default:
		return false
	}
}

// Commentable reports whether entities of this kind carry a comment thread.
func (k EntityKind) Commentable() bool {
	return k == EntityPost || k == EntityReel || k == EntityStory
}

// EntityRef addresses a single post, reel, story or user.
type EntityRef struct {
	Kind EntityKind `json:"kind" bson:"kind" firestore:"kind"`
	ID   string     `json:"id" bson:"id" firestore:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Validate checks that the reference names a known kind and a non-empty id.
func (r EntityRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("empty %s id", r.Kind)
	}
	return nil
}

// Entity is the slice of a post/reel/story/user record the core needs: who owns
// it and the stored counters. LikedByViewer is resolved for the requesting user.
type Entity struct {
	Ref           EntityRef `json:"ref"`
	OwnerID       string    `json:"ownerId"`
	LikeCount     int       `json:"likeCount"`
	CommentCount  int       `json:"commentCount"`
	SaveCount     int       `json:"saveCount"`
	FollowerCount int       `json:"followerCount"`
	LikedByViewer bool      `json:"likedByViewer"`
}
