package models

import "time"

type User struct {
	ID          string    `json:"id" db:"id" bson:"_id" firestore:"uid"`
	Username    string    `json:"username" db:"username" bson:"username" firestore:"username"`
	DisplayName string    `json:"displayName,omitempty" db:"display_name" bson:"displayName,omitempty" firestore:"displayName"`
	PhotoURL    string    `json:"photoUrl,omitempty" db:"photo_url" bson:"photoUrl,omitempty" firestore:"photoURL"`
	Bio         string    `json:"bio,omitempty" db:"bio" bson:"bio,omitempty" firestore:"bio"`
	Followers   []string  `json:"followers" db:"-" bson:"followers" firestore:"followers"`
	Following   []string  `json:"following" db:"-" bson:"following" firestore:"following"`
	SavedPosts  []string  `json:"savedPosts" db:"-" bson:"savedPosts" firestore:"savedPosts"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at" bson:"createdAt" firestore:"createdAt"`
}

// MentionCandidate is a user directory hit offered while composing a comment.
type MentionCandidate struct {
	UserID      string `json:"userId" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"displayName,omitempty" db:"display_name"`
}

// Candidate projects the user onto the mention suggestion shape.
func (u *User) Candidate() MentionCandidate {
	return MentionCandidate{UserID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}
