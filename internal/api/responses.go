// Package api holds the JSON shapes the HTTP layer returns that are not
// domain models of their own.
package api

import (
	"time"

	"snapfeed/internal/models"
	"snapfeed/internal/session"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ToggleResponse carries the optimistic state of an accepted toggle. Outcome
// arrives later on the websocket when the remote write fails.
type ToggleResponse struct {
	Success bool                `json:"success"`
	State   models.SocialAction `json:"state"`
}

type HealthResponse struct {
	Status           string    `json:"status"`
	MountedThreads   int       `json:"mounted_threads"`
	MountedMutations int       `json:"mounted_mutations"`
	ServerTime       time.Time `json:"server_time"`
}

// NotificationsResponse lists the receiver's notifications, newest first.
type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

// MarkReadRequest marks one notification read, or all of them when ID is empty.
type MarkReadRequest struct {
	ID string `json:"id,omitempty"`
}

// SessionResponse is the caller's profile with the relationship sets the
// optimistic toggles keep current.
type SessionResponse struct {
	User          models.User      `json:"user"`
	Relationships session.Snapshot `json:"relationships"`
}
