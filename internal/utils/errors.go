package utils

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Unwrap exposes the origin to errors.Is / errors.As.
func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // User is authenticated but doesn't have permission
	ErrInvalidToken = "INVALID_TOKEN"

	ErrUserNotFound    = "USER_NOT_FOUND"
	ErrEntityNotFound  = "ENTITY_NOT_FOUND"
	ErrCommentNotFound = "COMMENT_NOT_FOUND"

	// Client core errors
	ErrRemoteWrite    = "REMOTE_WRITE_FAILED"
	ErrSubmitInFlight = "SUBMIT_IN_FLIGHT"
	ErrInvalidState   = "INVALID_STATE"

	// Actor communication errors
	ErrActorTimeout    = "ACTOR_TIMEOUT"
	ErrActorNotFound   = "ACTOR_NOT_FOUND"
	ErrMessageRejected = "MESSAGE_REJECTED"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewUserNotFoundError(userId string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userId,
	}
}

func NewEntityNotFoundError(ref fmt.Stringer) *AppError {
	return &AppError{
		Code:    ErrEntityNotFound,
		Message: "Entity not found: " + ref.String(),
	}
}

func NewCommentNotFoundError(commentID string) *AppError {
	return &AppError{
		Code:    ErrCommentNotFound,
		Message: "Comment not found: " + commentID,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

// NewActionFailedError names the user-authored action that failed, for the
// blocking alert shown by clients.
func NewActionFailedError(action string, origin error) *AppError {
	code := ErrRemoteWrite
	var appErr *AppError
	if errors.As(origin, &appErr) && isNotFoundCode(appErr.Code) {
		code = appErr.Code
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf("Failed to %s", action),
		Origin:  origin,
	}
}

func NewActorTimeoutError(actorName string) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
	}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound reports whether err carries any of the not-found codes.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return isNotFoundCode(appErr.Code)
	}
	return false
}

func isNotFoundCode(code string) bool {
	switch code {
	case ErrNotFound, ErrUserNotFound, ErrEntityNotFound, ErrCommentNotFound, ErrActorNotFound:
		return true
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrForbidden ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound, ErrEntityNotFound, ErrCommentNotFound, ErrActorNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrForbidden:
		return 403 // http.StatusForbidden
	case ErrDuplicate, ErrSubmitInFlight, ErrInvalidState:
		return 409 // http.StatusConflict
	case ErrRemoteWrite:
		return 502 // http.StatusBadGateway
	case ErrDatabase, ErrActorTimeout, ErrMessageRejected:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
