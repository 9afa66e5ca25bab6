package models

// StatusResponse is the generic acknowledgement returned by actors and handlers
// for operations that have no payload of their own.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
