package models

import "time"

// DataResponse mirrors the remote service's {data, error} envelope so the UI
// handles online and queued writes the same way
type DataResponse struct {
	Data  interface{} `json:"data"`
	Error *APIError   `json:"error"`
	// Queued is true when the write was deferred to the offline queue
	Queued bool `json:"queued,omitempty"`
}

// APIError is the error half of a DataResponse
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// HealthResponse is returned by the health check endpoint
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Online            bool      `json:"online"`
	PendingOperations int       `json:"pendingOperations"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
