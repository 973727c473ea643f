// Package dto defines the request and response shapes of the HTTP API
package dto

// APIResponse is the envelope every endpoint responds with
type APIResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// ErrorDetail carries a machine-readable error code alongside the message
type ErrorDetail struct {
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// Pagination describes the page of a list response
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
