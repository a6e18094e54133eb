package azdo

import "fmt"

// AuthorizationError is a terminal 401/403 from the work-tracking API.
// Never retried.
type AuthorizationError struct {
	StatusCode int
	Message    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// ValidationError is a terminal 400/404, or a request rejected locally
// before any network call (empty title, no fields to update).
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("validation failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// APIError is any other terminal non-2xx response, including a transient
// status that survived the retry budget.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
}

// wireError is the structured error body the service returns.
type wireError struct {
	Message   string `json:"message"`
	TypeKey   string `json:"typeKey"`
	ErrorCode int    `json:"errorCode"`
}
