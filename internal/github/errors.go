package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GitHub-specific errors.
var (
	// ErrInvalidRepoURL indicates the URL does not point at a github.com repository.
	ErrInvalidRepoURL = errors.New("github: invalid repository URL")

	// ErrHookExists indicates an identical webhook is already registered on the repository.
	ErrHookExists = errors.New("github: webhook already exists")

	// ErrBadCredentials indicates the delegated access token was rejected or missing.
	ErrBadCredentials = errors.New("github: bad credentials")
)

// RateLimitError represents a rate limit exceeded error with reset time.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// APIError represents a non-2xx GitHub API response. Message carries the
// upstream error payload when GitHub sent one.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
	URL        string
}

func (e *APIError) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("GitHub API error %d: %s", e.StatusCode, msg)
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrBadCredentials) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
