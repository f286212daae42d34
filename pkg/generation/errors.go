package generation

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey     = errors.New("generation: API key required")
	ErrNoModel      = errors.New("generation: model required")
	ErrStreamClosed = errors.New("generation: stream closed")

	// ErrEmptyPrompt is returned for a request without user content.
	ErrEmptyPrompt = errors.New("generation: empty prompt")
)

// APIError is an error answer from a completion endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	status := http.StatusText(e.StatusCode)
	if e.Code != "" {
		status = e.Code
	}
	return fmt.Sprintf("generation [%s]: %d %s: %s", e.Provider, e.StatusCode, status, e.Message)
}

// RateLimited reports an HTTP 429 answer.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Unauthorized reports a rejected API key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Temporary reports rate limits and server errors.
func (e *APIError) Temporary() bool {
	return e.RateLimited() || e.StatusCode >= 500
}

// ProviderError attributes a failure to the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generation [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError attributes err to provider. Errors already attributed to the
// same provider, and APIError values, are returned unchanged.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var (
		pe     *ProviderError
		apiErr *APIError
	)
	if errors.As(err, &apiErr) || (errors.As(err, &pe) && pe.Provider == provider) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
