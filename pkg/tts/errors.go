package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID is returned when the voice ID is missing.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrEmptyText is returned when asked to synthesize blank text.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("tts: stream closed")

	// ErrUnavailable is returned by a provider that cannot serve requests.
	ErrUnavailable = errors.New("tts: provider unavailable")

	// ErrUnknownDuration is returned when audio duration cannot be decoded.
	ErrUnknownDuration = errors.New("tts: cannot determine audio duration")
)

// APIError is a non-200 answer from a synthesis endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string // provider error code, may be empty
	Message    string
}

func (e *APIError) Error() string {
	status := http.StatusText(e.StatusCode)
	if e.Code != "" {
		status = e.Code
	}
	return fmt.Sprintf("tts [%s]: %d %s: %s", e.Provider, e.StatusCode, status, e.Message)
}

// Unauthorized reports a rejected API key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Temporary reports whether repeating the request may succeed: rate limits
// and server errors.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Retryable reports whether err carries a temporary APIError.
func Retryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// ProviderError attributes a transport or decoding failure to a provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError attributes err to provider. It returns nil for a nil err and
// leaves APIError values unwrapped.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
