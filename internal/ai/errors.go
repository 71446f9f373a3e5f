package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrProviderAuth        = errors.New("provider rejected credentials")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
	ErrProviderIntegrity   = errors.New("provider response violated contract")
	ErrProviderRequest     = errors.New("provider rejected request")
)

// StatusOverloaded is returned by Anthropic when capacity is exhausted.
const StatusOverloaded = 529

// ProviderError carries the provider status and detail. Kind is one of the
// ErrProvider sentinels and is what errors.Is matches against.
type ProviderError struct {
	Provider   string
	StatusCode int
	Kind       error
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

func classifyStatus(provider string, status int, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}

	kind := ErrProviderRequest
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrProviderAuth
	case status == http.StatusTooManyRequests:
		kind = ErrProviderRateLimited
	case status == StatusOverloaded || status == http.StatusRequestTimeout || status >= 500:
		kind = ErrProviderUnavailable
	case strings.Contains(msg, "invalid_api_key"):
		kind = ErrProviderAuth
	}
	return &ProviderError{Provider: provider, StatusCode: status, Kind: kind, Message: msg}
}

func transportError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrProviderUnavailable, Message: err.Error()}
}

func integrityError(provider, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrProviderIntegrity, Message: fmt.Sprintf(format, args...)}
}

// NewIntegrityError reports a provider contract violation detected by a caller.
func NewIntegrityError(provider, format string, args ...any) error {
	return integrityError(provider, format, args...)
}
