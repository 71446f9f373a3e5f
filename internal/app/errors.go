package app

import (
	"errors"
	"fmt"

	"docchat/internal/ai"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrDocumentEmpty     = errors.New("document has no extractable text")
	ErrDocumentTooLarge  = errors.New("document exceeds the upload size limit")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrIngestionFailed   = errors.New("document removed, ingestion failed")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrConfiguration = errors.New("API configuration error. Please contact support.")
	ErrTryAgain      = errors.New("Too many requests. Please wait a moment and try again.")
)

// IngestionError reports a failed ingestion after the partial document was
// rolled back. It matches both ErrIngestionFailed and the underlying cause.
type IngestionError struct {
	DocumentID string
	Batch      int
	Cause      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s (batch %d): %v", ErrIngestionFailed, e.Batch+1, e.Cause)
}

func (e *IngestionError) Unwrap() []error {
	return []error{ErrIngestionFailed, e.Cause}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// translateProviderError turns provider failures into the messages end users see.
// The original error is kept for logging by the caller.
func translateProviderError(err error) error {
	switch {
	case errors.Is(err, ai.ErrProviderAuth):
		return ErrConfiguration
	case errors.Is(err, ai.ErrProviderRateLimited):
		return ErrTryAgain
	case errors.Is(err, ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("failed to process message: %w", err)
	}
}
