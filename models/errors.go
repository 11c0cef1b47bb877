package models

import (
	"errors"
	"fmt"
)

// Error codes used across the harvest pipeline.
const (
	// Transport-level fetch failures. Absorbed and retried by the
	// orchestrator; only exhaustion propagates.
	ErrCodeFetchTimeout    = "FETCH_TIMEOUT"
	ErrCodeFetchConnection = "FETCH_CONNECTION"
	ErrCodeFetchProtocol   = "FETCH_PROTOCOL"

	// Pipeline-level outcomes.
	ErrCodeNetworkFailure  = "NETWORK_FAILURE"
	ErrCodeBlocked         = "BLOCKED"
	ErrCodeUnsupportedPage = "UNSUPPORTED_PAGE"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
)

// HarvestError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type HarvestError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *HarvestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// NewHarvestError creates a new HarvestError.
func NewHarvestError(code, message string, err error) *HarvestError {
	return &HarvestError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the harvest error code of err, or "" when err carries
// no HarvestError in its chain.
func ErrorCode(err error) string {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// IsUnsupportedPage reports whether err marks a structural mismatch that
// requires an extractor update rather than a retry.
func IsUnsupportedPage(err error) bool {
	return ErrorCode(err) == ErrCodeUnsupportedPage
}

// IsBlocked reports whether err resulted from detected blocking after
// retry exhaustion.
func IsBlocked(err error) bool {
	return ErrorCode(err) == ErrCodeBlocked
}
