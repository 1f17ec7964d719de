package alerts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned by repositories on a unique constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")

	ErrDuplicateAlert     = errors.New("alert already exists for this market")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrForbidden          = errors.New("alert belongs to another user")
	ErrAlertNotToggleable = errors.New("expired alerts cannot be paused or resumed")
)

// CategoryUnsupportedError is returned when the market's category is blocked.
type CategoryUnsupportedError struct {
	EventTicker string
	Category    string
}

func (e *CategoryUnsupportedError) Error() string {
	return fmt.Sprintf("category %q of event %s is not supported", e.Category, e.EventTicker)
}

// AlertLimitError is returned when the user's plan allows no more alerts.
type AlertLimitError struct {
	Plan      string
	MaxAlerts int
}

func (e *AlertLimitError) Error() string {
	return fmt.Sprintf("plan %s allows at most %d alerts", e.Plan, e.MaxAlerts)
}

// UpstreamError wraps a hub failure that aborted an operation. The caller
// may retry.
type UpstreamError struct {
	Op          string
	EventTicker string
	Err         error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.EventTicker, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
