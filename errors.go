package undercurrent

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means the user has too few journal entries for
	// insight analysis. The extraction service is never invoked.
	ErrInsufficientData = errors.New("not enough journal entries for insight analysis")

	// ErrAlreadyRanThisWeek means insights were already generated since
	// the start of the current week (Monday 00:00 in the user's zone).
	ErrAlreadyRanThisWeek = errors.New("insights already generated this week")

	// ErrRunInProgress means another insight run for the same user is
	// still executing. Runs for the same user are serialized.
	ErrRunInProgress = errors.New("insight run already in progress for this user")
)

// ExtractionError wraps a failure of the theme extraction service,
// either a transport error or a malformed response. No reconciliation
// occurs and nothing is persisted when extraction fails.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("theme extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
