package engine

import (
	"errors"
	"fmt"

	"github.com/biogate/biogate/internal/model"
)

// Outcome is the terminal state of one verification call. Every rejection is
// a typed result, never an error: errors are reserved for programmer-error
// conditions.
type Outcome string

const (
	OutcomeAccepted                   Outcome = "ACCEPTED"
	OutcomeRejected                   Outcome = "REJECTED"
	OutcomeLocked                     Outcome = "LOCKED"
	OutcomeRateLimited                Outcome = "RATE_LIMITED"
	OutcomeIdentityNotFound           Outcome = "IDENTITY_NOT_FOUND"
	OutcomeNotEnrolled                Outcome = "NOT_ENROLLED"
	OutcomeMethodMismatch             Outcome = "METHOD_MISMATCH"
	OutcomeExternalCredentialRejected Outcome = "EXTERNAL_CREDENTIAL_REJECTED"
	OutcomeLivenessFailed             Outcome = "LIVENESS_FAILED"
	OutcomeIntegrityViolation         Outcome = "INTEGRITY_VIOLATION"
	OutcomeReplayDetected             Outcome = "REPLAY_DETECTED"
	OutcomeError                      Outcome = "INTERNAL_ERROR"
)

// Result is the outcome of a verification or identification attempt.
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Score is the computed similarity, when the pipeline got that far.
	Score float64 `json:"score"`
	// RetryAfterSeconds tells the caller how long to back off for the
	// transient LOCKED and RATE_LIMITED outcomes.
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`
	// Session is set only on OutcomeAccepted.
	Session *model.Session `json:"session,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Authorized reports whether the attempt ended in an accepted match.
func (r Result) Authorized() bool {
	return r.Outcome == OutcomeAccepted
}

// Engine errors for mutating operations.
var (
	ErrThresholdTooLow = errors.New("similarity threshold below minimum")
	ErrLivenessFailed  = errors.New("sample failed liveness quality gate")
)

// LockedError rejects a mutating operation while the global lock is active.
type LockedError struct {
	RemainingSeconds int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("system is locked down, retry in %ds", e.RemainingSeconds)
}
