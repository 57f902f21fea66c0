package model

import "time"

// Severity classifies audit events
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AuditEvent is one append-only security event. The sink retains only the
// most recent N events, newest first.
type AuditEvent struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventKind    string         `json:"eventKind"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	SourceOrigin string         `json:"sourceOrigin"`
	IdentityID   string         `json:"identityId,omitempty"`
	IdentityName string         `json:"identityName,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Audit event kind constants
const (
	EventRegistration       = "REGISTRATION"
	EventEnrollTemplate     = "ENROLL_TEMPLATE"
	EventVerifySuccess      = "VERIFY_SUCCESS"
	EventVerifyFail         = "VERIFY_FAIL"
	EventLivenessFail       = "LIVENESS_FAIL"
	EventRateLimited        = "RATE_LIMITED"
	EventLockdownTriggered  = "LOCKDOWN_TRIGGERED"
	EventLockdownLifted     = "LOCKDOWN_LIFTED"
	EventIntegrityViolation = "INTEGRITY_VIOLATION"
	EventReplayAttack       = "REPLAY_ATTACK"
	EventExternalAssertion  = "EXTERNAL_ASSERTION"
	EventThresholdChange    = "THRESHOLD_CHANGE"
	EventThreatSimulation   = "THREAT_SIMULATION"
	EventIdentifySweep      = "IDENTIFY_SWEEP"
)
