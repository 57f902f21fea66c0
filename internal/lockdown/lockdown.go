package lockdown

import (
	"math"
	"sync"
	"time"

	"github.com/biogate/biogate/internal/clock"
)

// Controller tracks the process-wide lockdown state machine: a single global
// lock plus per-identity consecutive-failure counters. Crossing the failure
// threshold for any one identity freezes the whole system for the configured
// duration. Expiry is discovered lazily on access; there is no background
// timer.
type Controller struct {
	mu        sync.Mutex
	clk       clock.Clock
	threshold int
	duration  time.Duration

	active     bool
	expiresAt  time.Time
	triggering string

	failures map[string]*failureRecord
}

type failureRecord struct {
	consecutive int
	lastUpdated time.Time
}

// Status is the result of a global lock check.
type Status struct {
	Locked bool
	// RemainingSeconds is ceil(time left) while locked, zero otherwise.
	RemainingSeconds int
	// TriggeringIdentity is the identity whose failures armed the lock.
	TriggeringIdentity string
	// Lifted is true when this check observed the expiry and cleared the
	// lock. At most one caller per activation sees it.
	Lifted bool
}

// Outcome is the result of recording a verification outcome.
type Outcome struct {
	// Failures is the consecutive-failure count after this record.
	Failures int
	// Triggered is true when this record armed the global lock.
	// First trigger wins: a concurrent over-threshold failure for the same
	// identity sees Locked but not Triggered.
	Triggered bool
	// Locked reports whether the global lock is active after this record.
	Locked bool
	// RemainingSeconds is the lock time left when Locked.
	RemainingSeconds int
}

// New creates a Controller that locks the system after threshold consecutive
// failed matches for a single identity, for the given duration.
func New(threshold int, duration time.Duration, clk clock.Clock) *Controller {
	return &Controller{
		clk:       clk,
		threshold: threshold,
		duration:  duration,
		failures:  make(map[string]*failureRecord),
	}
}

// CheckGlobalLock reports the global lock state, lazily clearing it once the
// expiry has passed. While locked, callers must reject all mutating
// operations before doing any work.
func (c *Controller) CheckGlobalLock() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked()
}

func (c *Controller) checkLocked() Status {
	if !c.active {
		return Status{}
	}

	now := c.clk.Now()
	if now.After(c.expiresAt) {
		triggering := c.triggering
		c.active = false
		c.triggering = ""
		return Status{Lifted: true, TriggeringIdentity: triggering}
	}

	return Status{
		Locked:             true,
		RemainingSeconds:   remainingSeconds(c.expiresAt, now),
		TriggeringIdentity: c.triggering,
	}
}

// peekLocked reports the lock state without clearing an expired lock, so the
// "lifted" transition stays reserved for CheckGlobalLock.
func (c *Controller) peekLocked() Status {
	if !c.active {
		return Status{}
	}
	now := c.clk.Now()
	if now.After(c.expiresAt) {
		return Status{}
	}
	return Status{
		Locked:             true,
		RemainingSeconds:   remainingSeconds(c.expiresAt, now),
		TriggeringIdentity: c.triggering,
	}
}

// RecordOutcome updates the consecutive-failure counter for an identity.
// A match clears the record entirely; a failed match increments it and arms
// the global lock when the threshold is reached. Lock activation is
// idempotent: an already-active lock is not re-armed or extended.
func (c *Controller) RecordOutcome(identityKey string, matched bool) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()

	if matched {
		delete(c.failures, identityKey)
		st := c.peekLocked()
		return Outcome{Locked: st.Locked, RemainingSeconds: st.RemainingSeconds}
	}

	rec := c.failures[identityKey]
	if rec == nil {
		rec = &failureRecord{}
		c.failures[identityKey] = rec
	}
	rec.consecutive++
	rec.lastUpdated = now

	out := Outcome{Failures: rec.consecutive}
	if rec.consecutive >= c.threshold {
		// Counter resets on trigger so a lifted lock starts from zero.
		delete(c.failures, identityKey)
		if !c.active {
			c.active = true
			c.expiresAt = now.Add(c.duration)
			c.triggering = identityKey
			out.Triggered = true
		}
	}

	st := c.peekLocked()
	out.Locked = st.Locked
	out.RemainingSeconds = st.RemainingSeconds
	return out
}

// Trigger arms the global lock directly, attributed to identityKey. Used when
// an attack signature warrants an immediate freeze rather than counter
// escalation. First trigger wins.
func (c *Controller) Trigger(identityKey string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Outcome{}
	if !c.active {
		c.active = true
		c.expiresAt = c.clk.Now().Add(c.duration)
		c.triggering = identityKey
		out.Triggered = true
	}

	st := c.peekLocked()
	out.Locked = st.Locked
	out.RemainingSeconds = st.RemainingSeconds
	return out
}

// Failures returns the current consecutive-failure count for an identity.
func (c *Controller) Failures(identityKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.failures[identityKey]; rec != nil {
		return rec.consecutive
	}
	return 0
}

func remainingSeconds(expiresAt, now time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Seconds()))
}
