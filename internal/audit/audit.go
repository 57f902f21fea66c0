package audit

import (
	"sync"

	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/logger"
	"github.com/biogate/biogate/internal/model"
	"github.com/google/uuid"
)

// Sink is the append-only event log consumed by every security component.
// Append never fails observably: audit problems must not block the
// authentication response.
type Sink interface {
	Append(ev model.AuditEvent)
}

// Ring is a bounded, newest-first event log. Concurrent appends are
// serialized under one lock so insertion order is preserved.
type Ring struct {
	mu       sync.Mutex
	capacity int
	events   []model.AuditEvent
	clk      clock.Clock
	log      *logger.Logger
}

// NewRing creates a Ring retaining the most recent capacity events.
func NewRing(capacity int, clk clock.Clock, log *logger.Logger) *Ring {
	return &Ring{
		capacity: capacity,
		clk:      clk,
		log:      log.WithComponent("audit"),
	}
}

// Append records an event, assigning ID and timestamp if unset, and mirrors
// it to the structured log at a level matching its severity.
func (r *Ring) Append(ev model.AuditEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.clk.Now()
	}

	r.mu.Lock()
	// Prepend: newest first, evict the oldest past capacity.
	r.events = append(r.events, model.AuditEvent{})
	copy(r.events[1:], r.events)
	r.events[0] = ev
	if len(r.events) > r.capacity {
		r.events = r.events[:r.capacity]
	}
	r.mu.Unlock()

	logEvent := r.log.Info()
	switch ev.Severity {
	case model.SeverityWarning:
		logEvent = r.log.Warn()
	case model.SeverityCritical:
		logEvent = r.log.Error()
	}
	logEvent.
		Str("event_kind", ev.EventKind).
		Str("severity", string(ev.Severity)).
		Str("source_origin", ev.SourceOrigin).
		Str("identity_id", ev.IdentityID).
		Msg(ev.Message)
}

// Snapshot returns up to limit events, newest first. A non-positive limit
// returns everything retained.
func (r *Ring) Snapshot(limit int) []model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.AuditEvent, n)
	copy(out, r.events[:n])
	return out
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
