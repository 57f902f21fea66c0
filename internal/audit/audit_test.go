package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/logger"
	"github.com/biogate/biogate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRing(capacity int) (*Ring, *clock.Manual) {
	clk := clock.NewManual(testStart)
	log := logger.New("error", "json")
	return NewRing(capacity, clk, log), clk
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	r, clk := newTestRing(10)
	clk.Advance(5 * time.Second)

	r.Append(model.AuditEvent{
		EventKind: model.EventRegistration,
		Severity:  model.SeverityInfo,
		Message:   "created",
	})

	events := r.Snapshot(0)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, testStart.Add(5*time.Second), events[0].Timestamp)
}

func TestAppend_NewestFirst(t *testing.T) {
	r, clk := newTestRing(10)

	for i := 0; i < 3; i++ {
		r.Append(model.AuditEvent{
			EventKind: model.EventVerifyFail,
			Severity:  model.SeverityWarning,
			Message:   fmt.Sprintf("event-%d", i),
		})
		clk.Advance(time.Second)
	}

	events := r.Snapshot(0)
	require.Len(t, events, 3)
	assert.Equal(t, "event-2", events[0].Message)
	assert.Equal(t, "event-1", events[1].Message)
	assert.Equal(t, "event-0", events[2].Message)
}

func TestAppend_EvictsOldestPastCapacity(t *testing.T) {
	r, _ := newTestRing(5)

	for i := 0; i < 8; i++ {
		r.Append(model.AuditEvent{
			EventKind: model.EventVerifyFail,
			Severity:  model.SeverityInfo,
			Message:   fmt.Sprintf("event-%d", i),
		})
	}

	require.Equal(t, 5, r.Len())
	events := r.Snapshot(0)
	assert.Equal(t, "event-7", events[0].Message)
	assert.Equal(t, "event-3", events[4].Message)
}

func TestSnapshot_Limit(t *testing.T) {
	r, _ := newTestRing(10)

	for i := 0; i < 6; i++ {
		r.Append(model.AuditEvent{
			EventKind: model.EventVerifyFail,
			Severity:  model.SeverityInfo,
			Message:   fmt.Sprintf("event-%d", i),
		})
	}

	events := r.Snapshot(2)
	require.Len(t, events, 2)
	assert.Equal(t, "event-5", events[0].Message)

	assert.Len(t, r.Snapshot(100), 6)
	assert.Len(t, r.Snapshot(0), 6)
	assert.Len(t, r.Snapshot(-1), 6)
}

func TestSnapshot_IsACopy(t *testing.T) {
	r, _ := newTestRing(10)

	r.Append(model.AuditEvent{EventKind: model.EventRegistration, Severity: model.SeverityInfo})

	events := r.Snapshot(0)
	events[0].Message = "mutated"

	assert.NotEqual(t, "mutated", r.Snapshot(0)[0].Message)
}

func TestAppend_PreservesExplicitIDAndTimestamp(t *testing.T) {
	r, _ := newTestRing(10)

	ts := testStart.Add(-time.Hour)
	r.Append(model.AuditEvent{
		ID:        "fixed-id",
		Timestamp: ts,
		EventKind: model.EventRegistration,
		Severity:  model.SeverityInfo,
	})

	events := r.Snapshot(0)
	require.Len(t, events, 1)
	assert.Equal(t, "fixed-id", events[0].ID)
	assert.Equal(t, ts, events[0].Timestamp)
}
