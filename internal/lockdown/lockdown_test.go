package lockdown

import (
	"testing"
	"time"

	"github.com/biogate/biogate/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newController(clk clock.Clock) *Controller {
	return New(3, time.Minute, clk)
}

func TestRecordOutcome_ThresholdTriggersLock(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	out := c.RecordOutcome("mallory", false)
	assert.Equal(t, 1, out.Failures)
	assert.False(t, out.Locked)

	out = c.RecordOutcome("mallory", false)
	assert.Equal(t, 2, out.Failures)
	assert.False(t, out.Locked)

	out = c.RecordOutcome("mallory", false)
	assert.Equal(t, 3, out.Failures)
	assert.True(t, out.Triggered)
	assert.True(t, out.Locked)
	assert.Equal(t, 60, out.RemainingSeconds)

	st := c.CheckGlobalLock()
	assert.True(t, st.Locked)
	assert.Equal(t, "mallory", st.TriggeringIdentity)
}

func TestRecordOutcome_MatchResetsCounter(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	c.RecordOutcome("alice", false)
	c.RecordOutcome("alice", false)
	require.Equal(t, 2, c.Failures("alice"))

	c.RecordOutcome("alice", true)
	assert.Equal(t, 0, c.Failures("alice"))

	// Two more failures after the reset must not trip the lock.
	c.RecordOutcome("alice", false)
	out := c.RecordOutcome("alice", false)
	assert.False(t, out.Locked)
	assert.Equal(t, 2, out.Failures)
}

func TestRecordOutcome_CountersPerIdentity(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	c.RecordOutcome("alice", false)
	c.RecordOutcome("alice", false)
	c.RecordOutcome("bob", false)
	c.RecordOutcome("bob", false)

	assert.False(t, c.CheckGlobalLock().Locked)
	assert.Equal(t, 2, c.Failures("alice"))
	assert.Equal(t, 2, c.Failures("bob"))
}

func TestRecordOutcome_TriggerResetsCounter(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	for i := 0; i < 3; i++ {
		c.RecordOutcome("mallory", false)
	}
	assert.Equal(t, 0, c.Failures("mallory"))
}

func TestRecordOutcome_FirstTriggerWins(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	for i := 0; i < 3; i++ {
		c.RecordOutcome("mallory", false)
	}

	// A second identity crossing the threshold while locked sees the lock
	// but is not reported as the trigger, and the expiry is not extended.
	clk.Advance(30 * time.Second)
	var out Outcome
	for i := 0; i < 3; i++ {
		out = c.RecordOutcome("eve", false)
	}
	assert.False(t, out.Triggered)
	assert.True(t, out.Locked)
	assert.Equal(t, 30, out.RemainingSeconds)
	assert.Equal(t, "mallory", c.CheckGlobalLock().TriggeringIdentity)
}

func TestCheckGlobalLock_LazyExpiry(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	for i := 0; i < 3; i++ {
		c.RecordOutcome("mallory", false)
	}
	require.True(t, c.CheckGlobalLock().Locked)

	clk.Advance(61 * time.Second)

	st := c.CheckGlobalLock()
	assert.False(t, st.Locked)
	assert.True(t, st.Lifted)
	assert.Equal(t, "mallory", st.TriggeringIdentity)

	// The lifted transition is observed at most once.
	st = c.CheckGlobalLock()
	assert.False(t, st.Locked)
	assert.False(t, st.Lifted)
}

func TestCheckGlobalLock_RemainingSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	for i := 0; i < 3; i++ {
		c.RecordOutcome("mallory", false)
	}

	clk.Advance(59*time.Second + 500*time.Millisecond)
	st := c.CheckGlobalLock()
	assert.True(t, st.Locked)
	assert.Equal(t, 1, st.RemainingSeconds)
}

func TestTrigger_ArmsImmediately(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	out := c.Trigger("mallory")
	assert.True(t, out.Triggered)
	assert.True(t, out.Locked)
	assert.Equal(t, 60, out.RemainingSeconds)

	// Re-triggering while active is a no-op.
	clk.Advance(30 * time.Second)
	out = c.Trigger("eve")
	assert.False(t, out.Triggered)
	assert.True(t, out.Locked)
	assert.Equal(t, 30, out.RemainingSeconds)
	assert.Equal(t, "mallory", c.CheckGlobalLock().TriggeringIdentity)
}

func TestTrigger_AfterExpiryRearms(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(testStart)
	c := newController(clk)

	c.Trigger("mallory")
	clk.Advance(61 * time.Second)
	require.False(t, c.CheckGlobalLock().Locked)

	out := c.Trigger("eve")
	assert.True(t, out.Triggered)
	assert.Equal(t, "eve", c.CheckGlobalLock().TriggeringIdentity)
}
