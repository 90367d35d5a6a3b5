package defective

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errTimeout = errors.New("timeout")

func TestTracker_SuspendsAtThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	tr := New(Config{Threshold: 3, Backoff: 10 * time.Second}, clk.now)

	assert.False(t, tr.RecordResult("ess0", errTimeout))
	assert.False(t, tr.RecordResult("ess0", errTimeout))
	assert.False(t, tr.IsSuspended("ess0"))

	assert.True(t, tr.RecordResult("ess0", errTimeout))
	assert.True(t, tr.IsSuspended("ess0"))
	assert.False(t, tr.IsSuspended("meter0"))

	st := tr.State("ess0")
	assert.Equal(t, 3, st.Failures)
	assert.True(t, st.Suspended)
	assert.Equal(t, time.Unix(1010, 0), st.SuspendedUntil)
	assert.Equal(t, time.Unix(1000, 0), st.FailingSince)
	assert.ErrorIs(t, st.LastErr, errTimeout)
}

func TestTracker_BackoffElapsesThenRetry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := New(Config{Threshold: 2, Backoff: 5 * time.Second}, clk.now)

	tr.RecordResult("d", errTimeout)
	tr.RecordResult("d", errTimeout)
	assert.True(t, tr.IsSuspended("d"))

	clk.advance(4 * time.Second)
	assert.True(t, tr.IsSuspended("d"))

	clk.advance(time.Second)
	assert.False(t, tr.IsSuspended("d"), "backoff elapsed, tasks are retried")

	// one more failure suspends again with a fresh backoff
	assert.True(t, tr.RecordResult("d", errTimeout))
	assert.True(t, tr.IsSuspended("d"))
	assert.Equal(t, clk.t.Add(5*time.Second), tr.State("d").SuspendedUntil)
}

func TestTracker_SuccessResetsCounter(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := New(Config{Threshold: 3, Backoff: time.Second}, clk.now)

	tr.RecordResult("d", errTimeout)
	tr.RecordResult("d", errTimeout)
	tr.RecordResult("d", nil)
	assert.Equal(t, State{}, tr.State("d"))

	tr.RecordResult("d", errTimeout)
	tr.RecordResult("d", errTimeout)
	assert.False(t, tr.IsSuspended("d"), "counter restarted from zero")
	assert.Equal(t, 2, tr.State("d").Failures)
}

func TestTracker_SuccessAfterRetryIsFullyHealthy(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := New(Config{Threshold: 1, Backoff: time.Second}, clk.now)

	tr.RecordResult("d", errTimeout)
	assert.True(t, tr.IsSuspended("d"))

	clk.advance(time.Second)
	tr.RecordResult("d", nil)
	assert.False(t, tr.IsSuspended("d"))
	assert.Empty(t, tr.Defective())
}

func TestTracker_FailuresWhileSuspendedKeepWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := New(Config{Threshold: 1, Backoff: 10 * time.Second}, clk.now)

	tr.RecordResult("d", errTimeout)
	until := tr.State("d").SuspendedUntil

	clk.advance(time.Second)
	assert.False(t, tr.RecordResult("d", errTimeout))
	assert.Equal(t, until, tr.State("d").SuspendedUntil)
}

func TestTracker_ForgetAndDefaults(t *testing.T) {
	tr := New(Config{}, nil)
	assert.Equal(t, DefaultThreshold, tr.Config().Threshold)
	assert.Equal(t, DefaultBackoff, tr.Config().Backoff)

	tr.RecordResult("d", errTimeout)
	assert.Equal(t, []string{"d"}, tr.Defective())

	tr.Forget("d")
	assert.Empty(t, tr.Defective())
	assert.False(t, tr.IsSuspended("d"))
}
