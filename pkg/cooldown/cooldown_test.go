package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewTracker(WithClock(clock.now)), clock
}

func TestCheckWindow(t *testing.T) {
	tr, clock := newTestTracker()

	assert.True(t, tr.Check("ping", "u1", 3*time.Second).Allowed)

	clock.advance(time.Second)
	res := tr.Check("ping", "u1", 3*time.Second)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2*time.Second, res.RetryAfter)

	clock.advance(2 * time.Second)
	assert.True(t, tr.Check("ping", "u1", 3*time.Second).Allowed, "window elapsed exactly")

	clock.advance(time.Second)
	res = tr.Check("ping", "u1", 3*time.Second)
	assert.False(t, res.Allowed, "allowed check must reset the window")
	assert.Equal(t, 2*time.Second, res.RetryAfter)
}

func TestCheckIsPerUserAndCommand(t *testing.T) {
	tr, _ := newTestTracker()

	assert.True(t, tr.Check("ping", "u1", time.Minute).Allowed)
	assert.True(t, tr.Check("ping", "u2", time.Minute).Allowed)
	assert.True(t, tr.Check("help", "u1", time.Minute).Allowed)
	assert.False(t, tr.Check("ping", "u1", time.Minute).Allowed)
}

func TestZeroDurationNeverRecords(t *testing.T) {
	tr, _ := newTestTracker()

	assert.True(t, tr.Check("ping", "u1", 0).Allowed)
	assert.True(t, tr.Check("ping", "u1", 0).Allowed)
	assert.Equal(t, 0, tr.Len())
}

func TestSweepAndReset(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Check("a", "u1", time.Second)
	tr.Check("b", "u1", 10*time.Second)
	clock.advance(2 * time.Second)

	assert.Equal(t, 1, tr.Sweep())
	assert.Equal(t, 1, tr.Len())

	tr.Reset("b", "u1")
	assert.True(t, tr.Check("b", "u1", 10*time.Second).Allowed)
}
