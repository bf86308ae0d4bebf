package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockFirstUpdateAnchorsOneSecondBeforeNow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(func() time.Time { return fixed })

	ts := c.Update(90000)
	require.Equal(t, uint64(0), ts)
	require.Equal(t, fixed.Add(-1*time.Second), c.anchor)
}

func TestClockWrapSafeDelta(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Update(PCRCycle - 90000) // one second before wraparound
	ts := c.Update(90000)      // wrapped: two seconds of PCR elapsed

	require.Equal(t, uint64(2*90000), ts)
}

func TestClockMonotonicAccumulation(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Update(0)
	ts1 := c.Update(90000)
	ts2 := c.Update(180000)

	require.Equal(t, uint64(90000), ts1)
	require.Equal(t, uint64(180000), ts2)
}

func TestTimestampForAheadOfPCR(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Update(90000) // timestamp90k == 0, lastPCR == 90000

	// a PTS 0.5s ahead of the last PCR should land 0.5s ahead on the
	// monotonic timeline, not wrap all the way around.
	require.Equal(t, uint64(45000), c.TimestampFor(135000))
}

func TestTimestampForBehindPCR(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Update(90000)

	// a PTS 0.1s behind the last PCR wraps to a small negative offset from
	// the monotonic origin, recoverable by converting back to int64.
	require.Equal(t, int64(-9000), int64(c.TimestampFor(81000)))
}

func TestTimestampForAcrossWrap(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Update(PCRCycle - 45000) // timestamp90k == 0, lastPCR == PCRCycle-45000

	// a PTS just after the wraparound point, slightly ahead of lastPCR
	require.Equal(t, uint64(90000), c.TimestampFor(45000))
}

func TestTimestampForBeforeAnyPCR(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	require.Equal(t, uint64(0), c.TimestampFor(12345))
}
