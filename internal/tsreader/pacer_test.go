package tsreader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacerFirstCallDoesNotSleep(t *testing.T) {
	var slept time.Duration
	fixed := time.Unix(0, 0)
	p := NewPacer(func(d time.Duration) { slept = d }, func() time.Time { return fixed })

	p.Wait(0)
	require.Equal(t, time.Duration(0), slept)
}

func TestPacerSleepsForTheTimestampShortfall(t *testing.T) {
	var slept time.Duration
	now := time.Unix(0, 0)
	p := NewPacer(func(d time.Duration) { slept = d }, func() time.Time { return now })

	p.Wait(0)

	now = now.Add(10 * time.Millisecond) // wall clock barely advances
	p.Wait(90000)                        // one second of video elapsed

	require.InDelta(t, float64(990*time.Millisecond), float64(slept), float64(time.Millisecond))
}

func TestPacerSkipsSleepWhenWallClockIsAlreadyAhead(t *testing.T) {
	var slept time.Duration
	now := time.Unix(0, 0)
	p := NewPacer(func(d time.Duration) { slept = d }, func() time.Time { return now })

	p.Wait(0)

	now = now.Add(2 * time.Second) // wall clock already ran ahead of the stream
	p.Wait(90000)

	require.Equal(t, time.Duration(0), slept)
}
