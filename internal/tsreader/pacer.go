package tsreader

import (
	"time"

	"github.com/llhls/origin/internal/clock"
)

// Pacer throttles reads from a file-backed Source so that video access
// unit timestamps advance no faster than wall-clock time, accumulating
// the scheduling error of each sleep into the next one so drift does not
// compound, mirroring the teacher's LATEST_VIDEO_SLEEP_DIFFERENCE
// correction.
type Pacer struct {
	sleepFn func(time.Duration)
	nowFn   func() time.Time

	haveLast       bool
	lastTimestamp  uint64
	lastMonotonic  time.Time
	sleepDeviation time.Duration
}

// NewPacer allocates a Pacer. sleepFn/nowFn are injected for testability;
// pass nil to use time.Sleep/time.Now.
func NewPacer(sleepFn func(time.Duration), nowFn func() time.Time) *Pacer {
	if sleepFn == nil {
		sleepFn = time.Sleep
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Pacer{sleepFn: sleepFn, nowFn: nowFn}
}

// Wait blocks until timestamp90k (a monotonic 90kHz video timestamp) is
// due to be emitted, given how much wall-clock time has actually elapsed
// since the previous call.
func (p *Pacer) Wait(timestamp90k uint64) {
	now := p.nowFn()

	if !p.haveLast {
		p.haveLast = true
		p.lastTimestamp = timestamp90k
		p.lastMonotonic = now
		return
	}

	tickDelta := (timestamp90k - p.lastTimestamp + clock.PCRCycle) % clock.PCRCycle
	timestampDiff := time.Duration(tickDelta) * time.Second / 90000
	timeDiff := now.Sub(p.lastMonotonic)

	shortfall := timestampDiff - (timeDiff + p.sleepDeviation)
	if shortfall > 0 {
		before := p.nowFn()
		p.sleepFn(shortfall)
		actual := p.nowFn().Sub(before)
		p.sleepDeviation = actual - shortfall
	} else {
		p.sleepDeviation = 0
	}

	p.lastTimestamp = timestamp90k
	p.lastMonotonic = p.nowFn()
}
