package scte35

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerDrainDueOrdering(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Schedule(Event{ID: 2, Kind: EventOut, At: base.Add(2 * time.Second)})
	s.Schedule(Event{ID: 1, Kind: EventOut, At: base.Add(1 * time.Second)})

	due := s.DrainDue(base.Add(3 * time.Second))
	require.Len(t, due, 2)
	require.Equal(t, uint32(1), due[0].ID)
	require.Equal(t, uint32(2), due[1].ID)

	none := s.DrainDue(base.Add(10 * time.Second))
	require.Empty(t, none)
}

func TestSchedulerCancelRemovesPendingEvent(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Schedule(Event{ID: 42, Kind: EventOut, At: base.Add(time.Minute)})
	s.Cancel(42)

	due := s.DrainDue(base.Add(time.Hour))
	require.Empty(t, due)
}

func TestApplySpliceInsertCancelIndicatorCancelsPendingEvent(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Schedule(Event{ID: 7, Kind: EventOut, At: base.Add(time.Minute)})

	section := &SpliceInfoSection{
		SpliceCommandType: CommandSpliceInsert,
		SpliceInsert: &SpliceInsert{
			SpliceEventID:              7,
			SpliceEventCancelIndicator: true,
		},
	}

	Apply(s, section, base, nil)

	due := s.DrainDue(base.Add(time.Hour))
	require.Empty(t, due)
}

func TestApplySpliceInsertImmediateSchedulesNow(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	section := &SpliceInfoSection{
		SpliceCommandType: CommandSpliceInsert,
		SpliceInsert: &SpliceInsert{
			SpliceEventID:         9,
			OutOfNetworkIndicator: true,
			SpliceImmediateFlag:   true,
		},
	}

	Apply(s, section, base, nil)

	due := s.DrainDue(base)
	require.Len(t, due, 1)
	require.Equal(t, EventOut, due[0].Kind)
}
