package scte35

import "time"

// PTSToTime converts a 90kHz PTS value (already PTS_adjustment-corrected)
// into wall-clock time, implemented by the pipeline's Clock.
type PTSToTime func(pts90k uint64) time.Time

// Apply translates a decoded splice_info_section into scheduler actions:
// Schedule calls for new OUT/IN events, Cancel calls for
// cancel_indicator. now is used for splice_immediate_flag / time-unspecified
// commands, which take effect at the moment they are received.
func Apply(s *Scheduler, section *SpliceInfoSection, now time.Time, ptsToTime PTSToTime) {
	if si := section.SpliceInsert; si != nil {
		applySpliceInsert(s, si, section.PTSAdjustment, now, ptsToTime, section.Raw)
	}

	if section.TimeSignal != nil {
		at := resolveSpliceTime(section.TimeSignal.SpliceTime, section.PTSAdjustment, now, ptsToTime)
		for _, d := range section.Descriptors {
			applySegmentationDescriptor(s, d, at, section.Raw)
		}
	} else {
		for _, d := range section.Descriptors {
			applySegmentationDescriptor(s, d, now, section.Raw)
		}
	}
}

func applySpliceInsert(s *Scheduler, si *SpliceInsert, ptsAdjustment uint64, now time.Time, ptsToTime PTSToTime, raw []byte) {
	if si.SpliceEventCancelIndicator {
		s.Cancel(si.SpliceEventID)
		return
	}

	at := now
	if !si.SpliceImmediateFlag && si.SpliceTime != nil {
		at = resolveSpliceTime(*si.SpliceTime, ptsAdjustment, now, ptsToTime)
	}

	kind := EventIn
	if si.OutOfNetworkIndicator {
		kind = EventOut
	}

	ev := Event{
		ID:         si.SpliceEventID,
		Kind:       kind,
		At:         at,
		RawSection: raw,
	}
	if si.BreakDuration != nil {
		ev.Duration = time.Duration(si.BreakDuration.Duration) * time.Second / 90000
		ev.PlannedDuration = true
	}

	s.Schedule(ev)
}

func applySegmentationDescriptor(s *Scheduler, d SegmentationDescriptor, at time.Time, raw []byte) {
	if d.SegmentationEventCancelIndicator {
		s.Cancel(d.SegmentationEventID)
		return
	}

	var kind EventKind
	switch {
	case IsBreakStart(d.SegmentationTypeID):
		kind = EventOut
	case IsBreakEnd(d.SegmentationTypeID):
		kind = EventIn
	default:
		return
	}

	ev := Event{
		ID:         d.SegmentationEventID,
		Kind:       kind,
		At:         at,
		RawSection: raw,
	}
	if d.HasDuration {
		ev.Duration = time.Duration(d.SegmentationDuration) * time.Second / 90000
		ev.PlannedDuration = true
	}

	s.Schedule(ev)
}

func resolveSpliceTime(st SpliceTime, ptsAdjustment uint64, now time.Time, ptsToTime PTSToTime) time.Time {
	if !st.TimeSpecified || ptsToTime == nil {
		return now
	}
	pts := (st.PTSTime + ptsAdjustment) % (1 << 33)
	return ptsToTime(pts)
}
