// Package scte35 parses SCTE-35 splice_info_section commands and
// descriptors, and schedules the resulting OUT/IN events against the
// wall-clock.
package scte35

import "fmt"

// Command types (splice_command_type), SCTE 35 table 4.
const (
	CommandSpliceNull           = 0x00
	CommandSpliceSchedule       = 0x04
	CommandSpliceInsert         = 0x05
	CommandTimeSignal           = 0x06
	CommandBandwidthReservation = 0x07
	CommandPrivateCommand       = 0xff
)

// SpliceInfoSection is a decoded splice_info_section, as carried in a
// PID whose PMT stream_type is 0x86.
type SpliceInfoSection struct {
	ProtocolVersion   uint8
	PTSAdjustment     uint64
	Tier              uint16
	SpliceCommandType uint8

	SpliceInsert *SpliceInsert
	TimeSignal   *TimeSignal

	Descriptors []SegmentationDescriptor

	// Raw holds the section bytes exactly as passed to
	// ParseSpliceInfoSection, needed verbatim to render a DATERANGE tag's
	// SCTE35-OUT/SCTE35-IN hex attribute.
	Raw []byte
}

// SpliceTime is splice_time(), a possibly-absent 33-bit PTS.
type SpliceTime struct {
	TimeSpecified bool
	PTSTime       uint64
}

// BreakDuration is break_duration().
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64 // 90kHz ticks
}

// SpliceInsert is the splice_insert() command, the usual vehicle for
// immediate ad-break cue-out/cue-in markers.
type SpliceInsert struct {
	SpliceEventID           uint32
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator   bool
	ProgramSpliceFlag       bool
	SpliceImmediateFlag     bool
	SpliceTime              *SpliceTime
	DurationFlag            bool
	BreakDuration           *BreakDuration
	UniqueProgramID         uint16
}

// TimeSignal is the time_signal() command: a bare splice_time(), whose
// semantics are supplied entirely by an accompanying
// segmentation_descriptor.
type TimeSignal struct {
	SpliceTime SpliceTime
}

// ParseSpliceInfoSection decodes a splice_info_section body (the bytes
// following the 3-byte table header through the end of the section,
// before the trailing CRC, matching the Section type's convention).
func ParseSpliceInfoSection(data []byte) (*SpliceInfoSection, error) {
	raw := make([]byte, len(data))
	copy(raw, data)

	r := newBitReader(data)

	pv, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	encrypted, err := r.readBool()
	if err != nil {
		return nil, err
	}
	r.skipBits(6) // encryption_algorithm
	ptsAdjustment, err := r.readBits(33)
	if err != nil {
		return nil, err
	}
	r.skipBits(8) // cw_index
	tier, err := r.readBits(12)
	if err != nil {
		return nil, err
	}
	splLen, err := r.readBits(12)
	if err != nil {
		return nil, err
	}
	_ = splLen
	cmdType, err := r.readBits(8)
	if err != nil {
		return nil, err
	}

	s := &SpliceInfoSection{
		ProtocolVersion:   uint8(pv),
		PTSAdjustment:     ptsAdjustment,
		Tier:              uint16(tier),
		SpliceCommandType: uint8(cmdType),
		Raw:               raw,
	}

	switch s.SpliceCommandType {
	case CommandSpliceNull, CommandBandwidthReservation:
		// no payload

	case CommandSpliceInsert:
		si, err := parseSpliceInsert(r)
		if err != nil {
			return nil, err
		}
		s.SpliceInsert = si

	case CommandTimeSignal:
		st, err := parseSpliceTime(r)
		if err != nil {
			return nil, err
		}
		s.TimeSignal = &TimeSignal{SpliceTime: *st}

	case CommandSpliceSchedule, CommandPrivateCommand:
		// not needed for OUT/IN scheduling; descriptor_loop still follows

	default:
		return nil, fmt.Errorf("scte35: unknown splice_command_type 0x%02x", s.SpliceCommandType)
	}

	descLoopLen, err := r.readBits(16)
	if err != nil {
		return nil, err
	}

	descBytes, err := r.readBytes(int(descLoopLen))
	if err != nil {
		return nil, err
	}

	descs, err := parseDescriptors(descBytes)
	if err != nil {
		return nil, err
	}
	s.Descriptors = descs

	_ = encrypted

	return s, nil
}

func parseSpliceTime(r *bitReader) (*SpliceTime, error) {
	specified, err := r.readBool()
	if err != nil {
		return nil, err
	}
	st := &SpliceTime{TimeSpecified: specified}
	if specified {
		r.skipBits(6)
		pts, err := r.readBits(33)
		if err != nil {
			return nil, err
		}
		st.PTSTime = pts
	} else {
		r.skipBits(7)
	}
	return st, nil
}

func parseSpliceInsert(r *bitReader) (*SpliceInsert, error) {
	eventID, err := r.readBits(32)
	if err != nil {
		return nil, err
	}
	cancel, err := r.readBool()
	if err != nil {
		return nil, err
	}
	r.skipBits(7)

	si := &SpliceInsert{
		SpliceEventID:              uint32(eventID),
		SpliceEventCancelIndicator: cancel,
	}
	if cancel {
		return si, nil
	}

	outOfNetwork, err := r.readBool()
	if err != nil {
		return nil, err
	}
	programSplice, err := r.readBool()
	if err != nil {
		return nil, err
	}
	durationFlag, err := r.readBool()
	if err != nil {
		return nil, err
	}
	immediate, err := r.readBool()
	if err != nil {
		return nil, err
	}
	r.skipBits(4)

	si.OutOfNetworkIndicator = outOfNetwork
	si.ProgramSpliceFlag = programSplice
	si.DurationFlag = durationFlag
	si.SpliceImmediateFlag = immediate

	if programSplice && !immediate {
		st, err := parseSpliceTime(r)
		if err != nil {
			return nil, err
		}
		si.SpliceTime = st
	}

	if !programSplice {
		count, err := r.readBits(8)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			r.skipBits(8) // component_tag
			if !immediate {
				if _, err := parseSpliceTime(r); err != nil {
					return nil, err
				}
			}
		}
	}

	if durationFlag {
		autoReturn, err := r.readBool()
		if err != nil {
			return nil, err
		}
		r.skipBits(6)
		dur, err := r.readBits(33)
		if err != nil {
			return nil, err
		}
		si.BreakDuration = &BreakDuration{AutoReturn: autoReturn, Duration: dur}
	}

	programID, err := r.readBits(16)
	if err != nil {
		return nil, err
	}
	si.UniqueProgramID = uint16(programID)
	r.skipBits(8) // avail_num
	r.skipBits(8) // avails_expected

	return si, nil
}
