package scte35

import "fmt"

const segmentationDescriptorTag = 0x02

// Segmentation type IDs this scheduler treats as "start a break" /
// "end a break" boundaries, per SCTE 35 table 22.
const (
	SegTypeProviderAdStart          = 0x30
	SegTypeProviderAdEnd            = 0x31
	SegTypeDistributorAdStart       = 0x32
	SegTypeDistributorAdEnd         = 0x33
	SegTypeProviderPlacementStart   = 0x34
	SegTypeProviderPlacementEnd     = 0x35
	SegTypeDistributorPlacementStart = 0x36
	SegTypeDistributorPlacementEnd   = 0x37
)

// IsBreakStart reports whether a segmentation_type_id marks the start of
// an ad break (a CUE-OUT event).
func IsBreakStart(t uint8) bool {
	switch t {
	case SegTypeProviderAdStart, SegTypeDistributorAdStart,
		SegTypeProviderPlacementStart, SegTypeDistributorPlacementStart:
		return true
	}
	return false
}

// IsBreakEnd reports whether a segmentation_type_id marks the end of an
// ad break (a CUE-IN event).
func IsBreakEnd(t uint8) bool {
	switch t {
	case SegTypeProviderAdEnd, SegTypeDistributorAdEnd,
		SegTypeProviderPlacementEnd, SegTypeDistributorPlacementEnd:
		return true
	}
	return false
}

// SegmentationDescriptor is segmentation_descriptor(), the piece that
// gives a time_signal() or splice_insert() its ad-break semantics and
// DATERANGE identity.
type SegmentationDescriptor struct {
	SegmentationEventID             uint32
	SegmentationEventCancelIndicator bool
	SegmentationDuration            uint64 // 90kHz ticks, only if present
	HasDuration                      bool
	SegmentationUPIDType            uint8
	SegmentationUPID                []byte
	SegmentationTypeID              uint8
	SegmentNum                      uint8
	SegmentsExpected                uint8
}

// parseDescriptors walks the descriptor_loop() of a splice_info_section,
// keeping only segmentation_descriptor()s (tag 0x02) since those are the
// only ones that carry OUT/IN semantics; other descriptor types
// (avail, DTMF, time, audio) are skipped over by their declared length.
func parseDescriptors(buf []byte) ([]SegmentationDescriptor, error) {
	var out []SegmentationDescriptor

	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("scte35: truncated descriptor header")
		}
		tag := buf[0]
		length := int(buf[1])
		if 2+length > len(buf) {
			return nil, fmt.Errorf("scte35: descriptor_length out of range")
		}
		body := buf[2 : 2+length]

		if tag == segmentationDescriptorTag {
			d, err := parseSegmentationDescriptor(body)
			if err != nil {
				return nil, err
			}
			out = append(out, *d)
		}

		buf = buf[2+length:]
	}

	return out, nil
}

func parseSegmentationDescriptor(body []byte) (*SegmentationDescriptor, error) {
	// identifier (32 bits, "CUEI") precedes the segmentation fields.
	r := newBitReader(body)
	r.skipBits(32)

	eventID, err := r.readBits(32)
	if err != nil {
		return nil, err
	}
	cancel, err := r.readBool()
	if err != nil {
		return nil, err
	}
	r.skipBits(7)

	d := &SegmentationDescriptor{
		SegmentationEventID:              uint32(eventID),
		SegmentationEventCancelIndicator: cancel,
	}
	if cancel {
		return d, nil
	}

	programSegmentationFlag, err := r.readBool()
	if err != nil {
		return nil, err
	}
	durationFlag, err := r.readBool()
	if err != nil {
		return nil, err
	}
	deliveryNotRestricted, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if !deliveryNotRestricted {
		r.skipBits(5)
	} else {
		r.skipBits(5)
	}

	if !programSegmentationFlag {
		count, err := r.readBits(8)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			r.skipBits(8)  // component_tag
			r.skipBits(7)  // reserved
			r.skipBits(33) // pts_offset
		}
	}

	if durationFlag {
		dur, err := r.readBits(40)
		if err != nil {
			return nil, err
		}
		d.SegmentationDuration = dur
		d.HasDuration = true
	}

	upidType, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	upidLen, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	upid, err := r.readBytes(int(upidLen))
	if err != nil {
		return nil, err
	}
	d.SegmentationUPIDType = uint8(upidType)
	d.SegmentationUPID = upid

	typeID, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	segNum, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	segExpected, err := r.readBits(8)
	if err != nil {
		return nil, err
	}
	d.SegmentationTypeID = uint8(typeID)
	d.SegmentNum = uint8(segNum)
	d.SegmentsExpected = uint8(segExpected)

	switch d.SegmentationTypeID {
	case SegTypeProviderPlacementStart, SegTypeDistributorPlacementStart,
		SegTypeProviderPlacementEnd, SegTypeDistributorPlacementEnd:
		r.skipBits(8) // sub_segment_num
		r.skipBits(8) // sub_segments_expected
	}

	return d, nil
}
