package mpegts

import (
	"encoding/binary"
	"fmt"
)

// PMTTableID is the table_id of a Program Map Table section.
const PMTTableID = 0x02

// Elementary stream types this server understands. Others are still
// reported (so the caller can log-and-skip) but not remuxed.
const (
	StreamTypeH264        = 0x1b
	StreamTypeH265        = 0x24
	StreamTypeADTSAAC      = 0x0f
	StreamTypeSCTE35       = 0x86
	StreamTypePrivateData  = 0x06 // carries ID3/timed metadata in PES
)

// StreamInfo describes one elementary stream advertised by a PMT.
type StreamInfo struct {
	StreamType uint8
	PID        uint16
}

// ProgramMap is a decoded PMT: the PCR PID plus one entry per elementary
// stream.
type ProgramMap struct {
	PCRPID  uint16
	Streams []StreamInfo
}

// ParsePMT decodes a PMT section body.
func ParsePMT(data []byte) (*ProgramMap, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}

	// skip program_number(2) + version/current_next(1) + section_number(1)
	// + last_section_number(1), as ParsePAT does
	pcrPID := binary.BigEndian.Uint16(data[5:7]) & 0x1fff
	programInfoLength := int(binary.BigEndian.Uint16(data[7:9]) & 0x0fff)

	off := 9 + programInfoLength
	if off > len(data) {
		return nil, fmt.Errorf("mpegts: PMT program_info_length out of range")
	}

	pm := &ProgramMap{PCRPID: pcrPID}

	for off+5 <= len(data) {
		streamType := data[off]
		pid := binary.BigEndian.Uint16(data[off+1:off+3]) & 0x1fff
		esInfoLength := int(binary.BigEndian.Uint16(data[off+3:off+5]) & 0x0fff)

		off += 5
		if off+esInfoLength > len(data) {
			return nil, fmt.Errorf("mpegts: PMT ES_info_length out of range")
		}
		off += esInfoLength

		pm.Streams = append(pm.Streams, StreamInfo{
			StreamType: streamType,
			PID:        pid,
		})
	}

	return pm, nil
}
