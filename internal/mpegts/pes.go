package mpegts

import "fmt"

// pesStartCode is the required prefix of every PES packet.
var pesStartCode = [3]byte{0x00, 0x00, 0x01}

// PES is a reassembled Packetized Elementary Stream packet.
type PES struct {
	StreamID uint8
	PTS      *int64 // 90kHz, 33-bit range
	DTS      *int64 // 90kHz, 33-bit range
	Payload  []byte
}

// pesAssembler reassembles PES packets that span several TS packets, one
// instance per elementary-stream PID. Unlike PSI sections, a PES payload
// only declares its own length in the packet that carries
// payload_unit_start_indicator, and may omit it ("unbounded", used for
// video); reassembly here completes a pending packet as soon as a new one
// starts (or the caller flushes at stream end).
type pesAssembler struct {
	buf     []byte
	pending bool
}

func newPESAssembler() *pesAssembler {
	return &pesAssembler{}
}

// push feeds one packet's payload into the assembler. It returns a
// completed PES packet when a previous one is finished off by the start
// of a new one.
func (a *pesAssembler) push(pusi bool, payload []byte) (*PES, error) {
	var completed *PES

	if pusi {
		if a.pending {
			pes, err := parsePES(a.buf)
			if err == nil {
				completed = pes
			}
		}
		a.buf = append([]byte(nil), payload...)
		a.pending = true
	} else {
		if !a.pending {
			return nil, nil
		}
		a.buf = append(a.buf, payload...)
	}

	return completed, nil
}

// flush returns any PES packet still buffered, e.g. at end of stream.
func (a *pesAssembler) flush() (*PES, error) {
	if !a.pending {
		return nil, nil
	}
	a.pending = false
	return parsePES(a.buf)
}

func parsePES(buf []byte) (*PES, error) {
	if len(buf) < 6 || buf[0] != pesStartCode[0] || buf[1] != pesStartCode[1] || buf[2] != pesStartCode[2] {
		return nil, fmt.Errorf("mpegts: bad PES start code")
	}

	streamID := buf[3]
	pesPacketLength := int(buf[4])<<8 | int(buf[5])

	// streamID values that have no optional header / no payload length
	// semantics (padding, program_stream_map, ...) are not elementary
	// streams this server handles.
	if streamID == 0xbc || streamID == 0xbe || streamID == 0xbf {
		return nil, fmt.Errorf("mpegts: unsupported PES stream id 0x%02x", streamID)
	}

	if len(buf) < 9 {
		return nil, fmt.Errorf("mpegts: PES header truncated")
	}

	ptsDTSFlags := (buf[7] >> 6) & 0x03
	headerDataLength := int(buf[8])

	optionalHeaderEnd := 9 + headerDataLength
	if optionalHeaderEnd > len(buf) {
		return nil, fmt.Errorf("mpegts: PES optional header truncated")
	}

	pes := &PES{StreamID: streamID}

	off := 9
	switch ptsDTSFlags {
	case 0x2: // PTS only
		if off+5 > len(buf) {
			return nil, fmt.Errorf("mpegts: PES PTS truncated")
		}
		pts := decodeTimestamp(buf[off : off+5])
		pes.PTS = &pts
		off += 5

	case 0x3: // PTS and DTS
		if off+10 > len(buf) {
			return nil, fmt.Errorf("mpegts: PES PTS/DTS truncated")
		}
		pts := decodeTimestamp(buf[off : off+5])
		dts := decodeTimestamp(buf[off+5 : off+10])
		pes.PTS = &pts
		pes.DTS = &dts
		off += 10
	}

	pes.Payload = buf[optionalHeaderEnd:]

	if pesPacketLength != 0 {
		want := 6 + pesPacketLength
		if want <= len(buf) {
			pes.Payload = buf[optionalHeaderEnd:want]
		}
	}

	return pes, nil
}

// decodeTimestamp decodes a 5-byte 33-bit PTS/DTS field per ISO/IEC
// 13818-1 2.4.3.6.
func decodeTimestamp(b []byte) int64 {
	return (int64(b[0]&0x0e) << 29) |
		(int64(b[1]) << 22) |
		(int64(b[2]&0xfe) << 14) |
		(int64(b[3]) << 7) |
		(int64(b[4]) >> 1)
}
