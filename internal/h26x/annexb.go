// Package h26x splits Annex-B byte streams into NAL units and removes
// emulation prevention bytes, for both H.264 and H.265 elementary
// streams carried in PES payloads.
package h26x

// SplitAnnexB splits an Annex-B byte stream (the PES payload for H.264 or
// H.265 video) into its constituent NAL units, start codes removed.
// Ported from the start-code-scanning algorithm used by the original
// reference's H.264/H.265 PES-to-NAL splitters.
func SplitAnnexB(buf []byte) [][]byte {
	starts := findStartCodes(buf)
	if len(starts) == 0 {
		return nil
	}

	nalus := make([][]byte, 0, len(starts))
	for i, s := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1].pos
		}
		nalu := buf[s.pos+s.len : end]
		// trim trailing zero bytes that belong to the next start code's
		// leading zeros rather than to this NAL unit.
		for len(nalu) > 0 && nalu[len(nalu)-1] == 0x00 {
			nalu = nalu[:len(nalu)-1]
		}
		if len(nalu) > 0 {
			nalus = append(nalus, nalu)
		}
	}

	return nalus
}

type startCode struct {
	pos int
	len int
}

func findStartCodes(buf []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0x00 && buf[i+1] == 0x00 {
			if buf[i+2] == 0x01 {
				out = append(out, startCode{pos: i, len: 3})
				i += 2
			} else if i+3 < len(buf) && buf[i+2] == 0x00 && buf[i+3] == 0x01 {
				out = append(out, startCode{pos: i, len: 4})
				i += 3
			}
		}
	}
	return out
}

// JoinAnnexB re-serializes NAL units as an Annex-B byte stream using
// 4-byte start codes, the format astits/mpegts muxing expects on output.
func JoinAnnexB(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}

	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

// RemoveEmulationPrevention converts an EBSP (encapsulated byte sequence
// payload, as found inside a NAL unit) to RBSP by removing emulation
// prevention bytes (0x03 following 0x00 0x00, per Annex B).
func RemoveEmulationPrevention(ebsp []byte) []byte {
	out := make([]byte, 0, len(ebsp))
	zeroCount := 0

	for _, b := range ebsp {
		if zeroCount >= 2 && b == 0x03 {
			zeroCount = 0
			continue
		}
		if b == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
		out = append(out, b)
	}

	return out
}
