// Package adts scans ADTS-framed AAC access units out of a PES payload.
package adts

import "fmt"

// Frame is one decoded ADTS frame: its AAC configuration plus the raw
// (unframed) access unit payload.
type Frame struct {
	ObjectType   uint8
	SampleRate   int
	ChannelCount int
	AU           []byte
}

var sampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// Scan splits a buffer containing one or more back-to-back ADTS frames
// (as typically found in a single PES payload) into Frames.
func Scan(buf []byte) ([]Frame, error) {
	var out []Frame

	for len(buf) > 0 {
		if len(buf) < 7 {
			return out, fmt.Errorf("adts: trailing bytes too short for a header")
		}

		if buf[0] != 0xff || buf[1]&0xf0 != 0xf0 {
			return out, fmt.Errorf("adts: bad syncword")
		}

		protectionAbsent := buf[1]&0x01 != 0
		objectType := ((buf[2] >> 6) & 0x03) + 1
		samplingIndex := (buf[2] >> 2) & 0x0f
		channelConfig := ((buf[2] & 0x01) << 2) | ((buf[3] >> 6) & 0x03)
		frameLength := (int(buf[3]&0x03) << 11) | (int(buf[4]) << 3) | (int(buf[5]>>5)&0x07)

		if int(samplingIndex) >= len(sampleRates) || sampleRates[samplingIndex] == 0 {
			return out, fmt.Errorf("adts: invalid sampling_frequency_index %d", samplingIndex)
		}
		if frameLength > len(buf) {
			return out, fmt.Errorf("adts: frame_length %d exceeds buffer", frameLength)
		}

		headerLength := 7
		if !protectionAbsent {
			headerLength = 9
		}
		if frameLength < headerLength {
			return out, fmt.Errorf("adts: frame_length shorter than header")
		}

		out = append(out, Frame{
			ObjectType:   objectType,
			SampleRate:   sampleRates[samplingIndex],
			ChannelCount: int(channelConfig),
			AU:           buf[headerLength:frameLength],
		})

		buf = buf[frameLength:]
	}

	return out, nil
}

// AudioSpecificConfig builds the 2-byte MPEG-4 AudioSpecificConfig fMP4's
// esds/DecoderSpecificInfo expects: `[(profile+1)<<3 | sampleIdx>>1,
// (sampleIdx&1)<<7 | channels<<3]`.
func AudioSpecificConfig(objectType uint8, sampleRate, channelCount int) ([]byte, error) {
	samplingIndex := -1
	for i, r := range sampleRates {
		if r == sampleRate {
			samplingIndex = i
			break
		}
	}
	if samplingIndex == -1 {
		return nil, fmt.Errorf("adts: unsupported sample rate %d", sampleRate)
	}

	return []byte{
		(objectType << 3) | uint8(samplingIndex>>1),
		(uint8(samplingIndex&1) << 7) | (uint8(channelCount) << 3),
	}, nil
}

// Encode wraps one AAC access unit in a 7-byte ADTS header (no CRC),
// the inverse of Scan, used when remuxing access units back into a
// transport stream.
func Encode(objectType uint8, sampleRate, channelCount int, au []byte) ([]byte, error) {
	samplingIndex := -1
	for i, r := range sampleRates {
		if r == sampleRate {
			samplingIndex = i
			break
		}
	}
	if samplingIndex == -1 {
		return nil, fmt.Errorf("adts: unsupported sample rate %d", sampleRate)
	}
	if objectType == 0 || objectType > 4 {
		return nil, fmt.Errorf("adts: unsupported object type %d", objectType)
	}

	frameLength := 7 + len(au)
	header := make([]byte, 7)

	header[0] = 0xff
	header[1] = 0xf1 // MPEG-4, no CRC
	header[2] = ((objectType - 1) << 6) | (uint8(samplingIndex) << 2) | (uint8(channelCount) >> 2)
	header[3] = (uint8(channelCount&0x03) << 6) | byte(frameLength>>11)
	header[4] = byte(frameLength >> 3)
	header[5] = (byte(frameLength&0x07) << 5) | 0x1f
	header[6] = 0xfc

	return append(header, au...), nil
}
