// Package tsmux remuxes decoded access units back into an MPEG-TS byte
// stream, adapted from the teacher's internal/hls/mpegts/writer.go and
// generalized from H.264+AAC-only to also carry H.265 video and an
// SCTE-35 passthrough PID.
package tsmux

import (
	"bytes"
	"context"

	"github.com/asticode/go-astits"

	"github.com/llhls/origin/internal/adts"
	"github.com/llhls/origin/internal/fmp4"
	"github.com/llhls/origin/internal/h26x"
)

const (
	videoPID  = 256
	audioPID  = 257
	scte35PID = 258

	videoStreamID  = 224
	audioStreamID  = 192
	scte35StreamID = 0xfc // metadata_stream stream_id

	// streamTypeSCTE35 is stream_type 0x86 (ANSI/SCTE 35), not exposed as
	// a named constant by the muxer library.
	streamTypeSCTE35 = 0x86
)

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Writer re-multiplexes access units into MPEG-TS packets.
type Writer struct {
	videoCodec fmp4.Codec
	hasVideo   bool
	hasAudio   bool
	hasSCTE35  bool

	buf        *bytes.Buffer
	inner      *astits.Muxer
	pcrCounter int
}

// NewWriter allocates a Writer. videoCodec is ignored when hasVideo is
// false.
func NewWriter(hasVideo bool, videoCodec fmp4.Codec, hasAudio bool, hasSCTE35 bool) *Writer {
	w := &Writer{
		videoCodec: videoCodec,
		hasVideo:   hasVideo,
		hasAudio:   hasAudio,
		hasSCTE35:  hasSCTE35,
		buf:        bytes.NewBuffer(nil),
	}

	w.inner = astits.NewMuxer(
		context.Background(),
		writerFunc(func(p []byte) (int, error) {
			return w.buf.Write(p)
		}))

	if hasVideo {
		streamType := astits.StreamTypeH264Video
		if videoCodec == fmp4.CodecH265 {
			streamType = astits.StreamTypeH265Video
		}
		w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: videoPID,
			StreamType:    streamType,
		})
	}

	if hasAudio {
		w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: audioPID,
			StreamType:    astits.StreamTypeAACAudio,
		})
	}

	if hasSCTE35 {
		w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: scte35PID,
			StreamType:    astits.StreamType(streamTypeSCTE35),
		})
	}

	switch {
	case hasVideo:
		w.inner.SetPCRPID(videoPID)
	case hasAudio:
		w.inner.SetPCRPID(audioPID)
	default:
		w.inner.SetPCRPID(scte35PID)
	}

	w.inner.WriteTables()

	return w
}

// GenerateSegment flushes the accumulated TS packets, resets the PCR
// cadence, and re-emits PAT/PMT so that the next segment is independently
// decodable (spec §4.6/§4.7: "PAT/PMT are re-emitted at the start of every
// new segment").
func (w *Writer) GenerateSegment() ([]byte, error) {
	w.pcrCounter = 0
	ret := w.buf.Bytes()
	w.buf = bytes.NewBuffer(nil)

	if _, err := w.inner.WriteTables(); err != nil {
		return ret, err
	}
	return ret, nil
}

// WriteVideo writes one access unit's worth of NAL units (H.264 or
// H.265, matching the codec NewWriter was configured with).
func (w *Writer) WriteVideo(pcr90k, dts90k, pts90k uint64, idrPresent bool, nalus [][]byte) error {
	var aud []byte
	if w.videoCodec == fmp4.CodecH265 {
		aud = []byte{0x46, 0x01, 0x50} // AUD NAL, H.265 nal_unit_type 35
	} else {
		aud = []byte{0x09, 0xf0} // AUD NAL, H.264 nal_unit_type 9
	}

	nalus = append([][]byte{aud}, nalus...)
	enc := h26x.JoinAnnexB(nalus)

	var af *astits.PacketAdaptationField

	if idrPresent {
		af = &astits.PacketAdaptationField{}
		af.RandomAccessIndicator = true
	}

	if w.pcrCounter == 0 {
		if af == nil {
			af = &astits.PacketAdaptationField{}
		}
		af.HasPCR = true
		af.PCR = &astits.ClockReference{Base: int64(pcr90k)}
		w.pcrCounter = 3
	}
	w.pcrCounter--

	oh := &astits.PESOptionalHeader{MarkerBits: 2}
	if dts90k == pts90k {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorOnlyPTS
		oh.PTS = &astits.ClockReference{Base: int64(pts90k)}
	} else {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
		oh.DTS = &astits.ClockReference{Base: int64(dts90k)}
		oh.PTS = &astits.ClockReference{Base: int64(pts90k)}
	}

	_, err := w.inner.WriteData(&astits.MuxerData{
		PID:             videoPID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: oh,
				StreamID:       videoStreamID,
			},
			Data: enc,
		},
	})
	return err
}

// WriteAAC writes one AAC access unit, wrapping it in an ADTS frame.
func (w *Writer) WriteAAC(pcr90k, pts90k uint64, objectType uint8, sampleRate, channelCount int, au []byte) error {
	enc, err := adts.Encode(objectType, sampleRate, channelCount, au)
	if err != nil {
		return err
	}

	af := &astits.PacketAdaptationField{RandomAccessIndicator: true}

	if !w.hasVideo {
		if w.pcrCounter == 0 {
			af.HasPCR = true
			af.PCR = &astits.ClockReference{Base: int64(pcr90k)}
			w.pcrCounter = 3
		}
		w.pcrCounter--
	}

	_, err = w.inner.WriteData(&astits.MuxerData{
		PID:             audioPID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: int64(pts90k)},
				},
				PacketLength: uint16(len(enc) + 8),
				StreamID:     audioStreamID,
			},
			Data: enc,
		},
	})
	return err
}

// WriteSCTE35 passes a splice_info_section through as a private-data PES,
// preserving in-band cue messages across the remux boundary.
func (w *Writer) WriteSCTE35(pcr90k uint64, section []byte) error {
	_, err := w.inner.WriteData(&astits.MuxerData{
		PID: scte35PID,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorNoPTSOrDTS,
				},
				StreamID: scte35StreamID,
			},
			Data: section,
		},
	})
	return err
}
