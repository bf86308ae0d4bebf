package segmenter

import (
	"testing"
	"time"

	"github.com/llhls/origin/internal/fmp4"
	"github.com/stretchr/testify/require"
)

func TestWriteVideoOpensFirstSegmentOnlyOnIDR(t *testing.T) {
	s := New(9*90000, 90000/10, true, fmp4.CodecH264, false)

	var segments int
	s.OnSegmentFinalized = func(*Segment) { segments++ }

	now := time.Unix(0, 0)
	require.NoError(t, s.WriteVideo(now, &VideoSample{PTS90k: 0, DTS90k: 0, IDR: false, NALUs: [][]byte{{0}}}))
	require.Nil(t, s.current, "a leading non-IDR sample must not open a segment")

	// the segmenter holds one sample back until its successor arrives (so the
	// sample's duration is known), so the IDR opens the segment only when the
	// next sample is written.
	require.NoError(t, s.WriteVideo(now, &VideoSample{PTS90k: 90000, DTS90k: 90000, IDR: true, NALUs: [][]byte{{1}}}))
	require.Nil(t, s.current, "the IDR sample is held back until the next sample arrives")

	require.NoError(t, s.WriteVideo(now, &VideoSample{PTS90k: 93000, DTS90k: 93000, IDR: false, NALUs: [][]byte{{2}}}))
	require.NotNil(t, s.current, "an IDR sample opens the first segment")
}

func TestWriteVideoClosesSegmentOnIDRPastTargetDuration(t *testing.T) {
	s := New(2*90000, 90000/10, true, fmp4.CodecH264, false)

	var finalized []*Segment
	s.OnSegmentFinalized = func(seg *Segment) { finalized = append(finalized, seg) }

	now := time.Unix(0, 0)
	samples := []*VideoSample{
		{PTS90k: 0, DTS90k: 0, IDR: true},
		{PTS90k: 90000, DTS90k: 90000, IDR: false},
		{PTS90k: 2 * 90000, DTS90k: 2 * 90000, IDR: true}, // 2s elapsed: boundary
		{PTS90k: 3 * 90000, DTS90k: 3 * 90000, IDR: false},
	}
	for _, sample := range samples {
		sample.NALUs = [][]byte{{0xAB}}
		require.NoError(t, s.WriteVideo(now, sample))
	}

	require.Len(t, finalized, 1)
	require.Equal(t, uint64(2*90000), finalized[0].Duration90k)
}

func TestWriteAudioOpensAndClosesSegmentsWithoutVideo(t *testing.T) {
	s := New(2*90000, 90000/10, false, fmp4.Codec(0), true)

	var finalized []*Segment
	s.OnSegmentFinalized = func(seg *Segment) { finalized = append(finalized, seg) }

	now := time.Unix(0, 0)

	// audio-only streams have no IDR, so every access unit is a candidate
	// segment boundary once the accumulated duration reaches the target.
	pts := []uint64{0, 90000, 2 * 90000, 3 * 90000}
	for _, p := range pts {
		require.NoError(t, s.WriteAudio(now, &AudioSample{PTS90k: p, AU: []byte{0x01, 0x02}}))
	}

	require.Len(t, finalized, 1, "target duration reached should close exactly one segment")
	require.Equal(t, uint64(2*90000), finalized[0].Duration90k)
	require.NotNil(t, s.current, "a new segment should already be open after the boundary")
}
