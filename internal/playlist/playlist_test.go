package playlist

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/llhls/origin/internal/segmenter"
	"github.com/stretchr/testify/require"
)

func TestServeSegmentConcatenatesPartPayloads(t *testing.T) {
	p := New(true, 6, []byte("init"))

	p.OnPartFinalized(&segmenter.Part{SequenceNumber: 0, Duration90k: 9000, IndependentFrame: true, Payload: []byte("part-a-")})
	p.OnPartFinalized(&segmenter.Part{SequenceNumber: 1, Duration90k: 9000, Payload: []byte("part-b")})

	p.OnSegmentFinalized(&segmenter.Segment{ID: 0, StartTime: time.Unix(0, 0), Duration90k: 18000})

	res := p.ServeSegment(0, "")
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "video/mp4", res.Header["Content-Type"])

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "part-a-part-b", string(body))
}

func TestServeSegmentUnknownMSN(t *testing.T) {
	p := New(true, 6, []byte("init"))

	p.OnPartFinalized(&segmenter.Part{SequenceNumber: 0, Duration90k: 9000, Payload: []byte("part-a")})
	p.OnSegmentFinalized(&segmenter.Segment{ID: 0, StartTime: time.Unix(0, 0), Duration90k: 9000})

	res := p.ServeSegment(99, "")
	require.Equal(t, http.StatusBadRequest, res.Status)
}

func TestServeSegmentTSFormatWithoutRemuxIsBadRequest(t *testing.T) {
	p := New(true, 6, []byte("init"))

	p.OnPartFinalized(&segmenter.Part{SequenceNumber: 0, Duration90k: 9000, Payload: []byte("part-a")})
	p.OnSegmentFinalized(&segmenter.Segment{ID: 0, StartTime: time.Unix(0, 0), Duration90k: 9000})

	res := p.ServeSegment(0, "ts")
	require.Equal(t, http.StatusBadRequest, res.Status)
}

func TestSetSegmentTSPayloadServesViaFormatTS(t *testing.T) {
	p := New(true, 6, []byte("init"))

	p.OnPartFinalized(&segmenter.Part{SequenceNumber: 0, Duration90k: 9000, Payload: []byte("part-a")})
	p.OnSegmentFinalized(&segmenter.Segment{ID: 0, StartTime: time.Unix(0, 0), Duration90k: 9000})
	p.SetSegmentTSPayload(0, []byte("ts-bytes"))

	res := p.ServeSegment(0, "ts")
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "video/mp2t", res.Header["Content-Type"])

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "ts-bytes", string(body))
}
