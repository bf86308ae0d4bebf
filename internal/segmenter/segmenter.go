// Package segmenter turns a stream of decoded access units into IDR-aligned
// fMP4 segments and target-duration-aligned parts, adapted from the
// teacher's internal/hls/muxer_variant_fmp4_segmenter.go one-sample-lookback
// pattern and generalized to H.265. SCTE-35 DATERANGE markers are not
// handled here; the pipeline drains them itself.
package segmenter

import (
	"time"

	"github.com/llhls/origin/internal/fmp4"
)

// VideoSample is one decoded access unit's worth of NAL units.
type VideoSample struct {
	PTS90k uint64
	DTS90k uint64
	IDR    bool
	NALUs  [][]byte

	next *VideoSample
}

func (s *VideoSample) duration() uint64 {
	if s.next == nil {
		return 0
	}
	return s.next.DTS90k - s.DTS90k
}

// AudioSample is one decoded AAC access unit.
type AudioSample struct {
	PTS90k uint64
	AU     []byte

	next *AudioSample
}

func (s *AudioSample) duration() uint64 {
	if s.next == nil {
		return 0
	}
	return s.next.PTS90k - s.PTS90k
}

// Part is a finalized partial segment.
type Part struct {
	SequenceNumber   uint32
	StartPTS90k      uint64
	Duration90k      uint64
	IndependentFrame bool
	Payload          []byte
}

// Segment is a finalized segment: an ordered sequence of Parts sharing one
// fMP4 base-decode-time origin.
type Segment struct {
	ID          uint64
	StartTime   time.Time
	StartPTS90k uint64
	Duration90k uint64
	Parts       []*Part
	SizeBytes   int
}

// Segmenter accumulates samples into parts and segments.
type Segmenter struct {
	TargetDuration90k     uint64
	PartTargetDuration90k uint64
	HasVideo              bool
	HasAudio              bool
	VideoCodec            fmp4.Codec

	OnPartFinalized    func(*Part)
	OnSegmentFinalized func(*Segment)

	nextSegmentID uint64
	nextPartID    uint32

	pendingEMSG [][]byte

	current *segmentState

	nextVideo *VideoSample
	nextAudio *AudioSample

	startPTS90k uint64
	havePTS     bool
}

type segmentState struct {
	id          uint64
	startTime   time.Time
	startPTS90k uint64

	currentVideoTrack *fmp4.PartTrack
	currentAudioTrack *fmp4.PartTrack
	partStartPTS90k   uint64
	partDuration90k   uint64
	partIndependent   bool
	parts             []*Part
	nextPartID        *uint32

	duration90k uint64
}

// New allocates a Segmenter. The wall-clock time of each segment is the
// now argument passed to WriteVideo/WriteAudio.
func New(targetDuration90k, partTargetDuration90k uint64, hasVideo bool, videoCodec fmp4.Codec, hasAudio bool) *Segmenter {
	return &Segmenter{
		TargetDuration90k:     targetDuration90k,
		PartTargetDuration90k: partTargetDuration90k,
		HasVideo:              hasVideo,
		HasAudio:              hasAudio,
		VideoCodec:            videoCodec,
	}
}

func (s *Segmenter) genSegmentID() uint64 {
	id := s.nextSegmentID
	s.nextSegmentID++
	return id
}

func (s *Segmenter) genPartID() uint32 {
	id := s.nextPartID
	s.nextPartID++
	return id
}

// QueueEMSG attaches an in-band ID3 timed-metadata event to the next part
// to be finalized (one queued event per part; additional events queued
// before the next part boundary wait for the part after that).
func (s *Segmenter) QueueEMSG(schemeIDURI, value string, presentationTime90k uint64, eventDuration90k uint32, id uint32, messageData []byte) {
	box := fmp4.EncodeEMSG(schemeIDURI, value, 90000, presentationTime90k, eventDuration90k, id, messageData)
	s.pendingEMSG = append(s.pendingEMSG, box)
}

// WriteVideo feeds one decoded video access unit.
func (s *Segmenter) WriteVideo(now time.Time, sample *VideoSample) error {
	prev := s.nextVideo
	s.nextVideo = sample
	if prev == nil {
		return nil
	}
	prev.next = sample

	if s.current == nil {
		if !prev.IDR {
			return nil
		}
		s.startCurrentSegment(now, prev.PTS90k)
	}

	if err := s.appendVideo(prev); err != nil {
		return err
	}

	if sample.IDR && (sample.DTS90k-s.current.startPTS90k) >= s.TargetDuration90k {
		if err := s.finalizeCurrentPart(true); err != nil {
			return err
		}
		s.finalizeCurrentSegment()
		s.startCurrentSegment(now, sample.PTS90k)
	}

	return nil
}

// WriteAudio feeds one decoded AAC access unit.
func (s *Segmenter) WriteAudio(now time.Time, sample *AudioSample) error {
	prev := s.nextAudio
	s.nextAudio = sample
	if prev == nil {
		return nil
	}
	prev.next = sample

	if s.current == nil {
		if s.HasVideo {
			return nil // wait for the video track to open the first segment
		}
		s.startCurrentSegment(now, prev.PTS90k)
	}

	if err := s.appendAudio(prev); err != nil {
		return err
	}

	// Audio-only streams have no IDR to align segment boundaries on, so any
	// access unit may open the next segment once the target duration has
	// accumulated.
	if !s.HasVideo && s.current.duration90k >= s.TargetDuration90k {
		if err := s.finalizeCurrentPart(true); err != nil {
			return err
		}
		s.finalizeCurrentSegment()
		s.startCurrentSegment(now, sample.PTS90k)
	}

	return nil
}

func (s *Segmenter) startCurrentSegment(now time.Time, startPTS90k uint64) {
	if !s.havePTS {
		s.startPTS90k = startPTS90k
		s.havePTS = true
	}

	s.current = &segmentState{
		id:          s.genSegmentID(),
		startTime:   now,
		startPTS90k: startPTS90k,
	}
	s.startNewPart(startPTS90k)
}

func (s *Segmenter) startNewPart(startPTS90k uint64) {
	s.current.partStartPTS90k = startPTS90k
	s.current.partDuration90k = 0
	s.current.partIndependent = false

	if s.HasVideo {
		s.current.currentVideoTrack = &fmp4.PartTrack{ID: 1, IsVideo: true, BaseTime: startPTS90k - s.current.startPTS90k}
	}
	if s.HasAudio {
		audioID := 2
		if !s.HasVideo {
			audioID = 1
		}
		s.current.currentAudioTrack = &fmp4.PartTrack{ID: audioID, IsVideo: false, BaseTime: startPTS90k - s.current.startPTS90k}
	}
}

func (s *Segmenter) appendVideo(sample *VideoSample) error {
	dur := sample.duration()

	if s.current.currentVideoTrack == nil {
		s.current.currentVideoTrack = &fmp4.PartTrack{ID: 1, IsVideo: true}
	}

	if sample.IDR {
		s.current.partIndependent = true
	}

	payload, err := encodeVideoPayload(s.VideoCodec, sample.NALUs)
	if err != nil {
		return err
	}

	s.current.currentVideoTrack.Samples = append(s.current.currentVideoTrack.Samples, &fmp4.PartSample{
		Duration:        uint32(dur),
		IsNonSyncSample: !sample.IDR,
		Payload:         payload,
	})

	s.current.partDuration90k += dur
	s.current.duration90k += dur

	if s.current.partDuration90k >= s.PartTargetDuration90k {
		return s.finalizeCurrentPart(false)
	}

	return nil
}

func (s *Segmenter) appendAudio(sample *AudioSample) error {
	dur := sample.duration()

	if s.current.currentAudioTrack == nil {
		id := 2
		if !s.HasVideo {
			id = 1
		}
		s.current.currentAudioTrack = &fmp4.PartTrack{ID: id, IsVideo: false}
	}

	s.current.currentAudioTrack.Samples = append(s.current.currentAudioTrack.Samples, &fmp4.PartSample{
		Duration: uint32(dur),
		Payload:  sample.AU,
	})

	if !s.HasVideo {
		s.current.partDuration90k += dur
		s.current.duration90k += dur

		if s.current.partDuration90k >= s.PartTargetDuration90k {
			return s.finalizeCurrentPart(false)
		}
	}

	return nil
}

func (s *Segmenter) finalizeCurrentPart(isLast bool) error {
	var tracks []*fmp4.PartTrack
	if s.current.currentVideoTrack != nil && len(s.current.currentVideoTrack.Samples) > 0 {
		tracks = append(tracks, s.current.currentVideoTrack)
	}
	if s.current.currentAudioTrack != nil && len(s.current.currentAudioTrack.Samples) > 0 {
		tracks = append(tracks, s.current.currentAudioTrack)
	}

	if len(tracks) == 0 {
		return nil
	}

	id := s.genPartID()
	part := &fmp4.Part{SequenceNumber: id, Tracks: tracks}
	if len(s.pendingEMSG) > 0 {
		part.EMSG = s.pendingEMSG[0]
		s.pendingEMSG = s.pendingEMSG[1:]
	}

	payload, err := part.Marshal()
	if err != nil {
		return err
	}

	result := &Part{
		SequenceNumber:   id,
		StartPTS90k:      s.current.partStartPTS90k,
		Duration90k:      s.current.partDuration90k,
		IndependentFrame: s.current.partIndependent,
		Payload:          payload,
	}
	s.current.parts = append(s.current.parts, result)

	if s.OnPartFinalized != nil {
		s.OnPartFinalized(result)
	}

	if !isLast {
		s.startNewPart(s.current.partStartPTS90k + s.current.partDuration90k)
	}

	return nil
}

func (s *Segmenter) finalizeCurrentSegment() {
	seg := &Segment{
		ID:          s.current.id,
		StartTime:   s.current.startTime,
		StartPTS90k: s.current.startPTS90k,
		Duration90k: s.current.duration90k,
		Parts:       s.current.parts,
	}
	for _, p := range seg.Parts {
		seg.SizeBytes += len(p.Payload)
	}

	if s.OnSegmentFinalized != nil {
		s.OnSegmentFinalized(seg)
	}

	s.current = nil
}

func encodeVideoPayload(codec fmp4.Codec, nalus [][]byte) ([]byte, error) {
	// fMP4 samples use length-prefixed NAL units (AVCC/HVCC framing),
	// not Annex-B start codes.
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}

	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, byte(len(n)>>24), byte(len(n)>>16), byte(len(n)>>8), byte(len(n)))
		out = append(out, n...)
	}

	return out, nil
}
