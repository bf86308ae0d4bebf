package fmp4

import (
	gomp4 "github.com/abema/go-mp4"
)

const (
	trunFlagDataOffsetPresent                      = 0x01
	trunFlagSampleDurationPresent                  = 0x100
	trunFlagSampleSizePresent                      = 0x200
	trunFlagSampleFlagsPresent                     = 0x400
	trunFlagSampleCompositionTimeOffsetPresentOrV1 = 0x800

	sampleFlagIsNonSyncSample = 1 << 16
)

// PartSample is one access unit (video frame or audio frame) within a
// PartTrack.
type PartSample struct {
	Duration        uint32
	PTSOffset       int32
	IsNonSyncSample bool
	Payload         []byte
}

// PartTrack carries one track's samples within a Part.
type PartTrack struct {
	ID       int
	BaseTime uint64 // tfdt base media decode time, track timescale units
	IsVideo  bool
	Samples  []*PartSample
}

// Part is one fMP4 media segment or partial segment: a moof/mdat pair
// carrying one or more tracks' samples, adapted from the teacher's
// internal/hls/fmp4/part.go and generalized to optionally carry a
// leading EMSG box for in-band ID3 timed metadata.
type Part struct {
	SequenceNumber uint32
	Tracks         []*PartTrack

	// EMSG, if non-nil, is a complete box built by EncodeEMSG; Marshal
	// writes it as-is before moof. It carries ID3 timed metadata scoped to
	// this part.
	EMSG []byte
}

// Marshal encodes the part.
func (p *Part) Marshal() ([]byte, error) {
	/*
		emsg (optional)
		moof
		- mfhd
		- traf (one per track)
		mdat
	*/

	w := newMP4Writer()

	if p.EMSG != nil {
		if _, err := w.w.Write(p.EMSG); err != nil {
			return nil, err
		}
	}

	moofOffset, err := w.writeBoxStart(&gomp4.Moof{}) // <moof>
	if err != nil {
		return nil, err
	}

	if _, err := w.WriteBox(&gomp4.Mfhd{SequenceNumber: p.SequenceNumber}); err != nil {
		return nil, err
	}

	trunOffsets := make([]int, len(p.Tracks))
	truns := make([]*gomp4.Trun, len(p.Tracks))
	dataOffsets := make([]int, len(p.Tracks))
	dataSize := 0

	for i, track := range p.Tracks {
		trun, trunOffset, err := marshalTraf(w, track)
		if err != nil {
			return nil, err
		}

		dataOffsets[i] = dataSize
		for _, sample := range track.Samples {
			dataSize += len(sample.Payload)
		}

		truns[i] = trun
		trunOffsets[i] = trunOffset
	}

	if err := w.writeBoxEnd(); err != nil { // </moof>
		return nil, err
	}

	mdat := &gomp4.Mdat{}
	mdat.Data = make([]byte, dataSize)
	pos := 0
	for _, track := range p.Tracks {
		for _, sample := range track.Samples {
			pos += copy(mdat.Data[pos:], sample.Payload)
		}
	}

	mdatOffset, err := w.WriteBox(mdat)
	if err != nil {
		return nil, err
	}

	for i := range p.Tracks {
		truns[i].DataOffset = int32(dataOffsets[i] + mdatOffset - moofOffset + 8)
		if err := w.rewriteBox(trunOffsets[i], truns[i]); err != nil {
			return nil, err
		}
	}

	return w.bytes(), nil
}

func marshalTraf(w *mp4Writer, pt *PartTrack) (*gomp4.Trun, int, error) {
	if _, err := w.writeBoxStart(&gomp4.Traf{}); err != nil {
		return nil, 0, err
	}

	if _, err := w.WriteBox(&gomp4.Tfhd{
		FullBox: gomp4.FullBox{Flags: [3]byte{2, 0, 0}},
		TrackID: uint32(pt.ID),
	}); err != nil {
		return nil, 0, err
	}

	if _, err := w.WriteBox(&gomp4.Tfdt{
		FullBox:               gomp4.FullBox{Version: 1},
		BaseMediaDecodeTimeV1: pt.BaseTime,
	}); err != nil {
		return nil, 0, err
	}

	var flags int
	if pt.IsVideo {
		flags = trunFlagDataOffsetPresent |
			trunFlagSampleDurationPresent |
			trunFlagSampleSizePresent |
			trunFlagSampleFlagsPresent |
			trunFlagSampleCompositionTimeOffsetPresentOrV1
	} else {
		flags = trunFlagDataOffsetPresent |
			trunFlagSampleDurationPresent |
			trunFlagSampleSizePresent
	}

	trun := &gomp4.Trun{
		FullBox: gomp4.FullBox{
			Version: 1,
			Flags:   [3]byte{0, byte(flags >> 8), byte(flags)},
		},
		SampleCount: uint32(len(pt.Samples)),
	}

	for _, sample := range pt.Samples {
		if pt.IsVideo {
			var sampleFlags uint32
			if sample.IsNonSyncSample {
				sampleFlags |= sampleFlagIsNonSyncSample
			}

			trun.Entries = append(trun.Entries, gomp4.TrunEntry{
				SampleDuration:                sample.Duration,
				SampleSize:                    uint32(len(sample.Payload)),
				SampleFlags:                   sampleFlags,
				SampleCompositionTimeOffsetV1: sample.PTSOffset,
			})
		} else {
			trun.Entries = append(trun.Entries, gomp4.TrunEntry{
				SampleDuration: sample.Duration,
				SampleSize:     uint32(len(sample.Payload)),
			})
		}
	}

	trunOffset, err := w.WriteBox(trun)
	if err != nil {
		return nil, 0, err
	}

	if err := w.writeBoxEnd(); err != nil { // </traf>
		return nil, 0, err
	}

	return trun, trunOffset, nil
}
