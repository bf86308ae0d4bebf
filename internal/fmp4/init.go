package fmp4

import (
	gomp4 "github.com/abema/go-mp4"
)

// Init is an fMP4 initialization segment: ftyp + moov (one trak per
// track, mvex/trex for fragmented playback).
type Init struct {
	Tracks []*Track
}

// Marshal encodes the initialization segment.
func (i *Init) Marshal() ([]byte, error) {
	w := newMP4Writer()

	_, err := w.WriteBox(&gomp4.Ftyp{
		MajorBrand:   [4]byte{'m', 'p', '4', '2'},
		MinorVersion: 1,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '2'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'h', 'l', 's', 'f'}},
		},
	})
	if err != nil {
		return nil, err
	}

	if _, err := w.writeBoxStart(&gomp4.Moov{}); err != nil {
		return nil, err
	}

	if _, err := w.WriteBox(&gomp4.Mvhd{
		Timescale:   1000,
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: 4294967295,
	}); err != nil {
		return nil, err
	}

	for _, track := range i.Tracks {
		if err := marshalTrak(w, track); err != nil {
			return nil, err
		}
	}

	if _, err := w.writeBoxStart(&gomp4.Mvex{}); err != nil {
		return nil, err
	}

	for _, track := range i.Tracks {
		if _, err := w.WriteBox(&gomp4.Trex{
			TrackID:                       uint32(track.ID),
			DefaultSampleDescriptionIndex: 1,
		}); err != nil {
			return nil, err
		}
	}

	if err := w.writeBoxEnd(); err != nil { // </mvex>
		return nil, err
	}

	if err := w.writeBoxEnd(); err != nil { // </moov>
		return nil, err
	}

	return w.bytes(), nil
}

func marshalTrak(w *mp4Writer, track *Track) error {
	if _, err := w.writeBoxStart(&gomp4.Trak{}); err != nil {
		return err
	}

	if track.IsVideo() {
		if _, err := w.WriteBox(&gomp4.Tkhd{
			FullBox: gomp4.FullBox{Flags: [3]byte{0, 0, 3}},
			TrackID: uint32(track.ID),
			Width:   uint32(track.Width * 65536),
			Height:  uint32(track.Height * 65536),
			Matrix:  [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		}); err != nil {
			return err
		}
	} else {
		if _, err := w.WriteBox(&gomp4.Tkhd{
			FullBox:        gomp4.FullBox{Flags: [3]byte{0, 0, 3}},
			TrackID:        uint32(track.ID),
			AlternateGroup: 1,
			Volume:         256,
			Matrix:         [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		}); err != nil {
			return err
		}
	}

	if _, err := w.writeBoxStart(&gomp4.Mdia{}); err != nil {
		return err
	}

	if _, err := w.WriteBox(&gomp4.Mdhd{
		Timescale: track.TimeScale,
		Language:  [3]byte{'u', 'n', 'd'},
	}); err != nil {
		return err
	}

	if track.IsVideo() {
		if _, err := w.WriteBox(&gomp4.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}); err != nil {
			return err
		}
	} else {
		if _, err := w.WriteBox(&gomp4.Hdlr{HandlerType: [4]byte{'s', 'o', 'u', 'n'}, Name: "SoundHandler"}); err != nil {
			return err
		}
	}

	if _, err := w.writeBoxStart(&gomp4.Minf{}); err != nil {
		return err
	}

	if track.IsVideo() {
		if _, err := w.WriteBox(&gomp4.Vmhd{FullBox: gomp4.FullBox{Flags: [3]byte{0, 0, 1}}}); err != nil {
			return err
		}
	} else {
		if _, err := w.WriteBox(&gomp4.Smhd{}); err != nil {
			return err
		}
	}

	if _, err := w.writeBoxStart(&gomp4.Dinf{}); err != nil {
		return err
	}
	if _, err := w.writeBoxStart(&gomp4.Dref{EntryCount: 1}); err != nil {
		return err
	}
	if _, err := w.WriteBox(&gomp4.Url{FullBox: gomp4.FullBox{Flags: [3]byte{0, 0, 1}}}); err != nil {
		return err
	}
	if err := w.writeBoxEnd(); err != nil { // </dref>
		return err
	}
	if err := w.writeBoxEnd(); err != nil { // </dinf>
		return err
	}

	if _, err := w.writeBoxStart(&gomp4.Stbl{}); err != nil {
		return err
	}
	if _, err := w.writeBoxStart(&gomp4.Stsd{EntryCount: 1}); err != nil {
		return err
	}

	if err := marshalSampleEntry(w, track); err != nil {
		return err
	}

	if err := w.writeBoxEnd(); err != nil { // </stsd>
		return err
	}

	if _, err := w.WriteBox(&gomp4.Stts{}); err != nil {
		return err
	}
	if _, err := w.WriteBox(&gomp4.Stsc{}); err != nil {
		return err
	}
	if _, err := w.WriteBox(&gomp4.Stsz{}); err != nil {
		return err
	}
	if _, err := w.WriteBox(&gomp4.Stco{}); err != nil {
		return err
	}

	if err := w.writeBoxEnd(); err != nil { // </stbl>
		return err
	}
	if err := w.writeBoxEnd(); err != nil { // </minf>
		return err
	}
	if err := w.writeBoxEnd(); err != nil { // </mdia>
		return err
	}
	if err := w.writeBoxEnd(); err != nil { // </trak>
		return err
	}

	return nil
}

func marshalSampleEntry(w *mp4Writer, track *Track) error {
	switch track.Codec {
	case CodecH264:
		if _, err := w.writeBoxStart(&gomp4.VisualSampleEntry{
			SampleEntry: gomp4.SampleEntry{
				AnyTypeBox:         gomp4.AnyTypeBox{Type: gomp4.BoxTypeAvc1()},
				DataReferenceIndex: 1,
			},
			Width: uint16(track.Width), Height: uint16(track.Height),
			Horizresolution: 4718592, Vertresolution: 4718592,
			FrameCount: 1, Depth: 24, PreDefined3: -1,
		}); err != nil {
			return err
		}

		profile, profileCompat, level := uint8(0), uint8(0), uint8(0)
		if len(track.SPS) >= 4 {
			profile, profileCompat, level = track.SPS[1], track.SPS[2], track.SPS[3]
		}

		if _, err := w.WriteBox(&gomp4.AVCDecoderConfiguration{
			AnyTypeBox:                 gomp4.AnyTypeBox{Type: gomp4.BoxTypeAvcC()},
			ConfigurationVersion:       1,
			Profile:                    profile,
			ProfileCompatibility:       profileCompat,
			Level:                      level,
			LengthSizeMinusOne:         3,
			NumOfSequenceParameterSets: 1,
			SequenceParameterSets: []gomp4.AVCParameterSet{
				{Length: uint16(len(track.SPS)), NALUnit: track.SPS},
			},
			NumOfPictureParameterSets: 1,
			PictureParameterSets: []gomp4.AVCParameterSet{
				{Length: uint16(len(track.PPS)), NALUnit: track.PPS},
			},
		}); err != nil {
			return err
		}

		if _, err := w.WriteBox(&gomp4.Btrt{MaxBitrate: 1000000, AvgBitrate: 1000000}); err != nil {
			return err
		}

		return w.writeBoxEnd() // </avc1>

	case CodecH265:
		if _, err := w.writeBoxStart(&gomp4.VisualSampleEntry{
			SampleEntry: gomp4.SampleEntry{
				AnyTypeBox:         gomp4.AnyTypeBox{Type: hvc1BoxType()},
				DataReferenceIndex: 1,
			},
			Width: uint16(track.Width), Height: uint16(track.Height),
			Horizresolution: 4718592, Vertresolution: 4718592,
			FrameCount: 1, Depth: 24, PreDefined3: -1,
		}); err != nil {
			return err
		}

		generalProfileIDC, generalLevelIDC := uint8(0), uint8(0)
		// SPS: 2-byte NAL header, 1 byte vps_id/max_sub_layers/nesting flag,
		// then profile_tier_level (profile_idc in its first byte,
		// general_level_idc 12 bytes in)
		if len(track.SPS) >= 15 {
			generalProfileIDC = track.SPS[3] & 0x1f
			generalLevelIDC = track.SPS[14]
		}

		if _, err := w.writeBoxRaw("hvcC", encodeHvcC(track.VPS, track.SPS, track.PPS, generalProfileIDC, generalLevelIDC)); err != nil {
			return err
		}

		if _, err := w.WriteBox(&gomp4.Btrt{MaxBitrate: 1000000, AvgBitrate: 1000000}); err != nil {
			return err
		}

		return w.writeBoxEnd() // </hvc1>

	default: // CodecAAC
		if _, err := w.writeBoxStart(&gomp4.AudioSampleEntry{
			SampleEntry: gomp4.SampleEntry{
				AnyTypeBox:         gomp4.AnyTypeBox{Type: gomp4.BoxTypeMp4a()},
				DataReferenceIndex: 1,
			},
			ChannelCount: uint16(track.ChannelCount),
			SampleSize:   16,
			SampleRate:   uint32(track.SampleRate * 65536),
		}); err != nil {
			return err
		}

		if _, err := w.WriteBox(&gomp4.Esds{
			FullBox: gomp4.FullBox{Version: 0, Flags: [3]byte{0, 0, 0}},
			Descriptors: []gomp4.Descriptor{
				{
					Tag:          gomp4.ESDescrTag,
					Size:         32 + uint32(len(track.AudioConfig)),
					ESDescriptor: &gomp4.ESDescriptor{ESID: uint16(track.ID)},
				},
				{
					Tag:  gomp4.DecoderConfigDescrTag,
					Size: 18 + uint32(len(track.AudioConfig)),
					DecoderConfigDescriptor: &gomp4.DecoderConfigDescriptor{
						ObjectTypeIndication: 0x40,
						StreamType:           0x05,
						Reserved:             true,
						MaxBitrate:           128825,
						AvgBitrate:           128825,
					},
				},
				{
					Tag:  gomp4.DecSpecificInfoTag,
					Size: uint32(len(track.AudioConfig)),
					Data: track.AudioConfig,
				},
				{
					Tag:  gomp4.SLConfigDescrTag,
					Size: 1,
					Data: []byte{0x02},
				},
			},
		}); err != nil {
			return err
		}

		if _, err := w.WriteBox(&gomp4.Btrt{MaxBitrate: 128825, AvgBitrate: 128825}); err != nil {
			return err
		}

		return w.writeBoxEnd() // </mp4a>
	}
}
