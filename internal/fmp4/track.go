package fmp4

// Codec identifies the elementary stream format a Track carries.
type Codec int

// Supported codecs.
const (
	CodecH264 Codec = iota
	CodecH265
	CodecAAC
)

// Track is one fMP4 track: video (H.264/H.265) or audio (AAC), enough
// information to synthesize both the init segment's trak and each part's
// traf.
type Track struct {
	ID        int
	Codec     Codec
	TimeScale uint32

	// video
	Width, Height int
	SPS, PPS      []byte // H.264
	VPS           []byte // H.265 only

	// audio
	ChannelCount int
	SampleRate   int
	AudioConfig  []byte // MPEG-4 audio AudioSpecificConfig, raw bytes
}

// IsVideo reports whether the track carries a video codec.
func (t *Track) IsVideo() bool {
	return t.Codec == CodecH264 || t.Codec == CodecH265
}
