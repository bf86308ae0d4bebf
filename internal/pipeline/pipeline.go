// Package pipeline wires the demuxer, clock, codec framers, SCTE-35
// scheduler, segmenter and playlist into the single stateful object that
// drives one program from raw MPEG-TS bytes to a live LL-HLS rendition,
// mirroring the single top-level loop original_source/biim/main.py runs
// per program.
package pipeline

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/llhls/origin/internal/adts"
	"github.com/llhls/origin/internal/clock"
	"github.com/llhls/origin/internal/fmp4"
	"github.com/llhls/origin/internal/h26x"
	"github.com/llhls/origin/internal/logger"
	"github.com/llhls/origin/internal/mpegts"
	"github.com/llhls/origin/internal/playlist"
	"github.com/llhls/origin/internal/scte35"
	"github.com/llhls/origin/internal/segmenter"
	"github.com/llhls/origin/internal/tsmux"
	"github.com/llhls/origin/internal/tsreader"
)

// defaultGapWindow is the EXT-X-GAP bootstrap count used for EVENT
// playlists (no -w/--window_size given), since IsEvent disables window
// eviction but the low-latency bootstrap still needs some fixed count of
// placeholder gaps while the window fills.
const defaultGapWindow = 6

// Config configures a Pipeline. Durations are already converted to 90kHz
// ticks by the caller.
type Config struct {
	SID           int
	HasSID        bool
	WindowSize    int
	HasWindowSize bool

	TargetDuration90k     uint64
	PartTargetDuration90k uint64

	// EmitTS additionally remuxes every finalized segment into MPEG-TS,
	// served from /segment?format=ts.
	EmitTS bool
}

// Pipeline demuxes one MPEG-TS program and drives a playlist.Playlist as
// segments are produced.
type Pipeline struct {
	cfg Config
	log logger.Writer

	clock *clock.Clock
	sched *scte35.Scheduler
	pacer *tsreader.Pacer

	demux *mpegts.Demuxer
	seg   *segmenter.Segmenter
	ts    *tsmux.Writer
	pl    *playlist.Playlist

	haveTracks bool
	hasVideo   bool
	hasAudio   bool
	videoPID   uint16
	audioPID   uint16
	scte35PID  uint16
	id3PID     uint16
	videoCodec fmp4.Codec

	videoParamsSet bool
	sps, pps, vps  []byte
	width, height  int

	audioConfigSet  bool
	audioObjectType uint8
	audioSampleRate int
	audioChannels   int
	audioConfig     []byte

	started    bool
	lastRawPCR uint64
	id3Counter uint32
}

// New allocates a Pipeline. log receives diagnostic output.
func New(cfg Config, log logger.Writer) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		log:   log,
		clock: clock.New(nil),
		sched: scte35.NewScheduler(),
	}
}

// Playlist returns the live playlist, or nil until enough of the stream
// (PMT, plus the first parameter-set-bearing IDR and/or first AAC frame)
// has been seen to synthesize an initialization segment.
func (p *Pipeline) Playlist() *playlist.Playlist {
	return p.pl
}

// Resolution returns the video track's pixel dimensions as "WxH", or "" if
// there is no video track. Only meaningful once Playlist returns non-nil.
func (p *Pipeline) Resolution() string {
	if !p.hasVideo {
		return ""
	}
	return strconv.Itoa(p.width) + "x" + strconv.Itoa(p.height)
}

// CodecsString returns the RFC 6381 codec string for the resolved tracks,
// comma-separated, the way the teacher's internal/hls/codecparameters.go
// builds one for its primary playlist's CODECS attribute. The H.264 entry
// is taken from the SPS; for H.265 the fixed string "hvc1.1.6.L93.B0" is
// reported and is not derived from the SPS.
func (p *Pipeline) CodecsString() string {
	var parts []string

	if p.hasVideo && len(p.sps) >= 4 {
		switch p.videoCodec {
		case fmp4.CodecH265:
			parts = append(parts, "hvc1.1.6.L93.B0")
		default:
			parts = append(parts, "avc1."+hex.EncodeToString(p.sps[1:4]))
		}
	}

	if p.hasAudio {
		parts = append(parts, "mp4a.40."+strconv.FormatUint(uint64(p.audioObjectType), 10))
	}

	out := ""
	for i, part := range parts {
		if i > 0 {
			out += ","
		}
		out += part
	}
	return out
}

// Close unblocks any readers waiting on the live playlist.
func (p *Pipeline) Close() {
	if p.pl != nil {
		p.pl.Close()
	}
}

// Run demuxes r until EOF or a read error. If paced, video access units
// are throttled to wall-clock rate, matching playback of a regular file
// rather than a live pipe.
func (p *Pipeline) Run(r io.Reader, paced bool) error {
	if paced {
		p.pacer = tsreader.NewPacer(nil, nil)
	}

	handlers := mpegts.Handlers{
		OnTracks:  p.onTracks,
		OnPES:     p.onPES,
		OnPCR:     p.onPCR,
		OnSection: p.onSection,
		OnError:   p.onError,
	}

	if p.cfg.HasSID {
		p.demux = mpegts.NewDemuxerForProgram(handlers, uint16(p.cfg.SID))
	} else {
		p.demux = mpegts.NewDemuxer(handlers)
	}

	return p.demux.Run(r)
}

func (p *Pipeline) windowSize() int {
	if p.cfg.HasWindowSize {
		return p.cfg.WindowSize
	}
	return defaultGapWindow
}

func (p *Pipeline) onTracks(_ uint16, tracks []mpegts.Track) {
	p.haveTracks = true

	for _, t := range tracks {
		switch t.StreamType {
		case mpegts.StreamTypeH264:
			p.videoPID = t.PID
			p.videoCodec = fmp4.CodecH264
			p.hasVideo = true
		case mpegts.StreamTypeH265:
			p.videoPID = t.PID
			p.videoCodec = fmp4.CodecH265
			p.hasVideo = true
		case mpegts.StreamTypeADTSAAC:
			p.audioPID = t.PID
			p.hasAudio = true
		case mpegts.StreamTypeSCTE35:
			p.scte35PID = t.PID
		case mpegts.StreamTypePrivateData:
			p.id3PID = t.PID
		}
	}
}

func (p *Pipeline) onPCR(pcr90k uint64) {
	p.lastRawPCR = pcr90k
	p.clock.Update(pcr90k)
}

func (p *Pipeline) onError(err error) {
	p.log.Log(logger.Warn, "demux: %v", err)
}

func (p *Pipeline) onPES(pid uint16, _ uint8, pes *mpegts.PES) {
	switch {
	case p.hasVideo && pid == p.videoPID:
		p.onVideoPES(pes)
	case p.hasAudio && pid == p.audioPID:
		p.onAudioPES(pes)
	case p.id3PID != 0 && pid == p.id3PID:
		p.onID3PES(pes)
	}
}

func (p *Pipeline) onVideoPES(pes *mpegts.PES) {
	if pes.PTS == nil {
		return
	}
	rawPTS := uint64(*pes.PTS) % clock.PCRCycle
	rawDTS := rawPTS
	if pes.DTS != nil {
		rawDTS = uint64(*pes.DTS) % clock.PCRCycle
	}

	nalus := h26x.SplitAnnexB(pes.Payload)
	if len(nalus) == 0 {
		return
	}

	var idr bool
	switch p.videoCodec {
	case fmp4.CodecH265:
		idr = h26x.H265IsIRAP(nalus)
		if idr && !p.videoParamsSet {
			if vps, sps, pps := h26x.H265FindParameterSets(nalus); sps != nil {
				dims, err := h26x.H265SPSDimensions(sps)
				if err != nil {
					p.log.Log(logger.Warn, "h265 sps: %v", err)
				} else {
					p.vps, p.sps, p.pps = vps, sps, pps
					p.width, p.height = dims.Width, dims.Height
					p.videoParamsSet = true
				}
			}
		}
	default:
		idr = h26x.H264IsIDR(nalus)
		if idr && !p.videoParamsSet {
			if sps, pps := h26x.H264FindParameterSets(nalus); sps != nil {
				dims, err := h26x.H264SPSDimensions(sps)
				if err != nil {
					p.log.Log(logger.Warn, "h264 sps: %v", err)
				} else {
					p.sps, p.pps = sps, pps
					p.width, p.height = dims.Width, dims.Height
					p.videoParamsSet = true
				}
			}
		}
	}

	if err := p.maybeStart(); err != nil {
		p.log.Log(logger.Error, "pipeline: %v", err)
		return
	}
	if !p.started {
		return
	}

	monoPTS := p.clock.TimestampFor(rawPTS)
	monoDTS := p.clock.TimestampFor(rawDTS)

	if p.pacer != nil {
		p.pacer.Wait(monoDTS)
	}

	wallNow := p.clock.ProgramDateTime(monoDTS)
	p.drainSCTE35(wallNow)

	if err := p.seg.WriteVideo(wallNow, &segmenter.VideoSample{
		PTS90k: monoPTS,
		DTS90k: monoDTS,
		IDR:    idr,
		NALUs:  nalus,
	}); err != nil {
		p.log.Log(logger.Error, "segmenter: %v", err)
	}

	if p.ts != nil {
		if err := p.ts.WriteVideo(p.lastRawPCR, rawDTS, rawPTS, idr, nalus); err != nil {
			p.log.Log(logger.Error, "tsmux: %v", err)
		}
	}
}

func (p *Pipeline) onAudioPES(pes *mpegts.PES) {
	if pes.PTS == nil {
		return
	}
	basePTS := uint64(*pes.PTS) % clock.PCRCycle

	frames, err := adts.Scan(pes.Payload)
	if err != nil {
		p.log.Log(logger.Warn, "adts: %v", err)
		return
	}

	for i, f := range frames {
		rawPTS := (basePTS + uint64(i)*90000*1024/uint64(f.SampleRate)) % clock.PCRCycle

		if !p.audioConfigSet {
			cfg, err := adts.AudioSpecificConfig(f.ObjectType, f.SampleRate, f.ChannelCount)
			if err != nil {
				p.log.Log(logger.Warn, "adts: %v", err)
				continue
			}
			p.audioObjectType = f.ObjectType
			p.audioSampleRate = f.SampleRate
			p.audioChannels = f.ChannelCount
			p.audioConfig = cfg
			p.audioConfigSet = true
		}

		if err := p.maybeStart(); err != nil {
			p.log.Log(logger.Error, "pipeline: %v", err)
			return
		}
		if !p.started {
			continue
		}

		monoPTS := p.clock.TimestampFor(rawPTS)
		wallNow := p.clock.ProgramDateTime(monoPTS)

		if !p.hasVideo {
			p.drainSCTE35(wallNow)
		}

		if err := p.seg.WriteAudio(wallNow, &segmenter.AudioSample{PTS90k: monoPTS, AU: f.AU}); err != nil {
			p.log.Log(logger.Error, "segmenter: %v", err)
		}

		if p.ts != nil {
			if err := p.ts.WriteAAC(p.lastRawPCR, rawPTS, f.ObjectType, f.SampleRate, f.ChannelCount, f.AU); err != nil {
				p.log.Log(logger.Error, "tsmux: %v", err)
			}
		}
	}
}

func (p *Pipeline) onID3PES(pes *mpegts.PES) {
	if !p.started {
		return
	}

	ts := p.clock.Now()
	if pes.PTS != nil {
		ts = p.clock.TimestampFor(uint64(*pes.PTS) % clock.PCRCycle)
	}

	p.id3Counter++
	p.seg.QueueEMSG("https://aomedia.org/emsg/ID3", "", ts, 0, p.id3Counter, pes.Payload)
}

func (p *Pipeline) onSection(pid uint16, section *mpegts.Section) {
	if p.scte35PID == 0 || pid != p.scte35PID {
		return
	}

	parsed, err := scte35.ParseSpliceInfoSection(section.Data)
	if err != nil {
		p.log.Log(logger.Warn, "scte35: %v", err)
		return
	}

	now := p.clock.ProgramDateTime(p.clock.Now())
	scte35.Apply(p.sched, parsed, now, p.ptsToTime)

	if p.ts != nil {
		if err := p.ts.WriteSCTE35(p.lastRawPCR, parsed.Raw); err != nil {
			p.log.Log(logger.Error, "tsmux: %v", err)
		}
	}
}

func (p *Pipeline) ptsToTime(pts90k uint64) time.Time {
	return p.clock.ProgramDateTime(p.clock.TimestampFor(pts90k))
}

// drainSCTE35 pops every scheduler event due by now and turns it into a
// playlist DATERANGE add/close. Called on every video (or, for
// audio-only programs, audio) access unit rather than strictly at
// segment boundaries: DrainDue is idempotent against wall-clock time, so
// this only ever surfaces a DATERANGE earlier than the spec's own
// per-segment-boundary cadence, never later.
func (p *Pipeline) drainSCTE35(now time.Time) {
	for _, ev := range p.sched.DrainDue(now) {
		id := strconv.FormatUint(uint64(ev.ID), 10)

		switch ev.Kind {
		case scte35.EventOut:
			dr := &playlist.DateRange{
				ID:        id,
				StartDate: ev.At,
				SCTE35Out: hex.EncodeToString(ev.RawSection),
			}
			if ev.PlannedDuration {
				dr.PlannedDuration = ev.Duration
			} else {
				dr.EndOnNext = true
			}
			p.pl.AddDateRange(dr)

		case scte35.EventIn:
			p.pl.CloseDateRange(id, hex.EncodeToString(ev.RawSection), ev.At)
		}
	}
}

// maybeStart constructs the segmenter, playlist and (if configured) the
// TS remuxer once the PMT has been seen and every advertised track has
// enough information to synthesize an initialization segment: parameter
// sets for video, AudioSpecificConfig for audio.
func (p *Pipeline) maybeStart() error {
	if p.started || !p.haveTracks {
		return nil
	}
	if !p.hasVideo && !p.hasAudio {
		return nil
	}
	if p.hasVideo && !p.videoParamsSet {
		return nil
	}
	if p.hasAudio && !p.audioConfigSet {
		return nil
	}

	initPayload, err := p.buildInit().Marshal()
	if err != nil {
		return fmt.Errorf("pipeline: marshal init segment: %w", err)
	}

	p.seg = segmenter.New(p.cfg.TargetDuration90k, p.cfg.PartTargetDuration90k, p.hasVideo, p.videoCodec, p.hasAudio)
	p.pl = playlist.New(true, p.windowSize(), initPayload)
	p.pl.IsEvent = !p.cfg.HasWindowSize

	p.seg.OnPartFinalized = p.pl.OnPartFinalized
	p.seg.OnSegmentFinalized = p.onSegmentFinalized

	if p.cfg.EmitTS {
		p.ts = tsmux.NewWriter(p.hasVideo, p.videoCodec, p.hasAudio, p.scte35PID != 0)
	}

	p.started = true
	return nil
}

func (p *Pipeline) buildInit() *fmp4.Init {
	var tracks []*fmp4.Track

	if p.hasVideo {
		t := &fmp4.Track{
			ID:        1,
			Codec:     p.videoCodec,
			TimeScale: 90000,
			Width:     p.width,
			Height:    p.height,
			SPS:       p.sps,
			PPS:       p.pps,
		}
		if p.videoCodec == fmp4.CodecH265 {
			t.VPS = p.vps
		}
		tracks = append(tracks, t)
	}

	if p.hasAudio {
		id := 2
		if !p.hasVideo {
			id = 1
		}
		tracks = append(tracks, &fmp4.Track{
			ID:           id,
			Codec:        fmp4.CodecAAC,
			TimeScale:    90000,
			ChannelCount: p.audioChannels,
			SampleRate:   p.audioSampleRate,
			AudioConfig:  p.audioConfig,
		})
	}

	return &fmp4.Init{Tracks: tracks}
}

// onSegmentFinalized registers the segment with the live playlist and, if
// a TS remux is configured, closes off the matching MPEG-TS segment and
// attaches it for /segment?format=ts. Order matters here: the TS writer
// must not see the access unit that triggered this boundary before
// GenerateSegment runs, the same one-sample lookback the fMP4 segmenter
// itself applies, so that both containers split the stream at the exact
// same access unit.
func (p *Pipeline) onSegmentFinalized(seg *segmenter.Segment) {
	p.pl.OnSegmentFinalized(seg)

	if p.ts == nil {
		return
	}

	tsPayload, err := p.ts.GenerateSegment()
	if err != nil {
		p.log.Log(logger.Error, "tsmux: generate segment: %v", err)
		return
	}
	p.pl.SetSegmentTSPayload(seg.ID, tsPayload)
}
