// Package playlist maintains the live EXT-X-PART/EXT-X-PRELOAD-HINT LL-HLS
// media playlist and the segment/part byte stores behind it, adapted from
// the teacher's internal/hls/muxer_variant_fmp4_playlist.go concurrency
// shape (sync.Mutex+sync.Cond blocking reload, segment/part eviction on
// window overflow) combined with original_source/biim's hls/m3u8.py and
// hls/segment.py tag vocabulary (EXT-X-DATERANGE, delta-update skip
// boundary, estimated target duration while the window is still filling).
package playlist

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/llhls/origin/internal/segmenter"
)

// FileResponse is the result of resolving a playlist-relative request:
// the media playlist itself, an init segment, a full segment, or a part.
type FileResponse struct {
	Status int
	Header map[string]string
	Body   io.Reader
}

// segmentOrGap lets the window hold placeholder gaps while it fills up,
// matching the teacher's EXT-X-GAP bootstrapping behavior for low-latency
// playback before segmentCount real segments exist.
type segmentOrGap interface {
	renderedDuration() time.Duration
}

type gap struct{ duration time.Duration }

func (g gap) renderedDuration() time.Duration { return g.duration }

type segmentEntry struct {
	id          uint64
	startTime   time.Time
	duration90k uint64
	parts       []*partEntry
	payload     []byte
	tsPayload   []byte // MPEG-TS remux of the same segment, set separately; nil if not produced
}

func (s *segmentEntry) renderedDuration() time.Duration {
	return time.Duration(s.duration90k) * time.Second / 90000
}

type partEntry struct {
	duration90k      uint64
	independentFrame bool
	payload          []byte
}

func (p *partEntry) renderedDuration() time.Duration {
	return time.Duration(p.duration90k) * time.Second / 90000
}

// DateRange is one EXT-X-DATERANGE entry, driven by the SCTE-35 scheduler:
// an ad break or other out-of-band event anchored to wall-clock time.
type DateRange struct {
	ID              string
	StartDate       time.Time
	Duration        time.Duration
	PlannedDuration time.Duration
	SCTE35Out       string // hex-encoded splice_info_section, OUT event
	SCTE35In        string // hex-encoded splice_info_section, IN event
	EndOnNext       bool
}

// Playlist is the live media playlist for one track-set (one rendition).
type Playlist struct {
	LowLatency   bool
	SegmentCount int
	InitSegment  []byte

	// IsEvent marks an EVENT playlist (no `-w/--window_size` configured):
	// the window never evicts and the manifest carries
	// #EXT-X-PLAYLIST-TYPE:EVENT.
	IsEvent bool

	mutex  sync.Mutex
	cond   *sync.Cond
	closed bool

	segments           []segmentOrGap
	segmentDeleteCount int

	parts []*partEntry

	nextSegmentID    uint64
	nextSegmentParts []*partEntry

	dateRanges []*DateRange
}

// New allocates a Playlist.
func New(lowLatency bool, segmentCount int, initSegment []byte) *Playlist {
	p := &Playlist{
		LowLatency:   lowLatency,
		SegmentCount: segmentCount,
		InitSegment:  initSegment,
	}
	p.cond = sync.NewCond(&p.mutex)
	return p
}

// Close unblocks every waiting reader; used on pipeline shutdown.
func (p *Playlist) Close() {
	p.mutex.Lock()
	p.closed = true
	p.mutex.Unlock()
	p.cond.Broadcast()
}

// OnPartFinalized registers a freshly-muxed partial segment. Must be
// called before the part's parent segment is finalized.
func (p *Playlist) OnPartFinalized(part *segmenter.Part) {
	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		e := &partEntry{
			duration90k:      part.Duration90k,
			independentFrame: part.IndependentFrame,
			payload:          part.Payload,
		}

		p.parts = append(p.parts, e)
		p.nextSegmentParts = append(p.nextSegmentParts, e)
	}()

	p.cond.Broadcast()
}

// OnSegmentFinalized registers a completed segment, evicting the oldest
// segment (and its parts) once the window exceeds SegmentCount.
func (p *Playlist) OnSegmentFinalized(seg *segmenter.Segment) {
	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		entry := &segmentEntry{
			id:          seg.ID,
			startTime:   seg.StartTime,
			duration90k: seg.Duration90k,
		}
		entry.parts = append(entry.parts, p.nextSegmentParts...)

		// A full segment response is just its parts' fMP4 fragments
		// (moof+mdat) concatenated back to back.
		var size int
		for _, part := range entry.parts {
			size += len(part.payload)
		}
		entry.payload = make([]byte, 0, size)
		for _, part := range entry.parts {
			entry.payload = append(entry.payload, part.payload...)
		}

		if p.LowLatency && len(p.segments) == 0 {
			for i := 0; i < p.SegmentCount; i++ {
				p.segments = append(p.segments, gap{duration: entry.renderedDuration()})
			}
		}

		p.segments = append(p.segments, entry)
		p.nextSegmentID = seg.ID + 1
		p.nextSegmentParts = nil

		if !p.IsEvent && len(p.segments) > p.SegmentCount {
			evicted := p.segments[0]
			if evictedSeg, ok := evicted.(*segmentEntry); ok {
				if len(p.parts) >= len(evictedSeg.parts) {
					p.parts = p.parts[len(evictedSeg.parts):]
				}
			}
			p.segments = p.segments[1:]
			p.segmentDeleteCount++
		}

		p.pruneDateRangesLocked()
	}()

	p.cond.Broadcast()
}

// SetSegmentTSPayload attaches the MPEG-TS remux of an already-finalized
// segment, letting /segment?format=ts serve the same segment as an
// alternative container (spec.md §6: "video/mp4 or video/mp2t").
func (p *Playlist) SetSegmentTSPayload(id uint64, payload []byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, sog := range p.segments {
		if seg, ok := sog.(*segmentEntry); ok && seg.id == id {
			seg.tsPayload = payload
			return
		}
	}
}

// AddDateRange schedules an EXT-X-DATERANGE entry, called from the
// pipeline when an SCTE-35 OUT event drains (IN events go to
// CloseDateRange).
func (p *Playlist) AddDateRange(dr *DateRange) {
	p.mutex.Lock()
	p.dateRanges = append(p.dateRanges, dr)
	p.mutex.Unlock()
	p.cond.Broadcast()
}

// CloseDateRange marks a pending range as closed by an IN event, setting
// its actual duration.
func (p *Playlist) CloseDateRange(id string, scte35In string, at time.Time) {
	p.mutex.Lock()
	for _, dr := range p.dateRanges {
		if dr.ID == id {
			dr.Duration = at.Sub(dr.StartDate)
			dr.SCTE35In = scte35In
			dr.EndOnNext = false
		}
	}
	p.mutex.Unlock()
	p.cond.Broadcast()
}

// pruneDateRangesLocked drops ranges that have scrolled out of the
// playlist window (their end time precedes the oldest remaining segment).
func (p *Playlist) pruneDateRangesLocked() {
	if len(p.segments) == 0 {
		return
	}
	oldest, ok := p.segments[0].(*segmentEntry)
	if !ok {
		return
	}

	kept := p.dateRanges[:0]
	for _, dr := range p.dateRanges {
		if dr.EndOnNext || dr.StartDate.Add(dr.Duration).After(oldest.startTime) {
			kept = append(kept, dr)
		}
	}
	p.dateRanges = kept
}

func (p *Playlist) hasContent() bool {
	if p.LowLatency {
		return len(p.segments) >= 1
	}
	return len(p.segments) >= 2
}

func (p *Playlist) hasPart(segmentID uint64, partID uint32) bool {
	if !p.hasContent() {
		return false
	}

	for _, sog := range p.segments {
		seg, ok := sog.(*segmentEntry)
		if !ok {
			continue
		}
		if segmentID != seg.id {
			continue
		}

		// A request for a part index beyond the segment's last part is
		// treated as a request for part 0 of the following segment.
		if int(partID) >= len(seg.parts) {
			segmentID++
			partID = 0
			continue
		}
		return true
	}

	if segmentID != p.nextSegmentID {
		return false
	}
	return int(partID) < len(p.nextSegmentParts)
}

// ServePlaylist implements GET /playlist.m3u8, with _HLS_msn/_HLS_part/
// _HLS_skip blocking-reload semantics when LowLatency is enabled.
func (p *Playlist) ServePlaylist(msn, part, skip string) *FileResponse {
	return p.servePlaylist(msn, part, skip)
}

// ServeInit implements GET /init.
func (p *Playlist) ServeInit() *FileResponse {
	if p.InitSegment == nil {
		return &FileResponse{Status: http.StatusBadRequest}
	}
	return &FileResponse{
		Status: http.StatusOK,
		Header: map[string]string{"Content-Type": "video/mp4"},
		Body:   bytes.NewReader(p.InitSegment),
	}
}

// ServeSegment implements GET /segment?msn=&format=. format is "" or "mp4"
// for the fMP4 container (the default), or "ts" for the MPEG-TS remux
// variant; 400 if msn has fallen out of the retained window or the
// requested container was never produced for it.
func (p *Playlist) ServeSegment(msn uint64, format string) *FileResponse {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, sog := range p.segments {
		seg, ok := sog.(*segmentEntry)
		if !ok || seg.id != msn {
			continue
		}
		if format == "ts" {
			if seg.tsPayload == nil {
				return &FileResponse{Status: http.StatusBadRequest}
			}
			return &FileResponse{
				Status: http.StatusOK,
				Header: map[string]string{"Content-Type": "video/mp2t"},
				Body:   bytes.NewReader(seg.tsPayload),
			}
		}
		return &FileResponse{
			Status: http.StatusOK,
			Header: map[string]string{"Content-Type": "video/mp4"},
			Body:   bytes.NewReader(seg.payload),
		}
	}

	return &FileResponse{Status: http.StatusBadRequest}
}

// ServePart implements GET /part?msn=&part=. partIndex is relative to
// the segment identified by msn, matching the EXT-X-PART addressing
// scheme; a partIndex past the end of msn's parts rolls forward onto
// part 0 of the following segment, per the Playlist §4.8 rollover rule.
func (p *Playlist) ServePart(msn uint64, partIndex uint32) *FileResponse {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, sog := range p.segments {
		seg, ok := sog.(*segmentEntry)
		if !ok || seg.id != msn {
			continue
		}
		if int(partIndex) >= len(seg.parts) {
			msn++
			partIndex = 0
			continue
		}
		part := seg.parts[partIndex]
		return &FileResponse{
			Status: http.StatusOK,
			Header: map[string]string{"Content-Type": "video/mp4"},
			Body:   bytes.NewReader(part.payload),
		}
	}

	if msn != p.nextSegmentID {
		return &FileResponse{Status: http.StatusBadRequest}
	}

	for !p.closed && int(partIndex) >= len(p.nextSegmentParts) {
		p.cond.Wait()
	}
	if p.closed {
		return &FileResponse{Status: http.StatusInternalServerError}
	}

	part := p.nextSegmentParts[partIndex]
	return &FileResponse{
		Status: http.StatusOK,
		Header: map[string]string{"Content-Type": "video/mp4"},
		Body:   bytes.NewReader(part.payload),
	}
}

func (p *Playlist) servePlaylist(msn, part, skip string) *FileResponse {
	isDeltaUpdate := false

	if p.LowLatency {
		isDeltaUpdate = skip == "YES" || skip == "v2"

		var msnint uint64
		if msn != "" {
			v, err := strconv.ParseUint(msn, 10, 64)
			if err != nil {
				return &FileResponse{Status: http.StatusBadRequest}
			}
			msnint = v
		}

		var partint uint64
		if part != "" {
			v, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return &FileResponse{Status: http.StatusBadRequest}
			}
			partint = v
		}

		if msn != "" {
			p.mutex.Lock()
			defer p.mutex.Unlock()

			if msnint > p.nextSegmentID+1 {
				return &FileResponse{Status: http.StatusBadRequest}
			}

			for !p.closed && !p.hasPart(msnint, uint32(partint)) {
				p.cond.Wait()
			}
			if p.closed {
				return &FileResponse{Status: http.StatusInternalServerError}
			}

			return &FileResponse{
				Status: http.StatusOK,
				Header: map[string]string{"Content-Type": "application/vnd.apple.mpegurl"},
				Body:   p.render(isDeltaUpdate),
			}
		}

		if part != "" {
			return &FileResponse{Status: http.StatusBadRequest}
		}
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for !p.closed && !p.hasContent() {
		p.cond.Wait()
	}
	if p.closed {
		return &FileResponse{Status: http.StatusInternalServerError}
	}

	return &FileResponse{
		Status: http.StatusOK,
		Header: map[string]string{"Content-Type": "application/vnd.apple.mpegurl"},
		Body:   p.render(isDeltaUpdate),
	}
}

func targetDuration(segments []segmentOrGap) uint {
	var ret uint
	for _, s := range segments {
		v := uint(math.Round(s.renderedDuration().Seconds()))
		if v > ret {
			ret = v
		}
	}
	return ret
}

func partTargetDuration(segments []segmentOrGap, nextParts []*partEntry) time.Duration {
	var ret time.Duration
	for _, sog := range segments {
		seg, ok := sog.(*segmentEntry)
		if !ok {
			continue
		}
		for _, part := range seg.parts {
			if d := part.renderedDuration(); d > ret {
				ret = d
			}
		}
	}
	for _, part := range nextParts {
		if d := part.renderedDuration(); d > ret {
			ret = d
		}
	}
	return ret
}

// render must be called with p.mutex held.
func (p *Playlist) render(isDeltaUpdate bool) io.Reader {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:9\n")

	td := targetDuration(p.segments)
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", td)

	skipBoundary := float64(td * 6)

	if p.LowLatency {
		ptd := partTargetDuration(p.segments, p.nextSegmentParts)

		b.WriteString("#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES")
		fmt.Fprintf(&b, ",PART-HOLD-BACK=%s", strconv.FormatFloat(ptd.Seconds()*3.001, 'f', 5, 64))
		fmt.Fprintf(&b, ",CAN-SKIP-UNTIL=%s", strconv.FormatFloat(skipBoundary, 'f', -1, 64))
		b.WriteString("\n")

		fmt.Fprintf(&b, "#EXT-X-PART-INF:PART-TARGET=%s\n", strconv.FormatFloat(ptd.Seconds(), 'f', -1, 64))
	}

	if p.IsEvent {
		b.WriteString("#EXT-X-PLAYLIST-TYPE:EVENT\n")
	}

	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.segmentDeleteCount)

	skipped := 0

	if !isDeltaUpdate {
		b.WriteString("#EXT-X-MAP:URI=\"init\"\n")
	} else {
		var cur time.Duration
		shown := 0
		for _, seg := range p.segments {
			cur += seg.renderedDuration()
			if cur.Seconds() >= skipBoundary {
				break
			}
			shown++
		}
		skipped = len(p.segments) - shown
		fmt.Fprintf(&b, "#EXT-X-SKIP:SKIPPED-SEGMENTS=%d\n", skipped)
	}

	for _, dr := range sortedDateRanges(p.dateRanges) {
		writeDateRange(&b, dr)
	}

	b.WriteString("\n")

	for i, sog := range p.segments {
		if i < skipped {
			continue
		}

		switch seg := sog.(type) {
		case *segmentEntry:
			fmt.Fprintf(&b, "#EXT-X-PROGRAM-DATE-TIME:%s\n", seg.startTime.Format("2006-01-02T15:04:05.999Z07:00"))

			if p.LowLatency && (len(p.segments)-i) <= 4 {
				for j, part := range seg.parts {
					writePartTag(&b, seg.id, uint32(j), part)
				}
			}

			fmt.Fprintf(&b, "#EXTINF:%s,\nsegment?msn=%d\n",
				strconv.FormatFloat(seg.renderedDuration().Seconds(), 'f', 5, 64), seg.id)

		case gap:
			fmt.Fprintf(&b, "#EXT-X-GAP\n#EXTINF:%s,\ngap.mp4\n",
				strconv.FormatFloat(seg.renderedDuration().Seconds(), 'f', 5, 64))
		}
	}

	if p.LowLatency {
		for j, part := range p.nextSegmentParts {
			writePartTag(&b, p.nextSegmentID, uint32(j), part)
		}

		fmt.Fprintf(&b, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"part?msn=%d&part=%d\"\n",
			p.nextSegmentID, len(p.nextSegmentParts))
	}

	return strings.NewReader(b.String())
}

func writePartTag(b *strings.Builder, segmentID uint64, partIndex uint32, part *partEntry) {
	fmt.Fprintf(b, "#EXT-X-PART:DURATION=%s,URI=\"part?msn=%d&part=%d\"",
		strconv.FormatFloat(part.renderedDuration().Seconds(), 'f', 5, 64), segmentID, partIndex)
	if part.independentFrame {
		b.WriteString(",INDEPENDENT=YES")
	}
	b.WriteString("\n")
}

func writeDateRange(b *strings.Builder, dr *DateRange) {
	fmt.Fprintf(b, "#EXT-X-DATERANGE:ID=\"%s\",START-DATE=\"%s\"",
		dr.ID, dr.StartDate.Format("2006-01-02T15:04:05.999Z07:00"))

	if dr.Duration > 0 {
		fmt.Fprintf(b, ",DURATION=%s", strconv.FormatFloat(dr.Duration.Seconds(), 'f', 3, 64))
	} else if dr.PlannedDuration > 0 {
		fmt.Fprintf(b, ",PLANNED-DURATION=%s", strconv.FormatFloat(dr.PlannedDuration.Seconds(), 'f', 3, 64))
	}

	if dr.SCTE35Out != "" {
		fmt.Fprintf(b, ",SCTE35-OUT=0x%s", dr.SCTE35Out)
	}
	if dr.SCTE35In != "" {
		fmt.Fprintf(b, ",SCTE35-IN=0x%s", dr.SCTE35In)
	}
	if dr.EndOnNext {
		b.WriteString(",END-ON-NEXT=YES")
	}

	b.WriteString("\n")
}

func sortedDateRanges(in []*DateRange) []*DateRange {
	out := make([]*DateRange, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

