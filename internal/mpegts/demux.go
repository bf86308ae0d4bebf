package mpegts

import (
	"bytes"
	"fmt"
	"io"
)

const patPID = 0x0000

// Track describes one elementary stream the demuxer has bound from the
// PMT, surfaced to the caller through OnTracks.
type Track struct {
	PID        uint16
	StreamType uint8
}

// Handlers are the callbacks a caller registers to receive demuxed data.
// PAT/PMT discovery happens automatically; OnTracks fires each time a PMT
// section of the followed program is parsed, repetitions included.
type Handlers struct {
	OnTracks func(pcrPID uint16, tracks []Track)
	OnPES    func(pid uint16, streamType uint8, pes *PES)
	OnPCR    func(pcr90k uint64)
	OnSection func(pid uint16, section *Section) // SCTE-35 and other raw PSI
	// OnError is invoked for any recoverable condition (bad sync, bad
	// CRC, malformed section/PES); the demuxer always continues.
	OnError func(err error)
}

// Demuxer consumes a raw MPEG-2 Transport Stream byte stream and drives
// Handlers as PAT/PMT/PES/PCR data becomes available.
type Demuxer struct {
	h      Handlers
	sid    uint16
	hasSID bool

	pmtPID      uint16
	haveProgram bool
	pcrPID      uint16
	streamTypes map[uint16]uint8 // PID -> stream_type, for bound elementary streams

	sections map[uint16]*sectionAssembler
	pes      map[uint16]*pesAssembler
}

// NewDemuxer allocates a Demuxer that follows the first non-zero
// program_number it finds in the PAT.
func NewDemuxer(h Handlers) *Demuxer {
	return &Demuxer{
		h:           h,
		streamTypes: make(map[uint16]uint8),
		sections:    make(map[uint16]*sectionAssembler),
		pes:         make(map[uint16]*pesAssembler),
	}
}

// NewDemuxerForProgram allocates a Demuxer that follows only the program
// whose program_number equals sid, matching the -s/--SID selector.
func NewDemuxerForProgram(h Handlers, sid uint16) *Demuxer {
	d := NewDemuxer(h)
	d.sid = sid
	d.hasSID = true
	return d
}

// Run reads 188-byte packets from r until EOF or a read error, dispatching
// to Handlers as it goes. It returns nil on clean EOF.
func (d *Demuxer) Run(r io.Reader) error {
	buf := make([]byte, PacketSize)

	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			d.flushPending()
			return nil
		}
		if err != nil {
			return fmt.Errorf("mpegts: read: %w", err)
		}

		if buf[0] != SyncByte {
			// resync: drop bytes up to the next sync byte and refill the packet
			if d.h.OnError != nil {
				d.h.OnError(fmt.Errorf("mpegts: bad sync byte 0x%02x, resyncing", buf[0]))
			}
			i := bytes.IndexByte(buf[1:], SyncByte)
			if i < 0 {
				continue
			}
			n := copy(buf, buf[i+1:])
			if _, err := io.ReadFull(r, buf[n:]); err != nil {
				return fmt.Errorf("mpegts: read: %w", err)
			}
		}

		if err := d.handlePacket(buf); err != nil && d.h.OnError != nil {
			d.h.OnError(err)
		}
	}
}

func (d *Demuxer) flushPending() {
	for pid, asm := range d.pes {
		pes, err := asm.flush()
		if err != nil || pes == nil {
			continue
		}
		if d.h.OnPES != nil {
			d.h.OnPES(pid, d.streamTypes[pid], pes)
		}
	}
}

func (d *Demuxer) handlePacket(buf []byte) error {
	p, err := ParsePacket(buf)
	if err != nil {
		return err
	}

	if p.PID == NullPID {
		return nil
	}

	if p.PCR != nil && p.PID == d.pcrPID && d.h.OnPCR != nil {
		d.h.OnPCR(*p.PCR)
	}

	if !p.HasPayload || p.Payload == nil {
		return nil
	}

	switch {
	case p.PID == patPID:
		return d.handleSection(p.PID, p.PayloadUnitStartIndicator, p.Payload, d.handlePAT)

	case d.haveProgram && p.PID == d.pmtPID:
		return d.handleSection(p.PID, p.PayloadUnitStartIndicator, p.Payload, d.handlePMT)

	default:
		if st, ok := d.streamTypes[p.PID]; ok {
			if st == StreamTypeSCTE35 {
				return d.handleSection(p.PID, p.PayloadUnitStartIndicator, p.Payload, func(s *Section) error {
					if d.h.OnSection != nil {
						d.h.OnSection(p.PID, s)
					}
					return nil
				})
			}
			return d.handlePESPacket(p.PID, st, p.PayloadUnitStartIndicator, p.Payload)
		}
	}

	return nil
}

func (d *Demuxer) handleSection(pid uint16, pusi bool, payload []byte, fn func(*Section) error) error {
	asm, ok := d.sections[pid]
	if !ok {
		asm = newSectionAssembler()
		d.sections[pid] = asm
	}

	sections, err := asm.push(pusi, payload)
	if err != nil {
		return err
	}

	for _, s := range sections {
		if err := fn(s); err != nil {
			return err
		}
	}

	return nil
}

func (d *Demuxer) handlePESPacket(pid uint16, streamType uint8, pusi bool, payload []byte) error {
	asm, ok := d.pes[pid]
	if !ok {
		asm = newPESAssembler()
		d.pes[pid] = asm
	}

	pes, err := asm.push(pusi, payload)
	if err != nil {
		return err
	}
	if pes != nil && d.h.OnPES != nil {
		d.h.OnPES(pid, streamType, pes)
	}

	return nil
}

func (d *Demuxer) handlePAT(s *Section) error {
	if s.TableID != PATTableID {
		return fmt.Errorf("mpegts: unexpected table_id 0x%02x on PAT PID", s.TableID)
	}

	programs, err := ParsePAT(s.Data)
	if err != nil {
		return err
	}

	for _, prog := range programs {
		if d.hasSID {
			if prog.ProgramNumber != d.sid {
				continue
			}
		} else if d.haveProgram {
			break // first non-zero program_number already bound
		}

		d.pmtPID = prog.PMTPID
		d.haveProgram = true
		return nil
	}

	return nil
}

func (d *Demuxer) handlePMT(s *Section) error {
	if s.TableID != PMTTableID {
		return fmt.Errorf("mpegts: unexpected table_id 0x%02x on PMT PID", s.TableID)
	}

	pm, err := ParsePMT(s.Data)
	if err != nil {
		return err
	}

	d.pcrPID = pm.PCRPID
	d.streamTypes = make(map[uint16]uint8, len(pm.Streams))

	tracks := make([]Track, 0, len(pm.Streams))
	for _, es := range pm.Streams {
		d.streamTypes[es.PID] = es.StreamType
		tracks = append(tracks, Track{PID: es.PID, StreamType: es.StreamType})
	}

	if d.h.OnTracks != nil {
		d.h.OnTracks(pm.PCRPID, tracks)
	}

	return nil
}
