package mpegts

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildPATSection(programNumber, pmtPID uint16) []byte {
	// table header: table_id, section_syntax+len(2), transport_stream_id(2),
	// reserved/version/current(1), section_number(1), last_section_number(1)
	header := []byte{0x00, 0, 0, 0x00, 0x01, 0x01, 0x00, 0x00}
	prog := make([]byte, 4)
	binary.BigEndian.PutUint16(prog[0:2], programNumber)
	binary.BigEndian.PutUint16(prog[2:4], 0xe000|pmtPID)

	body := append(header[3:], prog...)
	sectionLength := len(body) + 4 // + CRC
	header[1] = byte(0xb0 | (sectionLength>>8)&0x0f)
	header[2] = byte(sectionLength)

	full := append([]byte{header[0], header[1], header[2]}, body...)
	crc := CRC32(full)
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc)

	return append(full, crcBytes...)
}

func TestSectionAssemblerSinglePacketPAT(t *testing.T) {
	full := buildPATSection(1, 0x100)

	asm := newSectionAssembler()
	payload := append([]byte{0x00}, full...) // pointer_field = 0

	sections, err := asm.push(true, payload)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, uint8(PATTableID), sections[0].TableID)

	progs, err := ParsePAT(sections[0].Data)
	require.NoError(t, err)
	require.Len(t, progs, 1)
	require.Equal(t, uint16(1), progs[0].ProgramNumber)
	require.Equal(t, uint16(0x100), progs[0].PMTPID)
}

func TestSectionAssemblerRejectsBadCRC(t *testing.T) {
	full := buildPATSection(1, 0x100)
	full[len(full)-1] ^= 0xff // corrupt CRC

	asm := newSectionAssembler()
	payload := append([]byte{0x00}, full...)

	sections, err := asm.push(true, payload)
	require.NoError(t, err)
	require.Empty(t, sections)
}
