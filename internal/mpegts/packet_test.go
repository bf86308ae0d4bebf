package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildPacket(pid uint16, pusi bool, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = byte(pid >> 8)
	if pusi {
		buf[1] |= 0x40
	}
	buf[2] = byte(pid)
	buf[3] = 0x10 // no adaptation field, payload only, CC=0
	n := copy(buf[4:], payload)
	for i := 4 + n; i < PacketSize; i++ {
		buf[i] = 0xff
	}
	return buf
}

func TestParsePacketRejectsBadSync(t *testing.T) {
	buf := buildPacket(0x100, true, []byte{1, 2, 3})
	buf[0] = 0x00

	_, err := ParsePacket(buf)
	require.Error(t, err)
}

func TestParsePacketPID(t *testing.T) {
	buf := buildPacket(0x1234&0x1fff, true, []byte{0xaa})
	p, err := ParsePacket(buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234&0x1fff), p.PID)
	require.True(t, p.PayloadUnitStartIndicator)
	require.Equal(t, byte(0xaa), p.Payload[0])
}

func TestParsePacketWithPCR(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = 0x00
	buf[2] = 0x10
	buf[3] = 0x30 // adaptation field + payload
	buf[4] = 7    // adaptation_field_length
	buf[5] = 0x50 // random_access_indicator + PCR_flag
	// PCR base = 4, ext = 0 (33 bits base + 6 reserved + 9 ext)
	buf[6] = 0x00
	buf[7] = 0x00
	buf[8] = 0x00
	buf[9] = 0x02 // base bits 8..1: sets base bit 2
	buf[10] = 0x7e // base bit 0 clear, 6 reserved bits set, ext bit 8 clear

	p, err := ParsePacket(buf)
	require.NoError(t, err)
	require.True(t, p.RandomAccessIndicator)
	require.NotNil(t, p.PCR)
}
