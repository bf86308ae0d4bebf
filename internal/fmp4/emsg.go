package fmp4

import (
	"bytes"
	"encoding/binary"
)

// EncodeEMSG builds a version-1 'emsg' (DASHEventMessageBox, ISO/IEC
// 23009-1 Annex D) box carrying one ID3-in-PES timed-metadata unit as its
// message_data. It is emitted as a standalone box preceding the moof/mdat
// pair of the part that contains the corresponding access unit, the
// placement CMAF/LL-HLS players expect for in-band ID3.
//
// This has no analogue in the teacher's (video/audio only) fMP4 package;
// it is new, grounded on the same box-framing conventions the trun/tfdt
// encoders already use, following the ISO-BMFF version-1 emsg layout.
func EncodeEMSG(schemeIDURI, value string, timescale uint32, presentationTime uint64, eventDuration, id uint32, messageData []byte) []byte {
	var body bytes.Buffer

	// FullBox(version=1, flags=0)
	body.WriteByte(1)
	body.Write([]byte{0, 0, 0})

	binary.Write(&body, binary.BigEndian, timescale)
	binary.Write(&body, binary.BigEndian, presentationTime)
	binary.Write(&body, binary.BigEndian, eventDuration)
	binary.Write(&body, binary.BigEndian, id)

	body.WriteString(schemeIDURI)
	body.WriteByte(0)
	body.WriteString(value)
	body.WriteByte(0)

	body.Write(messageData)

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(8+body.Len()))
	out.WriteString("emsg")
	out.Write(body.Bytes())

	return out.Bytes()
}
