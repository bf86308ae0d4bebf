package fmp4

import (
	"bytes"
	"encoding/binary"
)

// encodeHvcC builds an HEVCDecoderConfigurationRecord (ISO/IEC 14496-15
// §8.3.3.1), written by hand rather than through go-mp4's struct-tag
// marshaler since go-mp4's HEVC box support doesn't cover the full
// record layout the teacher's (H.264-only) fork never needed.
//
// Only the three NAL unit arrays HLS players require (VPS/SPS/PPS) are
// emitted; the general_profile/tier/level fields are derived from the
// SPS the caller already parsed so this stays a thin structural encoder
// rather than a second SPS parser.
func encodeHvcC(vps, sps, pps []byte, generalProfileIDC, generalLevelIDC uint8) []byte {
	var buf bytes.Buffer

	buf.WriteByte(1) // configurationVersion
	buf.WriteByte(generalProfileIDC & 0x3f)
	// general_profile_compatibility_flags, general_constraint_indicator_flags:
	// conservatively zeroed; decoders fall back to parsing the SPS itself.
	buf.Write(make([]byte, 4))
	buf.Write(make([]byte, 6))
	buf.WriteByte(generalLevelIDC)

	binary.Write(&buf, binary.BigEndian, uint16(0xf000)) // min_spatial_segmentation_idc
	buf.WriteByte(0xfc)                                  // parallelismType
	buf.WriteByte(0xfc)                                  // chromaFormat
	buf.WriteByte(0xf8)                                  // bitDepthLumaMinus8
	buf.WriteByte(0xf8)                                  // bitDepthChromaMinus8
	binary.Write(&buf, binary.BigEndian, uint16(0))      // avgFrameRate
	buf.WriteByte(0x0f)                                  // constantFrameRate/numTemporalLayers/temporalIdNested/lengthSizeMinusOne=3

	arrays := [][2]interface{}{
		{uint8(32), vps}, // NAL_VPS
		{uint8(33), sps}, // NAL_SPS
		{uint8(34), pps}, // NAL_PPS
	}
	buf.WriteByte(uint8(len(arrays)))

	for _, a := range arrays {
		nalType := a[0].(uint8)
		nalu := a[1].([]byte)

		buf.WriteByte(0x80 | nalType) // array_completeness=1, NAL_unit_type
		binary.Write(&buf, binary.BigEndian, uint16(1))
		binary.Write(&buf, binary.BigEndian, uint16(len(nalu)))
		buf.Write(nalu)
	}

	return buf.Bytes()
}
