package h26x

// H264NALUType extracts the nal_unit_type field (bits 3-7 of the NAL
// header byte) from an H.264 NAL unit.
func H264NALUType(nalu []byte) uint8 {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1f
}

// H.264 nal_unit_type values this server needs to recognize.
const (
	H264NALUTypeNonIDR                = 1
	H264NALUTypeIDR                   = 5
	H264NALUTypeSEI                   = 6
	H264NALUTypeSPS                   = 7
	H264NALUTypePPS                   = 8
	H264NALUTypeAccessUnitDelimiter   = 9
)

// H264IsIDR reports whether an access unit (a slice of NAL units)
// contains an IDR slice, i.e. starts a new GOP.
func H264IsIDR(nalus [][]byte) bool {
	for _, n := range nalus {
		if H264NALUType(n) == H264NALUTypeIDR {
			return true
		}
	}
	return false
}

// H264FindParameterSets returns the first SPS and PPS NAL units found in
// an access unit, or nil if absent.
func H264FindParameterSets(nalus [][]byte) (sps, pps []byte) {
	for _, n := range nalus {
		switch H264NALUType(n) {
		case H264NALUTypeSPS:
			if sps == nil {
				sps = n
			}
		case H264NALUTypePPS:
			if pps == nil {
				pps = n
			}
		}
	}
	return
}
