package h26x

// H265NALUType extracts the nal_unit_type field (bits 1-6 of the first
// header byte) from an H.265 NAL unit.
func H265NALUType(nalu []byte) uint8 {
	if len(nalu) == 0 {
		return 0
	}
	return (nalu[0] >> 1) & 0x3f
}

// H.265 nal_unit_type values this server needs to recognize. 19-21 are
// the IRAP ("IDR"-equivalent) slice types.
const (
	H265NALUTypeIDRWRADL = 19
	H265NALUTypeIDRNLP   = 20
	H265NALUTypeCRA      = 21
	H265NALUTypeVPS      = 32
	H265NALUTypeSPS      = 33
	H265NALUTypePPS      = 34
)

// H265IsIRAP reports whether an access unit contains an IRAP slice
// (IDR_W_RADL, IDR_N_LP or CRA), i.e. starts a new GOP.
func H265IsIRAP(nalus [][]byte) bool {
	for _, n := range nalus {
		switch H265NALUType(n) {
		case H265NALUTypeIDRWRADL, H265NALUTypeIDRNLP, H265NALUTypeCRA:
			return true
		}
	}
	return false
}

// H265FindParameterSets returns the first VPS, SPS and PPS NAL units
// found in an access unit.
func H265FindParameterSets(nalus [][]byte) (vps, sps, pps []byte) {
	for _, n := range nalus {
		switch H265NALUType(n) {
		case H265NALUTypeVPS:
			if vps == nil {
				vps = n
			}
		case H265NALUTypeSPS:
			if sps == nil {
				sps = n
			}
		case H265NALUTypePPS:
			if pps == nil {
				pps = n
			}
		}
	}
	return
}
