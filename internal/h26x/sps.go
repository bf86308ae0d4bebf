package h26x

import "fmt"

// bitReader reads arbitrary-width big-endian bit fields and Exp-Golomb
// codes out of an RBSP byte slice, the same shape as scte35's bitReader,
// extended with ue()/se() for SPS field decoding.
type bitReader struct {
	buf    []byte
	bitPos int
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

func (r *bitReader) readBit() (uint64, error) {
	bytePos := r.bitPos / 8
	if bytePos >= len(r.buf) {
		return 0, fmt.Errorf("h26x: bit read past end of buffer")
	}
	bitInByte := 7 - (r.bitPos % 8)
	bit := (r.buf[bytePos] >> uint(bitInByte)) & 0x01
	r.bitPos++
	return uint64(bit), nil
}

func (r *bitReader) readBits(n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | bit
	}
	return v, nil
}

func (r *bitReader) readBool() (bool, error) {
	v, err := r.readBits(1)
	return v != 0, err
}

// ue reads an Exp-Golomb unsigned code (ue(v)), ITU-T H.264/H.265 9.1.
func (r *bitReader) ue() (uint64, error) {
	leadingZeros := 0
	for {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if bit != 0 {
			break
		}
		leadingZeros++
		if leadingZeros > 32 {
			return 0, fmt.Errorf("h26x: runaway exp-golomb code")
		}
	}
	if leadingZeros == 0 {
		return 0, nil
	}
	rest, err := r.readBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return (1<<uint(leadingZeros) - 1) + rest, nil
}

// Dimensions is a decoded frame size, in pixels, already adjusted for
// cropping.
type Dimensions struct {
	Width, Height int
}

// H264SPSDimensions decodes pic_width/pic_height out of an H.264
// seq_parameter_set_rbsp, following the profile_idc-dependent
// chroma_format_idc branch only far enough to skip past it.
func H264SPSDimensions(rbsp []byte) (Dimensions, error) {
	rbsp = RemoveEmulationPrevention(rbsp)
	if len(rbsp) < 4 {
		return Dimensions{}, fmt.Errorf("h26x: sps too short")
	}

	r := newBitReader(rbsp[1:]) // skip the 1-byte NAL header
	profileIdc, err := r.readBits(8)
	if err != nil {
		return Dimensions{}, err
	}
	r.readBits(8) // constraint flags + reserved
	r.readBits(8) // level_idc
	if _, err := r.ue(); err != nil { // seq_parameter_set_id
		return Dimensions{}, err
	}

	chromaFormatIdc := uint64(1)
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormatIdc, err = r.ue()
		if err != nil {
			return Dimensions{}, err
		}
		if chromaFormatIdc == 3 {
			if _, err := r.readBool(); err != nil { // separate_colour_plane_flag
				return Dimensions{}, err
			}
		}
		if _, err := r.ue(); err != nil { // bit_depth_luma_minus8
			return Dimensions{}, err
		}
		if _, err := r.ue(); err != nil { // bit_depth_chroma_minus8
			return Dimensions{}, err
		}
		r.readBool() // qpprime_y_zero_transform_bypass_flag
		seqScalingMatrixPresent, err := r.readBool()
		if err != nil {
			return Dimensions{}, err
		}
		if seqScalingMatrixPresent {
			return Dimensions{}, fmt.Errorf("h26x: scaling matrices in sps not supported")
		}
	}

	if _, err := r.ue(); err != nil { // log2_max_frame_num_minus4
		return Dimensions{}, err
	}
	picOrderCntType, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := r.ue(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return Dimensions{}, err
		}
	case 1:
		return Dimensions{}, fmt.Errorf("h26x: pic_order_cnt_type 1 in sps not supported")
	}

	if _, err := r.ue(); err != nil { // max_num_ref_frames
		return Dimensions{}, err
	}
	r.readBool() // gaps_in_frame_num_value_allowed_flag

	picWidthInMbsMinus1, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}
	picHeightInMapUnitsMinus1, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}
	frameMbsOnly, err := r.readBool()
	if err != nil {
		return Dimensions{}, err
	}
	if !frameMbsOnly {
		r.readBool() // mb_adaptive_frame_field_flag
	}
	r.readBool() // direct_8x8_inference_flag

	cropLeft, cropRight, cropTop, cropBottom := uint64(0), uint64(0), uint64(0), uint64(0)
	cropping, err := r.readBool()
	if err != nil {
		return Dimensions{}, err
	}
	if cropping {
		if cropLeft, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropRight, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropTop, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropBottom, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
	}

	width := (picWidthInMbsMinus1 + 1) * 16
	heightMul := uint64(2)
	if frameMbsOnly {
		heightMul = 1
	}
	height := (picHeightInMapUnitsMinus1 + 1) * 16 * heightMul

	subWidthC, subHeightC := uint64(2), uint64(2)
	if chromaFormatIdc == 3 {
		subWidthC, subHeightC = 1, 1
	} else if chromaFormatIdc == 2 {
		subHeightC = 1
	}
	cropUnitX := subWidthC
	cropUnitY := subHeightC * heightMul
	if chromaFormatIdc == 0 {
		cropUnitX, cropUnitY = 1, heightMul
	}

	width -= (cropLeft + cropRight) * cropUnitX
	height -= (cropTop + cropBottom) * cropUnitY

	return Dimensions{Width: int(width), Height: int(height)}, nil
}

// H265SPSDimensions decodes pic_width/pic_height out of an H.265
// seq_parameter_set_rbsp, skipping the profile_tier_level() block
// wholesale since only its fixed-size fields precede the dimensions.
func H265SPSDimensions(rbsp []byte) (Dimensions, error) {
	rbsp = RemoveEmulationPrevention(rbsp)
	if len(rbsp) < 14 {
		return Dimensions{}, fmt.Errorf("h26x: sps too short")
	}

	r := newBitReader(rbsp[2:]) // skip the 2-byte NAL header
	if _, err := r.readBits(4); err != nil {                    // sps_video_parameter_set_id
		return Dimensions{}, err
	}
	maxSubLayersMinus1, err := r.readBits(3)
	if err != nil {
		return Dimensions{}, err
	}
	r.readBool() // sps_temporal_id_nesting_flag

	if err := skipProfileTierLevel(r, maxSubLayersMinus1); err != nil {
		return Dimensions{}, err
	}

	if _, err := r.ue(); err != nil { // sps_seq_parameter_set_id
		return Dimensions{}, err
	}
	chromaFormatIdc, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}
	if chromaFormatIdc == 3 {
		r.readBool() // separate_colour_plane_flag
	}

	width, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}
	height, err := r.ue()
	if err != nil {
		return Dimensions{}, err
	}

	cropLeft, cropRight, cropTop, cropBottom := uint64(0), uint64(0), uint64(0), uint64(0)
	cropping, err := r.readBool()
	if err != nil {
		return Dimensions{}, err
	}
	if cropping {
		if cropLeft, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropRight, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropTop, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
		if cropBottom, err = r.ue(); err != nil {
			return Dimensions{}, err
		}
	}

	subWidthC, subHeightC := uint64(2), uint64(2)
	if chromaFormatIdc == 0 || chromaFormatIdc == 3 {
		subWidthC, subHeightC = 1, 1
	} else if chromaFormatIdc == 2 {
		subWidthC = 1
	}

	width -= (cropLeft + cropRight) * subWidthC
	height -= (cropTop + cropBottom) * subHeightC

	return Dimensions{Width: int(width), Height: int(height)}, nil
}

// skipProfileTierLevel advances r past profile_tier_level(1,
// maxSubLayersMinus1), whose layout is fixed-size regardless of content.
func skipProfileTierLevel(r *bitReader, maxSubLayersMinus1 uint64) error {
	if _, err := r.readBits(2 + 1 + 5 + 32 + 4 + 43 + 1); err != nil { // general profile/tier/constraint fields
		return err
	}
	if _, err := r.readBits(8); err != nil { // general_level_idc
		return err
	}

	subLayerProfilePresent := make([]bool, maxSubLayersMinus1)
	subLayerLevelPresent := make([]bool, maxSubLayersMinus1)
	for i := range subLayerProfilePresent {
		v, err := r.readBool()
		if err != nil {
			return err
		}
		subLayerProfilePresent[i] = v
		v, err = r.readBool()
		if err != nil {
			return err
		}
		subLayerLevelPresent[i] = v
	}
	if maxSubLayersMinus1 > 0 {
		if _, err := r.readBits(int(2 * (8 - maxSubLayersMinus1))); err != nil { // reserved padding
			return err
		}
	}
	for i := range subLayerProfilePresent {
		if subLayerProfilePresent[i] {
			if _, err := r.readBits(2 + 1 + 5 + 32 + 4 + 43 + 1); err != nil {
				return err
			}
		}
		if subLayerLevelPresent[i] {
			if _, err := r.readBits(8); err != nil {
				return err
			}
		}
	}

	return nil
}
