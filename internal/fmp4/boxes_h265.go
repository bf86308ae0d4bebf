package fmp4

import (
	gomp4 "github.com/abema/go-mp4"
)

// hvc1BoxType registers the H.265 visual sample entry box type with the
// same VisualSampleEntry shape avc1 uses, the way the teacher's
// internal/hls/fmp4/boxes_h265.go does for its own (H.264-only) fork.
func hvc1BoxType() gomp4.BoxType {
	return gomp4.StrToBoxType("hvc1")
}

func init() {
	gomp4.AddAnyTypeBoxDef(&gomp4.VisualSampleEntry{}, hvc1BoxType())
}
