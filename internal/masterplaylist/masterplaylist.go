// Package masterplaylist builds the static multi-variant playlist that
// advertises every rendition exposed by this process. Unlike the live
// media playlist in internal/playlist, the master playlist is built from
// a rendition list that never changes after startup (the HTTP server
// calls Build on each request), with a real encoding library rather
// than by hand, the way the teacher's string-concatenation master
// playlist (internal/hls/muxer_primary_playlist.go, predating gohlslib)
// does.
package masterplaylist

import (
	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"
)

// Rendition describes one variant stream to list in the master playlist.
type Rendition struct {
	URI          string
	Bandwidth    uint32
	Codecs       string
	Resolution   string
	FrameRate    float64
	AudioGroupID string
}

// AudioRendition describes one EXT-X-MEDIA audio alternative.
type AudioRendition struct {
	GroupID    string
	Name       string
	URI        string
	Language   string
	IsDefault  bool
	Autoselect bool
}

// Build encodes a master playlist listing the given renditions.
func Build(renditions []Rendition, audio []AudioRendition) []byte {
	mp := m3u8.NewMasterPlaylist()
	mp.SetIndependentSegments(true)

	for _, r := range renditions {
		params := m3u8.VariantParams{
			Bandwidth:  r.Bandwidth,
			Codecs:     r.Codecs,
			Resolution: r.Resolution,
			FrameRate:  r.FrameRate,
			Audio:      r.AudioGroupID,
		}

		for _, a := range audio {
			if a.GroupID != r.AudioGroupID {
				continue
			}
			params.Alternatives = append(params.Alternatives, &m3u8.Alternative{
				Type:       "AUDIO",
				GroupId:    a.GroupID,
				Name:       a.Name,
				URI:        a.URI,
				Language:   a.Language,
				Default:    a.IsDefault,
				Autoselect: a.Autoselect,
			})
		}

		mp.Append(r.URI, nil, params)
	}

	return mp.Encode().Bytes()
}
