// Package fmp4 synthesizes fragmented MP4 (ISO-BMFF) init segments and
// media parts: ftyp/moov/mvhd/trak/mvex/trex for the init segment, and
// moof/mfhd/traf/tfhd/tfdt/trun/mdat for each part, adapted from the
// teacher's internal/hls/fmp4 package and generalized to H.265 and EMSG
// (ID3 timed metadata) tracks.
package fmp4

import (
	"io"

	gomp4 "github.com/abema/go-mp4"
	"github.com/orcaman/writerseeker"
)

// mp4Writer nests ISO-BMFF boxes into a seekable in-memory buffer so that
// fields only known after later boxes are written (trun.DataOffset,
// known only once mdat's position is fixed) can be patched in afterwards.
type mp4Writer struct {
	buf *writerseeker.WriterSeeker
	w   *gomp4.Writer
}

func newMP4Writer() *mp4Writer {
	w := &mp4Writer{
		buf: &writerseeker.WriterSeeker{},
	}
	w.w = gomp4.NewWriter(w.buf)
	return w
}

func (w *mp4Writer) writeBoxStart(box gomp4.IImmutableBox) (int, error) {
	bi := &gomp4.BoxInfo{Type: box.GetType()}

	bi, err := w.w.StartBox(bi)
	if err != nil {
		return 0, err
	}

	_, err = gomp4.Marshal(w.w, box, gomp4.Context{})
	if err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

func (w *mp4Writer) writeBoxEnd() error {
	_, err := w.w.EndBox()
	return err
}

// WriteBox writes a self-closing box (no children).
func (w *mp4Writer) WriteBox(box gomp4.IImmutableBox) (int, error) {
	off, err := w.writeBoxStart(box)
	if err != nil {
		return 0, err
	}
	if err := w.writeBoxEnd(); err != nil {
		return 0, err
	}
	return off, nil
}

// writeBoxRaw writes a box whose 4-byte type and payload are supplied
// directly, for box shapes (hvcC) this repository encodes by hand
// rather than through go-mp4's struct-tag marshaler.
func (w *mp4Writer) writeBoxRaw(boxType string, payload []byte) (int, error) {
	bi := &gomp4.BoxInfo{Type: gomp4.StrToBoxType(boxType)}

	bi, err := w.w.StartBox(bi)
	if err != nil {
		return 0, err
	}

	if _, err := w.w.Write(payload); err != nil {
		return 0, err
	}

	if _, err := w.w.EndBox(); err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

func (w *mp4Writer) rewriteBox(off int, box gomp4.IImmutableBox) error {
	prevOff, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := w.w.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}

	if _, err := w.writeBoxStart(box); err != nil {
		return err
	}
	if err := w.writeBoxEnd(); err != nil {
		return err
	}

	_, err = w.w.Seek(prevOff, io.SeekStart)
	return err
}

func (w *mp4Writer) bytes() []byte {
	return w.buf.Bytes()
}
