// Package tsreader abstracts the TS byte source (stdin, a named pipe, or
// a regular file) and the real-time pacing applied when reading from a
// file, adapted from the teacher's BufferingAsyncReader/stdin-pipe split
// in original_source/main.py.
package tsreader

import (
	"io"
	"os"
)

// Source is a byte source for the demuxer.
type Source interface {
	io.Reader
}

// Open resolves path into a Source. An empty path (or "-") reads from
// stdin and is never paced, matching the teacher's `args.input is not
// sys.stdin.buffer` check: live inputs (stdin, a named pipe) are assumed
// to already arrive at wall-clock rate, while a regular file is read as
// fast as possible and must be paced by the caller using a Pacer.
func Open(path string) (src Source, paced bool, err error) {
	if path == "" || path == "-" {
		return os.Stdin, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}

	return f, info.Mode().IsRegular(), nil
}
