// Package errs defines the error taxonomy shared across the pipeline.
package errs

import "fmt"

// Kind classifies a pipeline error so the caller can decide whether to
// log-and-continue or treat it as terminal.
type Kind int

// Error kinds.
const (
	// KindTruncatedInput means the byte source ended or errored mid-stream.
	// This is the only terminal kind: the process logs it and exits.
	KindTruncatedInput Kind = iota
	// KindBadSync means a TS packet didn't start with the 0x47 sync byte;
	// the reader resyncs and continues.
	KindBadSync
	// KindBadCRC means a PSI section failed its CRC-32 check; the section
	// is dropped.
	KindBadCRC
	// KindMalformedSection means a PAT/PMT/SCTE-35 section had an internal
	// inconsistency (bad length, unknown table_id, ...); the section is
	// dropped.
	KindMalformedSection
	// KindMalformedPES means a PES packet had an invalid header; the
	// access unit is dropped.
	KindMalformedPES
	// KindUnsupportedCodec means the PMT advertised a stream type this
	// server doesn't know how to remux; the elementary stream is ignored.
	KindUnsupportedCodec
)

func (k Kind) String() string {
	switch k {
	case KindTruncatedInput:
		return "truncated input"
	case KindBadSync:
		return "bad sync byte"
	case KindBadCRC:
		return "bad CRC"
	case KindMalformedSection:
		return "malformed section"
	case KindMalformedPES:
		return "malformed PES"
	case KindUnsupportedCodec:
		return "unsupported codec"
	default:
		return "unknown"
	}
}

// Terminal reports whether an error of this kind should stop the pipeline.
func (k Kind) Terminal() bool {
	return k == KindTruncatedInput
}

// PipelineError wraps an error with a Kind so callers can branch on it
// without string-matching.
type PipelineError struct {
	Kind Kind
	Err  error
}

// New builds a PipelineError.
func New(kind Kind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
