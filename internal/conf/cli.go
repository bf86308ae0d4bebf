package conf

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// CLI is the flat, non-YAML flag set this server accepts, bound with
// kong the way the teacher's internal/core.cli struct is, but without a
// config-file argument: this server's whole interface is CLI flags.
type CLI struct {
	Input          string  `short:"i" help:"input TS file, named pipe, or \"-\" for stdin" default:""`
	SID            int     `name:"SID" short:"s" help:"program number (SID) to follow; first non-zero program if unset" default:"0"`
	WindowSize     int     `name:"window_size" short:"w" help:"live playlist window size in segments; unset selects an EVENT playlist" default:"0"`
	TargetDuration int     `short:"t" help:"target segment duration in seconds" default:"1"`
	PartDuration   float64 `short:"p" help:"target partial-segment duration in seconds" default:"0.1"`
	Port           int     `help:"HTTP listen port" default:"8080"`
}

// HasSID reports whether -s/--SID was meaningfully set. kong has no
// "was this flag present" hook for a plain int without a pointer, so 0
// (not a valid program number) doubles as "unset", matching the
// original's optional `nargs='?'` behavior.
func (c CLI) HasSID() bool { return c.SID != 0 }

// HasWindowSize reports whether -w/--window_size was set; 0 means unset
// and selects an EVENT (non-sliding) playlist, matching the original's
// `args.window_size is None` check.
func (c CLI) HasWindowSize() bool { return c.WindowSize != 0 }

// ParseCLI parses args (normally os.Args[1:]) into a CLI, using kong the
// way the teacher's core.New does.
func ParseCLI(args []string) (*CLI, error) {
	var cli CLI

	parser, err := kong.New(&cli,
		kong.Description("llhls-origin: a low-latency HLS origin server"),
		kong.UsageOnError(),
	)
	if err != nil {
		return nil, err
	}

	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("conf: %w", err)
	}

	return &cli, nil
}
