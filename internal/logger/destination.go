package logger

import "time"

// Destination is a log destination.
type Destination int

// Log destinations.
const (
	DestinationStdout Destination = iota
	DestinationFile
	DestinationSyslog
)

type destination interface {
	log(t time.Time, level Level, format string, args ...any)
	close()
}
