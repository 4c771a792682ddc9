package heymac

import (
	"fmt"
	"log"
)

// Logger receives printf-style log lines from the codec, neighbor table,
// and LNK machine. Callers can plug in their own sink (or capture output
// in tests) without the core logic calling the log package directly.
type Logger interface {
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
}

// StdLogger is a Logger that writes to the standard library's log package.
type StdLogger struct {
	Verbose bool
}

// Infof implements Logger.
func (s StdLogger) Infof(f string, v ...interface{}) {
	log.Printf("INFO "+f, v...)
}

// Debugf implements Logger.
func (s StdLogger) Debugf(f string, v ...interface{}) {
	if s.Verbose {
		log.Printf("DEBUG "+f, v...)
	}
}

// discardLogger silently drops everything; used as a safe zero value.
type discardLogger struct{}

func (discardLogger) Infof(string, ...interface{})  {}
func (discardLogger) Debugf(string, ...interface{}) {}

var _ Logger = discardLogger{}
var _ Logger = StdLogger{}
var _ fmt.Stringer = LinkAddress{}
