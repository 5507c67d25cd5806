// Package output provides the shared sink every plugin writes through.
//
// Plugins never print to the process streams. They send text to a Sink with a stream
// designator, and the pipeline decides when buffered text is rendered, persisted to a file or
// discarded.
package output

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Stream designates the logical stream a piece of output belongs to.
type Stream int

const (
	// Stdout carries results.
	Stdout Stream = iota
	// Stderr carries diagnostics and progress messages.
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// ParseStream converts a stream name into a Stream.
func ParseStream(name string) (Stream, error) {
	switch name {
	case "stdout", "":
		return Stdout, nil
	case "stderr":
		return Stderr, nil
	default:
		return Stdout, errors.Errorf("unknown stream %q", name)
	}
}

// Sink is the output port injected into plugins.
type Sink interface {
	// Send records text followed by a newline on the stream.
	Send(stream Stream, text string)
	// Writer returns a writer recording raw bytes on the stream.
	Writer(stream Stream) io.Writer
}

// Printf formats and sends a line to the stream.
func Printf(sink Sink, stream Stream, format string, args ...interface{}) {
	sink.Send(stream, fmt.Sprintf(format, args...))
}
