package output

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Destination receives rendered output.
type Destination interface {
	Deliver(content []byte) error
}

type consoleDestination struct {
	w io.Writer
}

// Console writes rendered output to w.
func Console(w io.Writer) Destination {
	return consoleDestination{w: w}
}

func (d consoleDestination) Deliver(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	_, err := d.w.Write(content)
	if err != nil {
		return errors.Wrap(err, "unable to write to console")
	}

	return nil
}

type fileDestination struct {
	path   string
	append bool
}

// File persists rendered output to path, truncating it unless append is set.
func File(path string, append bool) Destination {
	return fileDestination{path: path, append: append}
}

func (d fileDestination) Deliver(content []byte) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if d.append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(d.path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", d.path)
	}
	_, err = file.Write(content)
	if err != nil {
		_ = file.Close()

		return errors.Wrapf(err, "unable to write %s", d.path)
	}

	return errors.Wrapf(file.Close(), "unable to close %s", d.path)
}

type discardDestination struct{}

// Discard drops rendered output.
func Discard() Destination {
	return discardDestination{}
}

func (discardDestination) Deliver([]byte) error {
	return nil
}
