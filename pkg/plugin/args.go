package plugin

import (
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

// NewFlagSet creates the flag set a plugin parses its arguments with.
func NewFlagSet(name, description string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		out := fs.Output()
		_, _ = out.Write([]byte("usage: @@" + name + " [options]\n\n" + description + "\n\noptions:\n"))
		_, _ = out.Write([]byte(fs.FlagUsages()))
	}

	return fs
}

// SplitArgs splits a raw argument substring the way a shell would. Unquoted shell operators
// (;&|<>) are rejected rather than ending the argument list.
func SplitArgs(raw string) ([]string, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to split arguments %q", raw)
	}
	if parser.Position != -1 {
		return nil, errors.Wrapf(ErrUnquotedOperator, "at offset %d of %q", parser.Position, raw)
	}

	return args, nil
}

// ParseFlags splits raw and parses it into fs. Usage and parse errors are written to the stderr
// stream of sink. ErrHelp is returned when help was requested.
func ParseFlags(fs *pflag.FlagSet, raw string, sink output.Sink) error {
	fs.SetOutput(sink.Writer(output.Stderr))

	args, err := SplitArgs(raw)
	if err != nil {
		return err
	}

	err = fs.Parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		return ErrHelp
	}
	if err != nil {
		return errors.Wrapf(err, "%s: invalid arguments", fs.Name())
	}

	return nil
}

// RequireFlags returns an error naming the first flag of names that was not set.
func RequireFlags(fs *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if !fs.Changed(name) {
			return errors.Errorf("%s: flag --%s is required", fs.Name(), name)
		}
	}

	return nil
}

// NoArgs builds a parser for plugins taking no arguments besides help.
func NoArgs(name, description string) ParseFunc {
	return func(raw string, env *Env) (Args, error) {
		fs := NewFlagSet(name, description)
		err := ParseFlags(fs, raw, env.Out)
		if err != nil {
			return nil, err
		}

		return struct{}{}, nil
	}
}
