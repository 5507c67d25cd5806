// Package hpc splits a set of reads across local workers, aligns every part concurrently and
// aggregates the results.
package hpc

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/aligner"
	"github.com/askiada/paladin-plugins/internal/plugins/aggregation"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "hpc"
	description = "Distribute PALADIN execution across local workers"
	version     = "1.1.0"
)

var (
	ErrMissingPositional = errors.New("missing positional argument")
	ErrNoReads           = errors.New("no reads found")
)

type Args struct {
	Reference string
	Input     string
	Output    string
	Options   []string
	Workers   int
}

type hpcPlugin struct {
	res *resources.Resources
}

func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &hpcPlugin{res: res}

	return plugin.New(Name, description, version, p.parse, p.main,
		plugin.WithDependencies(aggregation.Name),
	)
}

func (p *hpcPlugin) parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description+"\n\narguments: REFERENCE INPUT OUTPUT [PALADIN OPTIONS...]")
	flags.SetInterspersed(false)
	workers := flags.IntP("workers", "w", p.res.Config.Aligner.Workers, "number of parts the reads are split into")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	positional := flags.Args()
	if len(positional) < 3 {
		return nil, errors.Wrapf(ErrMissingPositional, "%s: expected REFERENCE INPUT OUTPUT, got %d arguments", Name, len(positional))
	}
	if *workers <= 0 {
		return nil, errors.Errorf("%s: workers must be positive, got %d", Name, *workers)
	}

	return &Args{
		Reference: positional[0],
		Input:     positional[1],
		Output:    positional[2],
		Options:   positional[3:],
		Workers:   *workers,
	}, nil
}

func (p *hpcPlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) (err error) {
	a, _ := args.(*Args)

	env.Progress("Splitting reads across " + strconv.Itoa(a.Workers) + " workers...")
	parts, err := SplitReads(a.Input, a.Workers)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, removeAll(env.Logger, parts))
	}()

	var (
		jobs    []aligner.Job
		outputs []string
	)
	for i, part := range parts {
		output := a.Output + "-" + strconv.Itoa(i)
		jobs = append(jobs, aligner.Job{Reference: a.Reference, Input: part, Output: output, Options: a.Options})
		outputs = append(outputs, output)
	}
	if len(jobs) == 0 {
		return errors.Wrapf(ErrNoReads, "%s", a.Input)
	}

	env.Progress("Aligning " + strconv.Itoa(len(jobs)) + " parts...")
	err = aligner.RunAll(ctx, p.res.Aligner, jobs, a.Workers, env.Logger)
	if err != nil {
		return err
	}

	err = aggregation.ProcessData(ctx, env, outputs, a.Output, a.Workers)
	if err != nil {
		return err
	}

	var intermediate []string
	for _, output := range outputs {
		intermediate = append(intermediate, output+".sam", output+"_uniprot.tsv")
	}

	return removeAll(env.Logger, intermediate)
}

// SplitReads distributes the records of a FASTA or FASTQ file round robin into
// <input>-0 ... <input>-<count-1>. Files ending in gz are read through gzip. The paths of
// the parts holding at least one record are returned, empty parts are removed.
func SplitReads(input string, count int) (parts []string, err error) {
	in, err := os.Open(input)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", input)
	}
	defer func() {
		err = multierr.Append(err, in.Close())
	}()

	var r io.Reader = in
	if strings.HasSuffix(input, "gz") {
		zr, err := gzip.NewReader(in)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read gzip header of %s", input)
		}
		defer zr.Close()
		r = zr
	}

	writers := make([]*partWriter, count)
	for i := range writers {
		writers[i], err = newPartWriter(input + "-" + strconv.Itoa(i))
		if err != nil {
			return nil, multierr.Append(err, closeParts(writers[:i]))
		}
	}

	err = distribute(r, writers)
	err = multierr.Append(err, closeParts(writers))
	if err != nil {
		return nil, multierr.Append(err, removeParts(writers))
	}

	for _, w := range writers {
		if w.records == 0 {
			err = os.Remove(w.path)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to remove %s", w.path)
			}

			continue
		}
		parts = append(parts, w.path)
	}

	return parts, nil
}

func distribute(r io.Reader, writers []*partWriter) error {
	const (
		unknown = iota
		fasta
		fastq
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	mode := unknown
	current := -1
	line := -1
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if mode == unknown {
			mode = fastq
			if strings.HasPrefix(text, ">") {
				mode = fasta
			}
		}

		line++
		if (mode == fasta && strings.HasPrefix(text, ">")) || (mode == fastq && line%4 == 0) {
			current = (current + 1) % len(writers)
			writers[current].records++
		}
		if current < 0 {
			continue
		}
		err := writers[current].writeLine(text)
		if err != nil {
			return err
		}
	}

	return errors.Wrap(scanner.Err(), "unable to read reads")
}

type partWriter struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	records int
}

func newPartWriter(path string) (*partWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", path)
	}

	return &partWriter{path: path, file: f, buf: bufio.NewWriter(f)}, nil
}

func (w *partWriter) writeLine(text string) error {
	_, err := w.buf.WriteString(text + "\n")

	return errors.Wrapf(err, "unable to write %s", w.path)
}

func (w *partWriter) close() error {
	err := errors.Wrapf(w.buf.Flush(), "unable to write %s", w.path)

	return multierr.Append(err, w.file.Close())
}

func closeParts(writers []*partWriter) error {
	var err error
	for _, w := range writers {
		err = multierr.Append(err, w.close())
	}

	return err
}

func removeParts(writers []*partWriter) error {
	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		paths = append(paths, w.path)
	}

	return removeAll(zap.NewNop(), paths)
}

func removeAll(logger *zap.Logger, paths []string) error {
	var err error
	for _, path := range paths {
		logger.Debug("removing intermediate file", zap.String("path", path))
		removeErr := os.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			err = multierr.Append(err, errors.Wrapf(removeErr, "unable to remove %s", path))
		}
	}

	return err
}
