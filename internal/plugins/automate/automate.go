// Package automate runs PALADIN over every set of reads found under a directory.
package automate

import (
	"context"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/internal/aligner"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "automate"
	description = "Automate PALADIN execution across multiple sets of reads"
	version     = "1.1.0"
)

var ErrMissingPositional = errors.New("missing positional argument")

type Args struct {
	Reference string
	Root      string
	Pattern   *regexp.Regexp
	Options   []string
	Workers   int
}

type automatePlugin struct {
	res *resources.Resources
}

func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &automatePlugin{res: res}

	return plugin.New(Name, description, version, p.parse, p.main)
}

func (p *automatePlugin) parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description+"\n\narguments: REFERENCE ROOT PATTERN [PALADIN OPTIONS...]")
	flags.SetInterspersed(false)
	workers := flags.IntP("workers", "w", p.res.Config.Aligner.Workers, "number of concurrent alignments")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	positional := flags.Args()
	if len(positional) < 3 {
		return nil, errors.Wrapf(ErrMissingPositional, "%s: expected REFERENCE ROOT PATTERN, got %d arguments", Name, len(positional))
	}
	if *workers <= 0 {
		return nil, errors.Errorf("%s: workers must be positive, got %d", Name, *workers)
	}
	re, err := regexp.Compile(positional[2])
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid pattern %q", Name, positional[2])
	}

	return &Args{
		Reference: positional[0],
		Root:      positional[1],
		Pattern:   re,
		Options:   positional[3:],
		Workers:   *workers,
	}, nil
}

func (p *automatePlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) error {
	a, _ := args.(*Args)

	jobs, err := FindJobs(a.Reference, a.Root, a.Pattern, a.Options)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		env.Progress("Aligning " + job.Input + "...")
	}

	return aligner.RunAll(ctx, p.res.Aligner, jobs, a.Workers, env.Logger)
}

// FindJobs walks root and builds one alignment per file whose name matches pattern. The output
// base name is the file name up to its first dot, next to the reads.
func FindJobs(reference, root string, pattern *regexp.Regexp, options []string) ([]aligner.Job, error) {
	var jobs []aligner.Job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !pattern.MatchString(d.Name()) {
			return nil
		}
		base, _, _ := strings.Cut(d.Name(), ".")
		jobs = append(jobs, aligner.Job{
			Reference: reference,
			Input:     path,
			Output:    filepath.Join(filepath.Dir(path), base),
			Options:   options,
		})

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to walk %s", root)
	}

	return jobs, nil
}
