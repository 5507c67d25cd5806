package plugin

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

const (
	// Marker starts every plugin segment of a pipeline command line.
	Marker = "@@"
	// FlushName is the control plugin rendering or discarding accumulated output.
	FlushName = "flush"
	// WriteName is the control plugin persisting accumulated output.
	WriteName = "write"
)

// IsReserved reports whether name belongs to a control plugin handled by the pipeline itself.
func IsReserved(name string) bool {
	return name == FlushName || name == WriteName
}

// Args is the value a parse callback produces for the main callback.
type Args any

// ParseFunc parses the raw argument substring of an invocation.
type ParseFunc func(raw string, env *Env) (Args, error)

// InitFunc prepares the resources of a plugin. It runs at most once per pipeline run.
type InitFunc func(ctx context.Context, env *Env) error

// MainFunc runs the plugin.
type MainFunc func(ctx context.Context, env *Env, args Args) error

// Definition describes a plugin. It is immutable once built.
type Definition struct {
	name         string
	description  string
	version      *version.Version
	dependencies []string
	parse        ParseFunc
	init         InitFunc
	main         MainFunc
}

// Option configures a Definition under construction.
type Option func(d *Definition)

// WithDependencies declares plugins that must be initialised before this one runs.
func WithDependencies(names ...string) Option {
	return func(d *Definition) {
		d.dependencies = append(d.dependencies, names...)
	}
}

// WithInit sets the optional init callback.
func WithInit(fn InitFunc) Option {
	return func(d *Definition) {
		d.init = fn
	}
}

// New builds and validates a plugin definition.
func New(name, description, ver string, parse ParseFunc, main MainFunc, opts ...Option) (*Definition, error) {
	err := validateName(name)
	if err != nil {
		return nil, err
	}
	if parse == nil {
		return nil, errors.Wrap(ErrParseMustBeSet, name)
	}
	if main == nil {
		return nil, errors.Wrap(ErrMainMustBeSet, name)
	}

	parsed, err := parseVersion(ver)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	def := &Definition{
		name:        name,
		description: description,
		version:     parsed,
		parse:       parse,
		main:        main,
	}
	for _, opt := range opts {
		opt(def)
	}

	seen := make(map[string]struct{}, len(def.dependencies))
	for _, dep := range def.dependencies {
		if dep == name {
			return nil, errors.Wrap(ErrSelfDependency, name)
		}
		if _, ok := seen[dep]; ok {
			return nil, errors.Wrapf(ErrDuplicateDependency, "%s: %s", name, dep)
		}
		err := validateName(dep)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: dependency", name)
		}
		seen[dep] = struct{}{}
	}

	return def, nil
}

func validateName(name string) error {
	if name == "" {
		return ErrNameMustBeSet
	}
	if strings.Contains(name, Marker) || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	if IsReserved(name) {
		return errors.Wrapf(ErrReservedName, "%q", name)
	}

	return nil
}

func parseVersion(ver string) (*version.Version, error) {
	parsed, err := version.NewVersion(ver)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidVersion, "%q: %s", ver, err)
	}
	if len(strings.Split(strings.TrimPrefix(ver, "v"), ".")) != 3 || parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return nil, errors.Wrapf(ErrInvalidVersion, "%q", ver)
	}

	return parsed, nil
}

// Name returns the invocation token of the plugin.
func (d *Definition) Name() string { return d.name }

// Description returns the human readable description.
func (d *Definition) Description() string { return d.description }

// Version returns the major.minor.revision version.
func (d *Definition) Version() *version.Version { return d.version }

// VersionString renders the version as major.minor.revision.
func (d *Definition) VersionString() string {
	segments := d.version.Segments()

	return strings.Join([]string{strconv.Itoa(segments[0]), strconv.Itoa(segments[1]), strconv.Itoa(segments[2])}, ".")
}

// Dependencies returns a copy of the declared dependencies.
func (d *Definition) Dependencies() []string {
	return append([]string(nil), d.dependencies...)
}

// HasInit reports whether the plugin has an init callback.
func (d *Definition) HasInit() bool { return d.init != nil }

// Parse runs the parse callback.
func (d *Definition) Parse(raw string, env *Env) (Args, error) {
	return d.parse(raw, env)
}

// Init runs the init callback if any.
func (d *Definition) Init(ctx context.Context, env *Env) error {
	if d.init == nil {
		return nil
	}

	return d.init(ctx, env)
}

// Main runs the main callback.
func (d *Definition) Main(ctx context.Context, env *Env, args Args) error {
	return d.main(ctx, env, args)
}
