package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

// Engine runs invocations against a registry. Plugins are initialised at most once per engine.
type Engine struct {
	registry    *plugin.Registry
	resolver    *Resolver
	router      *output.Router
	env         *plugin.Env
	logger      *zap.Logger
	console     io.Writer
	options     []model.PipelineOption
	initialised map[string]struct{}
}

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithLogger sets the operator logger handed to plugins.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConsole sets where flush and write render output when no file is given. Defaults to os.Stdout.
func WithConsole(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.console = w
	}
}

// WithPipelineOptions adds options observing every run.
func WithPipelineOptions(opts ...model.PipelineOption) EngineOption {
	return func(e *Engine) {
		e.options = append(e.options, opts...)
	}
}

// New resolves the dependencies of reg and creates an engine writing through router.
func New(reg *plugin.Registry, router *output.Router, opts ...EngineOption) (*Engine, error) {
	if reg == nil {
		return nil, ErrRegistryMustBeSet
	}
	if router == nil {
		return nil, ErrRouterMustBeSet
	}

	resolver, err := Resolve(reg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		registry:    reg,
		resolver:    resolver,
		router:      router,
		logger:      zap.NewNop(),
		console:     os.Stdout,
		initialised: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.env = plugin.NewEnv(router, e.logger)

	return e, nil
}

// Env returns the env shared by every plugin of the engine.
func (e *Engine) Env() *plugin.Env {
	return e.env
}

// Resolver returns the dependency resolver of the registry.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// Run executes invocations in order. Every plugin name is checked before anything runs. A help
// request stops the run without error.
func (e *Engine) Run(ctx context.Context, invocations []Invocation) (err error) {
	err = e.validate(invocations)
	if err != nil {
		return err
	}

	for _, opt := range e.options {
		err := opt.New()
		if err != nil {
			return errors.Wrap(err, "unable to start pipeline option")
		}
	}
	defer func() {
		for _, opt := range e.options {
			err = multierr.Append(err, errors.Wrap(opt.Finish(), "unable to finish pipeline option"))
		}
	}()

	parent := model.Start
	for i, inv := range invocations {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "pipeline cancelled")
		}

		info := &model.PluginInfo{Type: model.InvocationPluginType, Index: i, Name: inv.Name, Args: inv.Args}
		if plugin.IsReserved(inv.Name) {
			info.Type = model.ControlPluginType
		}
		err := e.prepare(parent, info)
		if err != nil {
			return err
		}

		if info.Type == model.ControlPluginType {
			err = e.runControl(info)
		} else {
			err = e.runPlugin(ctx, info)
		}
		if errors.Is(err, plugin.ErrHelp) {
			e.logger.Debug("help requested, stopping pipeline", zap.String("plugin", inv.Name))

			return nil
		}
		if err != nil {
			return err
		}
		parent = info
	}

	return nil
}

// Flush renders the pending stdout text to the console.
func (e *Engine) Flush() error {
	return e.router.Render(output.Stdout, output.Console(e.console))
}

func (e *Engine) validate(invocations []Invocation) error {
	for _, inv := range invocations {
		if plugin.IsReserved(inv.Name) || e.registry.Has(inv.Name) {
			continue
		}
		output.Printf(e.router, output.Stderr, "Invalid plugin %q", inv.Name)

		return errors.Wrapf(ErrUnknownPlugin, "%q", inv.Name)
	}

	return nil
}

func (e *Engine) runPlugin(ctx context.Context, info *model.PluginInfo) error {
	def, err := e.registry.Get(info.Name)
	if err != nil {
		return err
	}
	env := e.env.For(info.Name)

	start := time.Now()
	args, err := def.Parse(info.Args, env)
	phaseErr := e.onPhase(info, model.ParsePhase, time.Since(start))
	if errors.Is(err, plugin.ErrHelp) {
		return err
	}
	if err != nil {
		output.Printf(e.router, output.Stderr, "%s%s: %v", plugin.Marker, info.Name, err)

		return errors.Wrapf(err, "unable to parse arguments of %s", info.Name)
	}
	if phaseErr != nil {
		return phaseErr
	}

	err = e.initialise(ctx, info)
	if err != nil {
		return err
	}

	start = time.Now()
	err = def.Main(ctx, env, args)
	elapsed := time.Since(start)
	if err != nil {
		return errors.Wrapf(err, "plugin %s failed", info.Name)
	}
	e.logger.Debug("plugin finished", zap.String("plugin", info.Name), zap.Duration("elapsed", elapsed))

	return e.onPhase(info, model.MainPhase, elapsed)
}

// initialise runs the init callback of the plugin and of its transitive dependencies,
// dependencies first, skipping the ones already initialised.
func (e *Engine) initialise(ctx context.Context, info *model.PluginInfo) error {
	order, err := e.resolver.LoadOrder(info.Name)
	if err != nil {
		return err
	}

	for _, name := range order {
		if _, ok := e.initialised[name]; ok {
			continue
		}
		def, err := e.registry.Get(name)
		if err != nil {
			return err
		}

		target := info
		if name != info.Name {
			target = &model.PluginInfo{Type: model.DependencyPluginType, Index: -1, Name: name}
			err := e.prepare(info, target)
			if err != nil {
				return err
			}
		}

		start := time.Now()
		err = def.Init(ctx, e.env.For(name))
		if err != nil {
			return errors.Wrapf(err, "unable to initialise %s", name)
		}
		elapsed := time.Since(start)
		e.initialised[name] = struct{}{}
		e.logger.Debug("plugin initialised",
			zap.String("plugin", name),
			zap.String("for", info.Name),
			zap.Duration("elapsed", elapsed),
		)

		err = e.onPhase(target, model.InitPhase, elapsed)
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) runControl(info *model.PluginInfo) error {
	start := time.Now()

	stream, dst, err := e.controlDestination(info)
	if err != nil {
		return err
	}
	err = e.router.Render(stream, dst)
	if err != nil {
		output.Printf(e.router, output.Stderr, "%s%s: %v", plugin.Marker, info.Name, err)

		return errors.Wrapf(err, "%s failed", info.Name)
	}

	return e.onPhase(info, model.ControlPhase, time.Since(start))
}

// controlDestination parses the arguments of a control plugin into the stream to render and
// where to render it.
func (e *Engine) controlDestination(info *model.PluginInfo) (output.Stream, output.Destination, error) {
	fs := plugin.NewFlagSet(info.Name, controlDescription(info.Name))
	streamName := fs.StringP("stream", "s", output.Stdout.String(), "stream to render: stdout or stderr")
	discard := new(bool)
	appendFile := new(bool)
	if info.Name == plugin.FlushName {
		discard = fs.BoolP("discard", "d", false, "drop the accumulated output instead of printing it")
	} else {
		appendFile = fs.BoolP("append", "a", false, "append to FILE instead of truncating it")
	}

	err := plugin.ParseFlags(fs, info.Args, e.router)
	if errors.Is(err, plugin.ErrHelp) {
		return 0, nil, err
	}
	if err == nil && fs.NArg() > 0 && (info.Name == plugin.FlushName || fs.NArg() > 1) {
		err = errors.Errorf("%s: unexpected arguments %v", info.Name, fs.Args())
	}
	var stream output.Stream
	if err == nil {
		stream, err = output.ParseStream(*streamName)
	}
	if err != nil {
		output.Printf(e.router, output.Stderr, "%s%s: %v", plugin.Marker, info.Name, err)

		return 0, nil, errors.Wrapf(err, "unable to parse arguments of %s", info.Name)
	}

	switch {
	case *discard:
		return stream, output.Discard(), nil
	case fs.NArg() == 1:
		return stream, output.File(fs.Arg(0), *appendFile), nil
	default:
		return stream, output.Console(e.console), nil
	}
}

func controlDescription(name string) string {
	if name == plugin.FlushName {
		return "Print the output accumulated so far, or drop it with --discard."
	}

	return "Write the output accumulated so far to the FILE argument, or to the screen without one."
}

func (e *Engine) prepare(parent, info *model.PluginInfo) error {
	for _, opt := range e.options {
		err := opt.PreparePlugin(parent, info)
		if err != nil {
			return errors.Wrapf(err, "unable to prepare %s", info.Key())
		}
	}

	return nil
}

func (e *Engine) onPhase(info *model.PluginInfo, phase model.Phase, elapsed time.Duration) error {
	for _, opt := range e.options {
		err := opt.OnPhase(info, phase, elapsed)
		if err != nil {
			return errors.Wrapf(err, "unable to record %s phase of %s", phase, info.Key())
		}
	}

	return nil
}
