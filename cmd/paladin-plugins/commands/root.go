// Package commands holds the paladin-plugins command line.
package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/config"
	"github.com/askiada/paladin-plugins/internal/plugins"
	"github.com/askiada/paladin-plugins/pkg/pipeline"
	"github.com/askiada/paladin-plugins/pkg/pipeline/drawer"
	"github.com/askiada/paladin-plugins/pkg/pipeline/measure"
	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

var ErrNoPipeline = errors.New("a pipeline starting with " + plugin.Marker + ", --list or --init-config is required")

type options struct {
	list       bool
	debug      bool
	configPath string
	draw       string
	measure    bool
	initConfig bool
}

// Execute runs the command with the process arguments until it finishes or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand builds the command. Pipeline output is rendered to stdout, progress and
// diagnostics to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "paladin-plugins [flags] @@plugin [arguments] [@@plugin [arguments]...]",
		Short: "PALADIN pipeline plugins",
		Long: "Run a pipeline of PALADIN plugins. Every plugin segment starts with " + plugin.Marker +
			" followed by the plugin name and its own arguments.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	// Everything after the first plugin segment belongs to the plugins.
	root.Flags().SetInterspersed(false)

	flags := root.Flags()
	flags.BoolVarP(&opts.list, "list", "l", false, "list available plugins")
	flags.BoolVar(&opts.debug, "debug", false, "log debug diagnostics")
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default "+config.DefaultPath()+")")
	flags.StringVar(&opts.draw, "draw", "", "write the graph of the run to this DOT file")
	flags.BoolVar(&opts.measure, "measure", false, "report the duration of every plugin phase")
	flags.BoolVar(&opts.initConfig, "init-config", false, "write the effective configuration to the config file and exit")
	_ = flags.MarkHidden("debug")

	return root
}

func run(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) (err error) {
	if !opts.list && !opts.initConfig && (len(args) == 0 || !strings.HasPrefix(args[0], plugin.Marker)) {
		_, _ = io.WriteString(stderr, "Error: "+ErrNoPipeline.Error()+"\n")

		return ErrNoPipeline
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fail(stderr, err)
	}
	if opts.initConfig {
		err = cfg.Save(configPath)
		if err != nil {
			return fail(stderr, err)
		}
		_, _ = io.WriteString(stdout, "Configuration written to "+configPath+"\n")

		return nil
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	app, err := setup(cfg, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() {
		err = multierr.Append(err, app.close())
	}()

	reg, err := plugins.NewRegistry(app.resources)
	if err != nil {
		return fail(stderr, err)
	}
	if opts.list {
		return listPlugins(stdout, reg)
	}

	invocations, err := pipeline.Parse(args)
	if err != nil {
		return fail(stderr, err)
	}

	router := newRouter(cfg.Output, stdout, stderr)
	var (
		pipelineOpts []model.PipelineOption
		msr          measure.Measure
	)
	if opts.measure || opts.draw != "" {
		msr = measure.NewDefaultMeasure()
		var sink output.Sink
		if opts.measure {
			sink = router
		}
		pipelineOpts = append(pipelineOpts, measure.PipelineMeasure(msr, sink))
	}
	if opts.draw != "" {
		pipelineOpts = append(pipelineOpts, drawer.PipelineDrawer(drawer.NewDOTDrawer(opts.draw), msr))
	}

	engine, err := pipeline.New(reg, router,
		pipeline.WithLogger(app.logger),
		pipeline.WithConsole(stdout),
		pipeline.WithPipelineOptions(pipelineOpts...),
	)
	if err != nil {
		return fail(stderr, err)
	}

	app.logger.Debug("running pipeline", zap.String("pipeline", pipeline.Format(invocations)))
	runErr := engine.Run(ctx, invocations)
	if runErr == nil {
		runErr = engine.Flush()
	}
	// Progress kept in the buffer is rendered even when the run failed.
	renderErr := router.Render(output.Stderr, output.Console(stderr))
	if runErr != nil {
		return fail(stderr, runErr)
	}

	return renderErr
}

func newRouter(cfg config.OutputConfig, stdout, stderr io.Writer) *output.Router {
	var consoleOut, consoleErr io.Writer
	if cfg.ConsoleStdout {
		consoleOut = stdout
	}
	if cfg.ConsoleStderr {
		consoleErr = stderr
	}

	return output.NewRouter(
		output.RouterConsole(output.Stdout, consoleOut),
		output.RouterConsole(output.Stderr, consoleErr),
	)
}

func fail(stderr io.Writer, err error) error {
	_, _ = io.WriteString(stderr, "Error: "+err.Error()+"\n")

	return err
}
