// Package plotting draws pie and bar charts of tab separated pipeline output into PNG images.
// Successive invocations share one figure, so a grid of charts can be built over several
// steps and saved by the last one.
package plotting

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"

	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "plotting"
	description = "Generate plots in PNG format from pipeline generated data"
	version     = "1.1.0"

	PieChart = "pie"
	BarChart = "bar"
)

var (
	ErrNoArguments    = errors.New("at least one argument is required")
	ErrInvalidChoice  = errors.New("invalid choice")
	ErrInvalidTuple   = errors.New("wrong number of values")
	ErrCellOutOfRange = errors.New("cell is outside the grid")
)

// Args are the parsed arguments of the plugin. Zero values leave the figure unchanged.
type Args struct {
	Input   string
	Output  string
	Limit   int
	Grid    []int
	Cell    []int
	Labels  []string
	Type    string
	Prepend bool
	Size    []float64
	// Columns holds the 1-based value and label columns of Input.
	Columns []int
}

type plottingPlugin struct {
	fig *figure
}

// Definition builds the plugin. Its init callback starts an empty single cell figure.
func Definition() (*plugin.Definition, error) {
	p := &plottingPlugin{fig: newFigure()}

	return plugin.New(Name, description, version, parse, p.main, plugin.WithInit(p.init))
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	input := flags.StringP("input", "i", "", "two column input file path")
	out := flags.StringP("output", "o", "", "output PNG file path")
	limit := flags.IntP("limit", "l", 0, "limit the number of rows shown on plot")
	grid := flags.IntSliceP("grid", "g", nil, "create new grid layout (ROWS,COLUMNS)")
	location := flags.IntSliceP("cell", "c", nil, "set current grid location (ROW,COLUMN)")
	labels := flags.StringSliceP("labels", "L", nil, "plot labels (TITLE,X-AXIS,Y-AXIS)")
	chart := flags.StringP("type", "t", "", "plot type (pie, bar)")
	prepend := flags.BoolP("prepend", "p", false, "prepend value to labels")
	size := flags.Float64SliceP("size", "s", nil, "size of plot in inches (WIDTH,HEIGHT)")
	columns := flags.IntSliceP("columns", "C", []int{1, 2}, "value and label columns (VALUES,LABELS)")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		flags.Usage()

		return nil, errors.Wrap(ErrNoArguments, Name)
	}

	tuples := []struct {
		flag      string
		got, want int
	}{
		{"grid", len(*grid), 2},
		{"cell", len(*location), 2},
		{"labels", len(*labels), 3},
		{"size", len(*size), 2},
		{"columns", len(*columns), 2},
	}
	for _, tuple := range tuples {
		if flags.Changed(tuple.flag) && tuple.got != tuple.want {
			return nil, errors.Wrapf(ErrInvalidTuple, "%s: --%s takes %d values, got %d", Name, tuple.flag, tuple.want, tuple.got)
		}
	}
	if *input != "" && *chart != PieChart && *chart != BarChart {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: type %q", Name, *chart)
	}
	if flags.Changed("grid") && ((*grid)[0] < 1 || (*grid)[1] < 1) {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: grid %v", Name, *grid)
	}
	if flags.Changed("size") && ((*size)[0] <= 0 || (*size)[1] <= 0) {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: size %v", Name, *size)
	}
	if (*columns)[0] < 1 || (*columns)[1] < 1 {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: columns %v", Name, *columns)
	}

	return &Args{
		Input:   *input,
		Output:  *out,
		Limit:   *limit,
		Grid:    *grid,
		Cell:    *location,
		Labels:  *labels,
		Type:    *chart,
		Prepend: *prepend,
		Size:    *size,
		Columns: *columns,
	}, nil
}

func (p *plottingPlugin) init(context.Context, *plugin.Env) error {
	p.fig = newFigure()

	return nil
}

func (p *plottingPlugin) main(_ context.Context, env *plugin.Env, args plugin.Args) error {
	a, _ := args.(*Args)
	fig := p.fig

	if len(a.Size) == 2 {
		fig.width = vg.Length(a.Size[0]) * vg.Inch
		fig.height = vg.Length(a.Size[1]) * vg.Inch
	}
	if len(a.Grid) == 2 {
		fig.grid(a.Grid[0], a.Grid[1])
	}
	if len(a.Cell) == 2 {
		err := fig.moveTo(a.Cell[0], a.Cell[1])
		if err != nil {
			return err
		}
	}
	if len(a.Labels) == 3 {
		fig.labels(a.Labels[0], a.Labels[1], a.Labels[2])
	}

	if a.Input != "" {
		series, err := LoadSeries(a.Input, a.Columns[0], a.Columns[1], a.Prepend)
		if err != nil {
			return err
		}
		if a.Limit > 0 {
			series = series.Limit(a.Limit)
		}
		switch a.Type {
		case PieChart:
			env.Progress("Generating pie chart...")
			fig.pie(series)
		case BarChart:
			env.Progress("Generating bar chart...")
			err = fig.bar(series)
			if err != nil {
				return err
			}
		}
	}

	if a.Output != "" {
		err := fig.save(a.Output)
		if err != nil {
			return err
		}
		env.Logger.Debug("figure saved", zap.String("path", a.Output), zap.Int("rows", fig.rows), zap.Int("cols", fig.cols))
	}

	return nil
}
