package plotting

import (
	"image/color"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	dpi           = 96
	defaultWidth  = 6.4 * vg.Inch
	defaultHeight = 4.8 * vg.Inch
)

type cell struct {
	row, col int
}

// figure is a grid of plots drawn into one PNG image. It lives across the invocations of a
// pipeline run.
type figure struct {
	width, height vg.Length
	rows, cols    int
	cells         map[cell]*plot.Plot
	current       cell
}

func newFigure() *figure {
	f := &figure{width: defaultWidth, height: defaultHeight}
	f.grid(1, 1)

	return f
}

// grid replaces the layout and drops the plots drawn so far.
func (f *figure) grid(rows, cols int) {
	f.rows, f.cols = rows, cols
	f.cells = make(map[cell]*plot.Plot)
	f.current = cell{}
}

func (f *figure) moveTo(row, col int) error {
	if row < 0 || row >= f.rows || col < 0 || col >= f.cols {
		return errors.Wrapf(ErrCellOutOfRange, "cell %d,%d of a %dx%d grid", row, col, f.rows, f.cols)
	}
	f.current = cell{row: row, col: col}

	return nil
}

// plot returns the plot of the current cell.
func (f *figure) plot() *plot.Plot {
	p, ok := f.cells[f.current]
	if !ok {
		p = plot.New()
		f.cells[f.current] = p
	}

	return p
}

func (f *figure) labels(title, x, y string) {
	p := f.plot()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
}

// bar draws s as horizontal bars, the first value at the top.
func (f *figure) bar(s Series) error {
	n := len(s.Values)
	values := make(plotter.Values, n)
	labels := make([]string, n)
	for i := range s.Values {
		values[n-1-i] = s.Values[i]
		labels[n-1-i] = s.Labels[i]
	}

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "unable to build bar chart")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0

	p := f.plot()
	p.Add(bars)
	p.NominalY(labels...)

	return nil
}

// pie draws s as a pie chart starting at 12 o'clock, with a legend in the lower left corner.
func (f *figure) pie(s Series) {
	chart := pieChart{values: s.Values, colors: make([]color.Color, len(s.Values))}
	p := f.plot()
	p.HideAxes()
	p.Legend.Left = true
	p.Legend.Top = false
	for i, label := range s.Labels {
		chart.colors[i] = plotutil.Color(i)
		p.Legend.Add(label, swatch{color: chart.colors[i]})
	}
	p.Add(chart)
}

// save renders every cell and writes the PNG image to path.
func (f *figure) save(path string) (err error) {
	img := vgimg.NewWith(vgimg.UseWH(f.width, f.height), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      f.rows,
		Cols:      f.cols,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Millimeter,
		PadBottom: vg.Millimeter,
		PadLeft:   vg.Millimeter,
		PadRight:  vg.Millimeter,
	}
	for c, p := range f.cells {
		p.Draw(tiles.At(dc, c.col, c.row))
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer func() {
		err = multierr.Append(err, errors.Wrapf(file.Close(), "unable to close %s", path))
	}()

	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(file)

	return errors.Wrapf(err, "unable to write %s", path)
}

type pieChart struct {
	values []float64
	colors []color.Color
}

func (pc pieChart) Plot(c draw.Canvas, _ *plot.Plot) {
	total := 0.0
	for _, v := range pc.values {
		total += v
	}
	if total <= 0 {
		return
	}

	center := vg.Point{X: (c.Min.X + c.Max.X) / 2, Y: (c.Min.Y + c.Max.Y) / 2}
	radius := min(c.Max.X-c.Min.X, c.Max.Y-c.Min.Y) * 0.45
	start := math.Pi / 2
	for i, v := range pc.values {
		sweep := 2 * math.Pi * v / total
		var wedge vg.Path
		wedge.Move(center)
		wedge.Arc(center, radius, start, sweep)
		wedge.Close()
		c.SetColor(pc.colors[i])
		c.Fill(wedge)
		start += sweep
	}
}

type swatch struct {
	color color.Color
}

func (s swatch) Thumbnail(c *draw.Canvas) {
	c.FillPolygon(s.color, []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	})
}
