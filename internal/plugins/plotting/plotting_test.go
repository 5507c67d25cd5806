package plotting_test

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/plotting"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
)

const abundance = "Count\tAbundance\tSpecies\n" +
	"10\t40\tEscherichia coli\n" +
	"6\t24\tBacillus subtilis\n" +
	"4\t16\tHomo sapiens\n" +
	"3\t12\tBacteria group\n" +
	"\n" +
	"2\t8\tUnknown\n"

func pngSize(t *testing.T, path string) (int, int) {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	cfg, err := png.DecodeConfig(file)
	require.NoError(t, err)

	return cfg.Width, cfg.Height
}

func TestPlotting(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		line       func(input, out string) string
		wantWidth  int
		wantHeight int
		progress   []string
	}{
		"bar chart": {
			line: func(input, out string) string {
				return "@@plotting -i " + input + " -t bar -C 2,3 -L 'Taxa,Abundance,Species' -s 4,3 -o " + out
			},
			wantWidth:  384,
			wantHeight: 288,
			progress:   []string{"Generating bar chart..."},
		},
		"pie chart with limit": {
			line: func(input, out string) string {
				return "@@plotting -i " + input + " -t pie -C 1,3 -l 2 -p -s 3,3 -o " + out
			},
			wantWidth:  288,
			wantHeight: 288,
			progress:   []string{"Generating pie chart..."},
		},
		"grid over several steps": {
			line: func(input, out string) string {
				return "@@plotting -s 8,3 -g 1,2 " +
					"@@plotting -c 0,0 -i " + input + " -t pie -C 2,3 " +
					"@@plotting -c 0,1 -i " + input + " -t bar -C 2,3 -o " + out
			},
			wantWidth:  768,
			wantHeight: 288,
			progress:   []string{"Generating pie chart...", "Generating bar chart..."},
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			input := resourcestest.WriteFile(t, dir, "abundance.tsv", abundance)
			out := filepath.Join(dir, "plot.png")
			def, err := plotting.Definition()
			require.NoError(t, err)

			res, err := resourcestest.Run(t, tc.line(input, out), def)
			require.NoError(t, err)
			for _, line := range tc.progress {
				assert.Contains(t, res.Stderr, line)
			}

			width, height := pngSize(t, out)
			assert.Equal(t, tc.wantWidth, width)
			assert.Equal(t, tc.wantHeight, height)
		})
	}
}

func TestPlottingErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args string
		want error
	}{
		"no arguments":  {args: "", want: plotting.ErrNoArguments},
		"short grid":    {args: "-g 2", want: plotting.ErrInvalidTuple},
		"short labels":  {args: "-L title,x", want: plotting.ErrInvalidTuple},
		"missing type":  {args: "-i data.tsv", want: plotting.ErrInvalidChoice},
		"unknown type":  {args: "-i data.tsv -t line", want: plotting.ErrInvalidChoice},
		"empty grid":    {args: "-g 0,2", want: plotting.ErrInvalidChoice},
		"cell off grid": {args: "-g 1,2 -c 1,0", want: plotting.ErrCellOutOfRange},
		"bad columns":   {args: "-C 0,1 -o x.png", want: plotting.ErrInvalidChoice},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			def, err := plotting.Definition()
			require.NoError(t, err)

			_, err = resourcestest.Run(t, "@@plotting "+tc.args, def)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadSeries(t *testing.T) {
	t.Parallel()

	path := resourcestest.WriteFile(t, t.TempDir(), "abundance.tsv", abundance)

	s, err := plotting.LoadSeries(path, 2, 3, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Escherichia coli", "Bacillus subtilis", "Homo sapiens", "Bacteria group", "Unknown"}, s.Labels)
	assert.Equal(t, []float64{40, 24, 16, 12, 8}, s.Values)

	limited := s.Limit(3)
	assert.Equal(t, []string{"Escherichia coli", "Bacillus subtilis", "Homo sapiens", "Other"}, limited.Labels)
	assert.Equal(t, []float64{40, 24, 16, 20}, limited.Values)
	assert.Equal(t, s, s.Limit(10))

	s, err = plotting.LoadSeries(path, 1, 3, true)
	require.NoError(t, err)
	assert.Equal(t, "(10.00) Escherichia coli", s.Labels[0])

	_, err = plotting.LoadSeries(path, 3, 1, false)
	assert.ErrorIs(t, err, plotting.ErrBadValue)
}
