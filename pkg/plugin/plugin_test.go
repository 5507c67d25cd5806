package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

func noopParse(string, *plugin.Env) (plugin.Args, error) { return nil, nil }

func noopMain(context.Context, *plugin.Env, plugin.Args) error { return nil }

func TestNew(t *testing.T) {
	t.Parallel()

	def, err := plugin.New("taxonomy", "Taxonomic grouping", "1.1.3", noopParse, noopMain,
		plugin.WithDependencies("crossref"),
		plugin.WithInit(func(context.Context, *plugin.Env) error { return nil }),
	)
	require.NoError(t, err)
	assert.Equal(t, "taxonomy", def.Name())
	assert.Equal(t, "Taxonomic grouping", def.Description())
	assert.Equal(t, "1.1.3", def.VersionString())
	assert.Equal(t, []string{"crossref"}, def.Dependencies())
	assert.True(t, def.HasInit())

	deps := def.Dependencies()
	deps[0] = "mutated"
	assert.Equal(t, []string{"crossref"}, def.Dependencies())
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		name    string
		version string
		parse   plugin.ParseFunc
		main    plugin.MainFunc
		opts    []plugin.Option
		want    error
	}{
		"empty name":      {name: "", version: "1.0.0", parse: noopParse, main: noopMain, want: plugin.ErrNameMustBeSet},
		"space in name":   {name: "a b", version: "1.0.0", parse: noopParse, main: noopMain, want: plugin.ErrInvalidName},
		"marker in name":  {name: "a@@b", version: "1.0.0", parse: noopParse, main: noopMain, want: plugin.ErrInvalidName},
		"reserved flush":  {name: "flush", version: "1.0.0", parse: noopParse, main: noopMain, want: plugin.ErrReservedName},
		"reserved write":  {name: "write", version: "1.0.0", parse: noopParse, main: noopMain, want: plugin.ErrReservedName},
		"two segments":    {name: "a", version: "1.0", parse: noopParse, main: noopMain, want: plugin.ErrInvalidVersion},
		"prerelease":      {name: "a", version: "1.0.0-beta", parse: noopParse, main: noopMain, want: plugin.ErrInvalidVersion},
		"garbage version": {name: "a", version: "x", parse: noopParse, main: noopMain, want: plugin.ErrInvalidVersion},
		"nil parse":       {name: "a", version: "1.0.0", main: noopMain, want: plugin.ErrParseMustBeSet},
		"nil main":        {name: "a", version: "1.0.0", parse: noopParse, want: plugin.ErrMainMustBeSet},
		"self dependency": {
			name: "a", version: "1.0.0", parse: noopParse, main: noopMain,
			opts: []plugin.Option{plugin.WithDependencies("a")}, want: plugin.ErrSelfDependency,
		},
		"duplicate dependency": {
			name: "a", version: "1.0.0", parse: noopParse, main: noopMain,
			opts: []plugin.Option{plugin.WithDependencies("b", "b")}, want: plugin.ErrDuplicateDependency,
		},
		"reserved dependency": {
			name: "a", version: "1.0.0", parse: noopParse, main: noopMain,
			opts: []plugin.Option{plugin.WithDependencies("flush")}, want: plugin.ErrReservedName,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := plugin.New(tc.name, "", tc.version, tc.parse, tc.main, tc.opts...)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	b, err := plugin.New("b", "", "1.0.0", noopParse, noopMain)
	require.NoError(t, err)
	a, err := plugin.New("a", "", "1.0.0", noopParse, noopMain)
	require.NoError(t, err)

	reg, err := plugin.NewRegistry(b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, []*plugin.Definition{a, b}, reg.Definitions())
	assert.True(t, reg.Has("a"))

	got, err := reg.Get("b")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = reg.Get("c")
	assert.ErrorIs(t, err, plugin.ErrNotRegistered)

	err = reg.Register(a)
	assert.ErrorIs(t, err, plugin.ErrAlreadyRegistered)
}

func TestState(t *testing.T) {
	t.Parallel()

	state := plugin.NewState()
	state.Set("count", 3)

	got, err := plugin.Lookup[int](state, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	_, err = plugin.Lookup[string](state, "count")
	assert.ErrorIs(t, err, plugin.ErrStateType)

	_, err = plugin.Lookup[int](state, "missing")
	assert.ErrorIs(t, err, plugin.ErrStateNotFound)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))
	fs := plugin.NewFlagSet("demo", "Demo plugin")
	input := fs.StringP("input", "i", "", "input file")
	quality := fs.IntP("quality", "q", 0, "minimum quality")

	err := plugin.ParseFlags(fs, `-i "my file.tsv" -q 20 extra`, router)
	require.NoError(t, err)
	assert.Equal(t, "my file.tsv", *input)
	assert.Equal(t, 20, *quality)
	assert.Equal(t, []string{"extra"}, fs.Args())
	require.NoError(t, plugin.RequireFlags(fs, "input", "quality"))
}

func TestParseFlagsHelp(t *testing.T) {
	t.Parallel()

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))
	fs := plugin.NewFlagSet("demo", "Demo plugin")
	fs.StringP("input", "i", "", "input file")

	err := plugin.ParseFlags(fs, "-h", router)
	require.ErrorIs(t, err, plugin.ErrHelp)
	assert.Contains(t, router.Pending(output.Stderr), "usage: @@demo")
	assert.Contains(t, router.Pending(output.Stderr), "input file")
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))

	fs := plugin.NewFlagSet("demo", "Demo plugin")
	err := plugin.ParseFlags(fs, "--unknown", router)
	assert.Error(t, err)

	fs = plugin.NewFlagSet("demo", "Demo plugin")
	err = plugin.ParseFlags(fs, `"unterminated`, router)
	assert.Error(t, err)

	fs = plugin.NewFlagSet("demo", "Demo plugin")
	fs.String("input", "", "input")
	require.NoError(t, plugin.ParseFlags(fs, "", router))
	assert.Error(t, plugin.RequireFlags(fs, "input"))
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		raw     string
		want    []string
		wantErr error
	}{
		"quoted operators": {
			raw:  `-c "OS=(.*)" -i 'a>b.tsv' -r "Bacill|Clostrid"`,
			want: []string{"-c", "OS=(.*)", "-i", "a>b.tsv", "-r", "Bacill|Clostrid"},
		},
		"unquoted redirect": {
			raw:     `-c "OS=(.*)" -i a>b.tsv`,
			wantErr: plugin.ErrUnquotedOperator,
		},
		"unquoted pipe": {
			raw:     "-r Bacill|Clostrid -i report.tsv",
			wantErr: plugin.ErrUnquotedOperator,
		},
		"unquoted separator": {
			raw:     "-i report.tsv; -q 20",
			wantErr: plugin.ErrUnquotedOperator,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := plugin.SplitArgs(tc.raw)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, got)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNoArgs(t *testing.T) {
	t.Parallel()

	env := plugin.NewEnv(output.NewRouter(output.RouterConsole(output.Stderr, nil)), nil)
	parse := plugin.NoArgs("crossref", "Cross references")

	_, err := parse("", env)
	require.NoError(t, err)

	_, err = parse("--help", env)
	assert.ErrorIs(t, err, plugin.ErrHelp)
}

func TestEnvFor(t *testing.T) {
	t.Parallel()

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))
	env := plugin.NewEnv(router, nil)
	scoped := env.For("go")
	scoped.Send("result")
	scoped.Progress("working")

	assert.Same(t, env.State, scoped.State)
	assert.Equal(t, "result\n", router.Pending(output.Stdout))
	assert.Equal(t, "working\n", router.Pending(output.Stderr))
}
