package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/pkg/pipeline"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		line    string
		want    []pipeline.Invocation
		wantErr error
	}{
		"empty line": {
			line: "   ",
		},
		"single plugin without arguments": {
			line: "@@crossref",
			want: []pipeline.Invocation{{Name: "crossref"}},
		},
		"chained plugins": {
			line: "@@taxonomy -i report.tsv --level 2 @@flush",
			want: []pipeline.Invocation{
				{Name: "taxonomy", Args: "-i report.tsv --level 2"},
				{Name: "flush"},
			},
		},
		"marker inside a token": {
			line: "@@go -i a@@b.tsv",
			want: []pipeline.Invocation{{Name: "go", Args: "-i a@@b.tsv"}},
		},
		"quoted marker": {
			line: `@@automate -o "@@not a plugin" @@write out.txt`,
			want: []pipeline.Invocation{
				{Name: "automate", Args: `-o "@@not a plugin"`},
				{Name: "write", Args: "out.txt"},
			},
		},
		"inner whitespace kept": {
			line: "  @@aggregation -r  dir   @@flush  ",
			want: []pipeline.Invocation{
				{Name: "aggregation", Args: "-r  dir"},
				{Name: "flush"},
			},
		},
		"missing marker": {
			line:    "taxonomy @@flush",
			wantErr: pipeline.ErrMissingMarker,
		},
		"empty plugin name": {
			line:    "@@taxonomy @@ -i x",
			wantErr: pipeline.ErrEmptyPluginName,
		},
		"unbalanced quote": {
			line:    `@@taxonomy -i "report.tsv`,
			wantErr: pipeline.ErrUnbalancedQuote,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := pipeline.ParseLine(tc.line)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	tcs := map[string][]pipeline.Invocation{
		"no arguments": {{Name: "crossref"}, {Name: "flush"}},
		"with arguments": {
			{Name: "taxonomy", Args: "-i report.tsv -q 20 --level 2"},
			{Name: "difference", Args: `-b "other report.tsv" -r species`},
			{Name: "write", Args: "--append out.txt"},
		},
		"escaped quotes": {
			{Name: "automate", Args: `-o 'it''s' -p "say \"hi\""`},
		},
		"marker inside quotes": {
			{Name: "hpc", Args: `-o '@@x @@y'`},
		},
	}

	for name, invocations := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := pipeline.ParseLine(pipeline.Format(invocations))
			require.NoError(t, err)
			assert.Equal(t, invocations, got)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := pipeline.Parse([]string{"@@taxonomy", "-i", "my report.tsv", "-p", `say "hi"`, "@@write", "out.txt"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "taxonomy", got[0].Name)
	assert.Equal(t, pipeline.Invocation{Name: "write", Args: "out.txt"}, got[1])

	args, err := plugin.SplitArgs(got[0].Args)
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "my report.tsv", "-p", `say "hi"`}, args)

	_, err = pipeline.Parse([]string{"-i", "x", "@@taxonomy"})
	assert.ErrorIs(t, err, pipeline.ErrMissingMarker)
}

func TestParseShellOperators(t *testing.T) {
	t.Parallel()

	tcs := map[string][]string{
		"pipe in regex":       {"-r", "Bacill|Clostrid", "-i", "report.tsv"},
		"redirect in path":    {"-c", "OS=(.*)", "-i", "a>b.tsv"},
		"separators":          {"-o", "--sensitive;--threads 4", "-s", "a&b"},
		"input redirect":      {"-s", "<none>"},
		"shell substitutions": {"-o", "$(date)", "-p", "`id` $HOME"},
	}

	for name, argv := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			invocations, err := pipeline.Parse(append([]string{"@@taxonomy"}, argv...))
			require.NoError(t, err)
			require.Len(t, invocations, 1)

			args, err := plugin.SplitArgs(invocations[0].Args)
			require.NoError(t, err)
			assert.Equal(t, argv, args)
		})
	}
}
