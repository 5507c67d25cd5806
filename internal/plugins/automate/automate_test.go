package automate_test

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/aligner"
	"github.com/askiada/paladin-plugins/internal/plugins/automate"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
)

func readsTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run2"), 0o755))
	resourcestest.WriteFile(t, root, "s1.fastq.gz", "@r1\nACGT\n+\nIIII\n")
	resourcestest.WriteFile(t, root, "notes.txt", "not reads\n")
	resourcestest.WriteFile(t, filepath.Join(root, "run2"), "s2.fastq", "@r2\nACGT\n+\nIIII\n")

	return root
}

func TestFindJobs(t *testing.T) {
	t.Parallel()

	root := readsTree(t)
	jobs, err := automate.FindJobs("ref.fasta", root, regexp.MustCompile(`\.fastq`), []string{"-t", "2"})
	require.NoError(t, err)
	assert.Equal(t, []aligner.Job{
		{Reference: "ref.fasta", Input: filepath.Join(root, "run2", "s2.fastq"), Output: filepath.Join(root, "run2", "s2"), Options: []string{"-t", "2"}},
		{Reference: "ref.fasta", Input: filepath.Join(root, "s1.fastq.gz"), Output: filepath.Join(root, "s1"), Options: []string{"-t", "2"}},
	}, jobs)

	_, err = automate.FindJobs("ref.fasta", filepath.Join(root, "absent"), regexp.MustCompile("."), nil)
	require.Error(t, err)
}

func TestAutomate(t *testing.T) {
	t.Parallel()

	root := readsTree(t)
	res := resourcestest.New(t, "")
	fake := &resourcestest.Aligner{}
	res.Aligner = fake
	def, err := automate.Definition(res)
	require.NoError(t, err)

	out, err := resourcestest.Run(t, "@@automate -w 2 ref.fasta "+root+` 's[0-9]\.fastq' -t 4 -f`, def)
	require.NoError(t, err)
	assert.Contains(t, out.Stderr, "Aligning "+filepath.Join(root, "s1.fastq.gz")+"...")

	calls := fake.Recorded()
	sort.Slice(calls, func(i, j int) bool { return calls[i].Input < calls[j].Input })
	assert.Equal(t, []resourcestest.Alignment{
		{Reference: "ref.fasta", Input: filepath.Join(root, "run2", "s2.fastq"), Output: filepath.Join(root, "run2", "s2"), Options: []string{"-t", "4", "-f"}},
		{Reference: "ref.fasta", Input: filepath.Join(root, "s1.fastq.gz"), Output: filepath.Join(root, "s1"), Options: []string{"-t", "4", "-f"}},
	}, calls)
}

func TestAutomateAlignFailure(t *testing.T) {
	t.Parallel()

	root := readsTree(t)
	res := resourcestest.New(t, "")
	res.Aligner = &resourcestest.Aligner{Err: aligner.ErrAlignFailed}
	def, err := automate.Definition(res)
	require.NoError(t, err)

	_, err = resourcestest.Run(t, "@@automate ref.fasta "+root+" fastq", def)
	require.ErrorIs(t, err, aligner.ErrAlignFailed)
}

func TestAutomateArguments(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		line string
		want error
	}{
		"no positional":   {line: "@@automate", want: automate.ErrMissingPositional},
		"missing pattern": {line: "@@automate ref.fasta reads", want: automate.ErrMissingPositional},
		"bad pattern":     {line: "@@automate ref.fasta reads ["},
		"zero workers":    {line: "@@automate -w 0 ref.fasta reads fq"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := resourcestest.New(t, "")
			def, err := automate.Definition(res)
			require.NoError(t, err)

			_, err = resourcestest.Run(t, tc.line, def)
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}
