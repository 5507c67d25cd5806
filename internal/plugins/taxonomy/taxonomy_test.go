package taxonomy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const lineageTable = "Taxon Id\tMnemonic\tLineage\n" +
	"562\tECOLI\tBacteria; Proteobacteria; Gammaproteobacteria\n" +
	"1423\tBACSU\tBacteria; Firmicutes; Bacilli\n" +
	"9606\tHUMAN\tEukaryota; Metazoa; Chordata\n" +
	"1\t\tignored\n"

const reportContent = "Count\tAbundance\tQuality (Avg)\tQuality (Max)\tUniProtKB\tID\tSpecies\tProtein\tGenes\tKEGG\tEMBL\tGO\n" +
	"10\t40\t40\t60\tPYRG_ECOLI\tP1\tEscherichia coli\tCTP synthase\t\t\t\t\n" +
	"6\t24\t20\t30\tPYRG_BACSU\tP2\tBacillus subtilis\tCTP synthase\t\t\t\t\n" +
	"4\t16\t20\t30\tACTB_HUMAN\tP3\tHomo sapiens\tActin\t\t\t\t\n" +
	"3\t12\t20\t30\tRL2_9BACT\tQ1\tBacteria group\tRibosomal\t\t\t\t\n" +
	"2\t8\t20\t30\tcontig_1\n"

const samContent = "@HD\tVN:1.0\n" +
	"1:F:0:read1\t0\tPYRG_ECOLI\t1\t60\t3M\t*\t0\t0\tACG\tIII\n" +
	"1:F:0:read2\t0\tsp|P2|PYRG_BACSU\t1\t60\t3M\t*\t0\t0\tACG\tIII\n" +
	"1:F:0:read3\t0\tACTB_HUMAN\t1\t60\t3M\t*\t0\t0\tACG\tIII\n" +
	"1:F:0:read4\t4\t*\t0\t0\t*\t*\t0\t0\tACG\tIII\n"

// server serves the lineage table and counts the downloads.
func server(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/taxonomy.tsv" {
			http.NotFound(w, r)

			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(lineageTable))
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func setup(t *testing.T) (*resources.Resources, *plugin.Definition, string, string, *atomic.Int32) {
	t.Helper()

	srv, hits := server(t)
	res := resourcestest.New(t, srv.URL)
	def, err := taxonomy.Definition(res)
	require.NoError(t, err)

	dir := t.TempDir()
	reportPath := resourcestest.WriteFile(t, dir, "sample_uniprot.tsv", reportContent)
	samPath := resourcestest.WriteFile(t, dir, "sample.sam", samContent)

	return res, def, reportPath, samPath, hits
}

func TestTaxonomyReports(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args string
		want string
	}{
		"species of the whole tree": {
			args: "-l 0",
			want: "Count\tAbundance\tSpecies\n" +
				"10\t40\tEscherichia coli\n" +
				"6\t24\tBacillus subtilis\n" +
				"4\t16\tHomo sapiens\n" +
				"3\t12\tBacteria group\n" +
				"2\t8\tUnknown\n",
		},
		"species filtered": {
			args: "-l 0 -f unknown,group",
			want: "Count\tAbundance\tSpecies\n" +
				"10\t50\tEscherichia coli\n" +
				"6\t30\tBacillus subtilis\n" +
				"4\t20\tHomo sapiens\n",
		},
		"species of a rank": {
			args: "-r Firmicutes",
			want: "Count\tAbundance\tSpecies\n" +
				"6\t100\tBacillus subtilis\n",
		},
		"children of level 0": {
			args: "-t children -l 0",
			want: "Count\tAbundance\tRank 0\n" +
				"16\t80\tBacteria\n" +
				"4\t20\tEukaryota\n",
		},
		"children of level 1": {
			args: "-t children -l 1",
			want: "Count\tAbundance\tRank 1\n" +
				"10\t50\tProteobacteria\n" +
				"6\t30\tFirmicutes\n" +
				"4\t20\tMetazoa\n",
		},
		"leaves": {
			args: "-t children -l -1",
			want: "Count\tAbundance\tRank -1\n" +
				"10\t50\tGammaproteobacteria\n" +
				"6\t30\tBacilli\n" +
				"4\t20\tChordata\n",
		},
		"children of a rank": {
			args: "-t children -r ^Bact",
			want: "Count\tAbundance\tRank\n" +
				"10\t62.5\tProteobacteria\n" +
				"6\t37.5\tFirmicutes\n",
		},
		"children of a missing rank": {
			args: "-t children -r Archaea",
			want: "Count\tAbundance\tRank\n",
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, def, reportPath, _, _ := setup(t)
			res, err := resourcestest.Run(t, "@@taxonomy -i "+reportPath+" -q 0 "+tc.args, def)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Stdout)
		})
	}
}

func TestTaxonomySAM(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args string
		want string
	}{
		"species": {
			args: "-r Bacteria",
			want: "Read\tTaxonomy\nread1\tEscherichia coli\nread2\tBacillus subtilis\n",
		},
		"children": {
			args: "-t children -l 0",
			want: "Read\tTaxonomy\nread1\tBacteria\nread2\tBacteria\nread3\tEukaryota\n",
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, def, reportPath, samPath, _ := setup(t)
			res, err := resourcestest.Run(t, "@@taxonomy -i "+reportPath+" -q 0 -s "+samPath+" "+tc.args, def)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Stdout)
		})
	}
}

func TestTaxonomyInitOnceWhileFresh(t *testing.T) {
	t.Parallel()

	_, def, reportPath, _, hits := setup(t)

	res, err := resourcestest.Run(t, "@@taxonomy -i "+reportPath+" -q 0 -l 0", def)
	require.NoError(t, err)
	assert.Contains(t, res.Stderr, "Populating taxonomic lineage data...")

	res, err = resourcestest.Run(t, "@@taxonomy -i "+reportPath+" -q 0 -l 0", def)
	require.NoError(t, err)
	assert.NotContains(t, res.Stderr, "Populating")
	assert.Equal(t, int32(1), hits.Load())

	lineage, err := plugin.Lookup[taxonomy.Lineage](res.Env.State, taxonomy.StateKey)
	require.NoError(t, err)
	raw, ok, err := lineage.Lookup(context.Background(), "HUMAN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Eukaryota", "Metazoa", "Chordata"}, taxonomy.Ranks(raw))

	_, ok, err = lineage.Lookup(context.Background(), "MOUSE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTaxonomyArguments(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args string
		want error
	}{
		"level and rank": {args: "-i r.tsv -q 0 -l 1 -r Bacteria", want: taxonomy.ErrLevelOrRank},
		"neither":        {args: "-i r.tsv -q 0", want: taxonomy.ErrLevelOrRank},
		"bad type":       {args: "-i r.tsv -q 0 -l 1 -t genus", want: taxonomy.ErrInvalidChoice},
		"bad filter":     {args: "-i r.tsv -q 0 -l 1 -f weird", want: taxonomy.ErrInvalidChoice},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, def, _, _, hits := setup(t)
			_, err := resourcestest.Run(t, "@@taxonomy "+tc.args, def)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, int32(0), hits.Load())
		})
	}
}
