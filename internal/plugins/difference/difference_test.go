package difference_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/difference"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const lineageTable = "Taxon Id\tMnemonic\tLineage\n" +
	"562\tECOLI\tBacteria; Proteobacteria; Gammaproteobacteria\n" +
	"1423\tBACSU\tBacteria; Firmicutes; Bacilli\n"

const uniprotReport = "Count\tAbundance\tQuality (Avg)\tQuality (Max)\tUniProtKB\tID\tSpecies\tProtein\tGenes\tKEGG\tEMBL\tGO\n" +
	"5\t50\t40\t60\tPYRG_ECOLI\tP1\tEscherichia coli\tCTP synthase\t\t\t\t\n" +
	"5\t50\t40\t60\tPYRG_BACSU\tP2\tBacillus subtilis\tCTP synthase\t\t\t\t\n"

func sam(lines ...string) string {
	content := "@HD\tVN:1.0\n"
	for _, line := range lines {
		content += line + "\n"
	}

	return content
}

func mapped(read, reference string) string {
	return read + "\t0\t" + reference + "\t1\t60\t3M\t*\t0\t0\tACG\tIII"
}

func unmappedRead(read string) string {
	return read + "\t4\t*\t0\t0\t*\t*\t0\t0\tACG\tIII"
}

type fixture struct {
	defs    []*plugin.Definition
	basis   string
	compare string
}

func setup(t *testing.T, basisSAM, compareSAM string) fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(lineageTable))
	}))
	t.Cleanup(srv.Close)

	res := resourcestest.New(t, srv.URL)
	tax, err := taxonomy.Definition(res)
	require.NoError(t, err)
	diff, err := difference.Definition(res)
	require.NoError(t, err)

	dir := t.TempDir()
	files := func(prefix, taxonomyReport, samContent string) string {
		return resourcestest.WriteFile(t, dir, prefix+"_taxonomy.tsv", taxonomyReport) + "," +
			resourcestest.WriteFile(t, dir, prefix+".sam", samContent) + "," +
			resourcestest.WriteFile(t, dir, prefix+"_uniprot.tsv", uniprotReport)
	}

	return fixture{
		defs: []*plugin.Definition{tax, diff},
		basis: files("basis", "Count\tAbundance\tSpecies\n5\t50\tEscherichia coli\n5\t50\tBacillus subtilis\n",
			basisSAM),
		compare: files("compare", "Count\tAbundance\tSpecies\n7\t70\tEscherichia coli\n3\t30\tBacillus subtilis\n",
			compareSAM),
	}
}

func TestDifferenceSimple(t *testing.T) {
	t.Parallel()

	f := setup(t, sam(), sam())
	res, err := resourcestest.Run(t, "@@difference -s -1 "+f.basis+" -2 "+f.compare, f.defs...)
	require.NoError(t, err)
	assert.Equal(t, "Taxon\tDifference\nEscherichia coli\t0.2\nBacillus subtilis\t-0.2\n", res.Stdout)
	assert.Contains(t, res.Stderr, "Comparing taxonomy reports...")
}

func TestDifferenceContributions(t *testing.T) {
	t.Parallel()

	f := setup(t,
		sam(mapped("read1", "PYRG_BACSU"), mapped("read2", "sp|P2|PYRG_BACSU")),
		sam(mapped("read1", "PYRG_ECOLI"), mapped("read2", "PYRG_ECOLI")),
	)
	res, err := resourcestest.Run(t, "@@difference -1 "+f.basis+" -2 "+f.compare, f.defs...)
	require.NoError(t, err)
	assert.Equal(t, "Taxon\tDifference\tContributor\tContribution (Pos)\tContribution (Neg)\n"+
		"Escherichia coli\t0.2\tBacillus subtilis\t0\t-0.2\n"+
		"Bacillus subtilis\t-0.2\tEscherichia coli\t0.2\t0\n", res.Stdout)
}

func TestDifferenceUnmapped(t *testing.T) {
	t.Parallel()

	f := setup(t,
		sam(mapped("read1", "PYRG_BACSU"), mapped("read2", "PYRG_BACSU"), mapped("read3", "PYRG_ECOLI")),
		sam(mapped("read1", "PYRG_ECOLI"), mapped("read2", "PYRG_ECOLI"), unmappedRead("read3")),
	)
	res, err := resourcestest.Run(t, "@@difference -1 "+f.basis+" -2 "+f.compare, f.defs...)
	require.NoError(t, err)

	two, one := report.FormatFloat(2.0/11), report.FormatFloat(1.0/11)
	minusTwo, minusOne := report.FormatFloat(-2.0/11), report.FormatFloat(-1.0/11)
	assert.Equal(t, "Taxon\tDifference\tContributor\tContribution (Pos)\tContribution (Neg)\n"+
		"Escherichia coli\t"+two+"\tBacillus subtilis\t0\t"+minusTwo+"\n"+
		"Escherichia coli\t"+two+"\tUnmapped\t"+one+"\t0\n"+
		"Bacillus subtilis\t"+minusTwo+"\tEscherichia coli\t"+two+"\t0\n"+
		"Unmapped\t"+one+"\tEscherichia coli\t0\t"+minusOne+"\n", res.Stdout)
}

func TestDifferenceArguments(t *testing.T) {
	t.Parallel()

	f := setup(t, sam(), sam())
	_, err := resourcestest.Run(t, "@@difference -1 a,b -2 "+f.compare, f.defs...)
	require.ErrorIs(t, err, difference.ErrFileCount)

	_, err = resourcestest.Run(t, "@@difference -1 "+f.basis, f.defs...)
	require.Error(t, err)
}
