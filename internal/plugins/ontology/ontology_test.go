package ontology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/ontology"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/internal/report"
)

const reportContent = "Count\tAbundance\tQuality (Avg)\tQuality (Max)\tUniProtKB\tID\tSpecies\tProtein\tGenes\tKEGG\tEMBL\tGO\n" +
	"10\t50\t40\t60\tPYRG_ECOLI\tP1\tE. coli\tCTP synthase\tpyrG\t\t\tcytosol [GO:0005829]; ATP binding [GO:0005524]\n" +
	"6\t30\t20\t30\tPYRG_BACSU\tP2\tB. subtilis\tCTP synthase\tpyrG\t\t\tATP binding [GO:0005524]\n" +
	"4\t20\t10\t10\tRL2_9BACT\tQ1\tBacteria\tRibosomal\trplB\t\t\tribosome [GO:0005840]\n" +
	"2\t10\t10\t60\tcontig_1\n"

func TestAggregate(t *testing.T) {
	t.Parallel()

	path := resourcestest.WriteFile(t, t.TempDir(), "sample_uniprot.tsv", reportContent)
	rep, err := report.LoadReport(path, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, []ontology.TermCount{
		{Term: "ATP binding [GO:0005524]", Count: 16},
		{Term: "cytosol [GO:0005829]", Count: 10},
		{Term: "ribosome [GO:0005840]", Count: 4},
	}, ontology.Aggregate(rep))
}

func TestOntologyPlugin(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		quality string
		want    string
	}{
		"all entries": {
			quality: "0",
			want:    "ATP binding [GO:0005524]\t16\ncytosol [GO:0005829]\t10\nribosome [GO:0005840]\t4\n",
		},
		"quality filter": {
			quality: "30",
			want:    "ATP binding [GO:0005524]\t16\ncytosol [GO:0005829]\t10\n",
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := resourcestest.WriteFile(t, t.TempDir(), "sample_uniprot.tsv", reportContent)
			def, err := ontology.Definition(report.NewCache())
			require.NoError(t, err)

			res, err := resourcestest.Run(t, "@@go -i "+path+" -q "+tc.quality, def)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Stdout)
		})
	}
}

func TestOntologyMissingQuality(t *testing.T) {
	t.Parallel()

	def, err := ontology.Definition(report.NewCache())
	require.NoError(t, err)

	_, err = resourcestest.Run(t, "@@go -i report.tsv", def)
	require.Error(t, err)
}
