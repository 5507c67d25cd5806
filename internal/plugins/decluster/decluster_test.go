package decluster_test

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/crossref"
	"github.com/askiada/paladin-plugins/internal/plugins/decluster"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	idMapping = "P0A7E5\tUniRef90\tUniRef90_P0A7E5\n" +
		"Q9XYZ1\tUniRef90\tUniRef90_P0A7E5\n" +
		"P12345\tUniRef90\tUniRef90_P12345\n" +
		"Q00000\tUniRef90\tUniRef90_Q00000\n"

	swissProt = ">sp|P0A7E5|PYRG_ECOLI CTP synthase\nMTTNYIFVTG\nGVVSSLGKGI\n" +
		">sp|P12345|OTHER_HUMAN Other protein\nMKKK\n"

	trembl = ">tr|Q9XYZ1|Q9XYZ1_BACSU CTP synthase\nMSTKY"

	uniprotReport = "Count\tAbundance\tQuality (Avg)\tQuality (Max)\tUniProtKB\tUniProt ID\tSpecies\tProtein Names\tGenes\tKEGG\tEMBL\tGO\n" +
		"10\t50\t40\t60\tPYRG_ECOLI\tP0A7E5\tEscherichia coli\tCTP synthase\tpyrG\t\t\t\n" +
		"5\t25\t40\t60\tPYRG_SALTY\tP0A7E5\tSalmonella\tCTP synthase\tpyrG\t\t\t\n" +
		"4\t20\t10\t10\tOTHER_HUMAN\tP12345\tHomo sapiens\tOther protein\t\t\t\t\n" +
		"1\t5\t40\t60\tcontig_3\n"
)

func gzipped(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func server(t *testing.T) string {
	t.Helper()

	files := map[string][]byte{
		"/idmapping.dat.gz":        gzipped(t, idMapping),
		"/uniprot_sprot.fasta.gz":  gzipped(t, swissProt),
		"/uniprot_trembl.fasta.gz": gzipped(t, trembl),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

func definitions(t *testing.T, res *resources.Resources) []*plugin.Definition {
	t.Helper()

	cross, err := crossref.Definition(res)
	require.NoError(t, err)
	decl, err := decluster.Definition(res)
	require.NoError(t, err)

	return []*plugin.Definition{cross, decl}
}

func TestDecluster(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		quality int
		want    string
	}{
		"all entries": {
			quality: 0,
			want: ">sp|P0A7E5|PYRG_ECOLI CTP synthase\nMTTNYIFVTG\nGVVSSLGKGI\n" +
				">tr|Q9XYZ1|Q9XYZ1_BACSU CTP synthase\nMSTKY\n" +
				">sp|P12345|OTHER_HUMAN Other protein\nMKKK\n",
		},
		"quality filter": {
			quality: 30,
			want: ">sp|P0A7E5|PYRG_ECOLI CTP synthase\nMTTNYIFVTG\nGVVSSLGKGI\n" +
				">tr|Q9XYZ1|Q9XYZ1_BACSU CTP synthase\nMSTKY\n",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := resourcestest.New(t, server(t))
			input := resourcestest.WriteFile(t, t.TempDir(), "sample_uniprot.tsv", uniprotReport)

			line := "@@decluster -i " + input + " -q " + strconv.Itoa(tc.quality)
			out, err := resourcestest.Run(t, line, definitions(t, res)...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Stdout)
			assert.Contains(t, out.Stderr, "Populating UniProt sequences...")
		})
	}
}

func TestDeclusterMissingSequence(t *testing.T) {
	t.Parallel()

	res := resourcestest.New(t, server(t))
	input := resourcestest.WriteFile(t, t.TempDir(), "sample_uniprot.tsv",
		"header\n3\t50\t40\t60\tMISS_ECOLI\tQ00000\tE. coli\tMissing\t\t\t\t\n")

	_, err := resourcestest.Run(t, "@@decluster -i "+input+" -q 0", definitions(t, res)...)
	require.ErrorIs(t, err, decluster.ErrSequenceNotFound)
}

func TestDeclusterArguments(t *testing.T) {
	t.Parallel()

	tcs := map[string]string{
		"missing input":   "@@decluster -q 10",
		"missing quality": "@@decluster -i report.tsv",
		"bad quality":     "@@decluster -i report.tsv -q ten",
	}

	for name, line := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := resourcestest.New(t, "")
			_, err := resourcestest.Run(t, line, definitions(t, res)...)
			require.Error(t, err)
		})
	}
}
