package crossref_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins/crossref"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const idMapping = "P0A7E5\tUniProtKB-ID\tPYRG_ECOLI\n" +
	"P0A7E5\tUniRef90\tUniRef90_P0A7E5\n" +
	"P0A7E5\tGeneID\t947729\n" +
	"Q9XYZ1\tUniRef90\tUniRef90_P0A7E5\n" +
	"Q9XYZ1\tGeneID\t123\n" +
	"broken line\n"

func gzipped(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestCrossrefIndex(t *testing.T) {
	t.Parallel()

	body := gzipped(t, idMapping)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/idmapping.dat.gz" {
			http.NotFound(w, r)

			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	res := resourcestest.New(t, srv.URL)
	def, err := crossref.Definition(res)
	require.NoError(t, err)

	out, err := resourcestest.Run(t, "@@crossref", def)
	require.NoError(t, err)
	assert.Empty(t, out.Stdout)
	assert.Contains(t, out.Stderr, "Populating UniProt database cross-references...")

	idx, err := plugin.Lookup[*crossref.Index](out.Env.State, crossref.StateKey)
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := idx.Cross(ctx, "P0A7E5", "UniProtKB-ID")
	require.NoError(t, err)
	assert.Equal(t, []string{"PYRG_ECOLI"}, ids)

	refs, err := idx.All(ctx, "Q9XYZ1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []crossref.Reference{
		{DB: "UniRef90", ID: "UniRef90_P0A7E5"},
		{DB: "GeneID", ID: "123"},
	}, refs)

	accs, err := idx.Accessions(ctx, "UniRef90", "UniRef90_P0A7E5")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P0A7E5", "Q9XYZ1"}, accs)

	genes, err := idx.Translate(ctx, "UniRef90", "UniRef90_P0A7E5", "GeneID")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"947729", "123"}, genes)

	none, err := idx.Accessions(ctx, "UniRef90", "UniRef90_missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCrossrefDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	res := resourcestest.New(t, srv.URL)
	def, err := crossref.Definition(res)
	require.NoError(t, err)

	_, err = resourcestest.Run(t, "@@crossref", def)
	require.Error(t, err)
}

func TestCrossrefRejectsArguments(t *testing.T) {
	t.Parallel()

	res := resourcestest.New(t, "")
	def, err := crossref.Definition(res)
	require.NoError(t, err)

	_, err = resourcestest.Run(t, "@@crossref --unknown", def)
	require.Error(t, err)
}
