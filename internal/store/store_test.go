package store_test

import (
	"context"
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/store"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

func def(t *testing.T, name string) *plugin.Definition {
	t.Helper()

	d, err := plugin.New(name, "", "1.0.0", plugin.NoArgs(name, ""),
		func(context.Context, *plugin.Env, plugin.Args) error { return nil })
	require.NoError(t, err)

	return d
}

func TestDependencyStore(t *testing.T) {
	t.Parallel()

	st := store.NewDependencyStore()
	g := graph.NewWithStore(func(d *plugin.Definition) string { return d.Name() }, st,
		graph.Directed(), graph.PreventCycles())

	for _, name := range []string{"taxonomy", "difference", "crossref", "decluster"} {
		require.NoError(t, g.AddVertex(def(t, name)))
	}
	require.ErrorIs(t, g.AddVertex(def(t, "taxonomy")), graph.ErrVertexAlreadyExists)

	require.NoError(t, g.AddEdge("taxonomy", "difference"))
	require.NoError(t, g.AddEdge("crossref", "decluster"))
	require.NoError(t, g.AddEdge("crossref", "difference"))

	assert.Equal(t, []string{"crossref", "taxonomy"}, st.Requires("difference"))
	assert.Equal(t, []string{"decluster", "difference"}, st.Dependents("crossref"))

	cycle, err := st.CreatesCycle("difference", "crossref")
	require.NoError(t, err)
	assert.True(t, cycle)
	cycle, err = st.CreatesCycle("decluster", "taxonomy")
	require.NoError(t, err)
	assert.False(t, cycle)
	_, err = st.CreatesCycle("missing", "taxonomy")
	assert.ErrorIs(t, err, graph.ErrVertexNotFound)

	require.ErrorIs(t, g.AddEdge("difference", "taxonomy"), graph.ErrEdgeCreatesCycle)

	count, err := st.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	edges, err := st.ListEdges()
	require.NoError(t, err)
	assert.Len(t, edges, 3)

	require.ErrorIs(t, st.RemoveVertex("decluster"), graph.ErrVertexHasEdges)
	require.NoError(t, st.RemoveEdge("crossref", "decluster"))
	require.NoError(t, st.RemoveVertex("decluster"))
	_, _, err = st.Vertex("decluster")
	assert.ErrorIs(t, err, graph.ErrVertexNotFound)
}
