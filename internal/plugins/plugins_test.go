package plugins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/plugins"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/resources/resourcestest"
	"github.com/askiada/paladin-plugins/pkg/pipeline"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg, err := plugins.NewRegistry(resourcestest.New(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"aggregation", "automate", "crossref", "decluster", "difference", "go", "hpc", "pathways", "plotting",
		"taxonomy", "uniprot",
	}, reg.Names())

	versions := make(map[string]string)
	for _, def := range reg.Definitions() {
		versions[def.Name()] = def.VersionString()
	}
	assert.Equal(t, "1.1.3", versions["taxonomy"])
	assert.Equal(t, "1.0.1", versions["uniprot"])
	assert.Equal(t, "1.0.0", versions["pathways"])

	resolver, err := pipeline.Resolve(reg)
	require.NoError(t, err)
	order, err := resolver.LoadOrder("decluster", "difference", "hpc", "pathways")
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "crossref"), indexOf(order, "decluster"))
	assert.Less(t, indexOf(order, "taxonomy"), indexOf(order, "difference"))
	assert.Less(t, indexOf(order, "aggregation"), indexOf(order, "hpc"))
	assert.Less(t, indexOf(order, "taxonomy"), indexOf(order, "pathways"))
}

func TestNewRegistryMissingResources(t *testing.T) {
	t.Parallel()

	res := resourcestest.New(t, "")
	res.Aligner = nil
	_, err := plugins.NewRegistry(res)
	require.ErrorIs(t, err, resources.ErrMissingResource)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}

	return -1
}
