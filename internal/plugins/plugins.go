// Package plugins registers the bundled plugins.
package plugins

import (
	"github.com/askiada/paladin-plugins/internal/plugins/aggregation"
	"github.com/askiada/paladin-plugins/internal/plugins/automate"
	"github.com/askiada/paladin-plugins/internal/plugins/crossref"
	"github.com/askiada/paladin-plugins/internal/plugins/decluster"
	"github.com/askiada/paladin-plugins/internal/plugins/difference"
	"github.com/askiada/paladin-plugins/internal/plugins/hpc"
	"github.com/askiada/paladin-plugins/internal/plugins/ontology"
	"github.com/askiada/paladin-plugins/internal/plugins/pathways"
	"github.com/askiada/paladin-plugins/internal/plugins/plotting"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/internal/plugins/uniprot"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

// NewRegistry builds every bundled plugin on top of res.
func NewRegistry(res *resources.Resources) (*plugin.Registry, error) {
	err := res.Validate()
	if err != nil {
		return nil, err
	}

	builders := []func() (*plugin.Definition, error){
		func() (*plugin.Definition, error) { return aggregation.Definition(res.Config.Aligner.Workers) },
		func() (*plugin.Definition, error) { return automate.Definition(res) },
		func() (*plugin.Definition, error) { return crossref.Definition(res) },
		func() (*plugin.Definition, error) { return decluster.Definition(res) },
		func() (*plugin.Definition, error) { return difference.Definition(res) },
		func() (*plugin.Definition, error) { return hpc.Definition(res) },
		func() (*plugin.Definition, error) { return ontology.Definition(res.Reports) },
		func() (*plugin.Definition, error) { return pathways.Definition(res) },
		plotting.Definition,
		func() (*plugin.Definition, error) { return taxonomy.Definition(res) },
		func() (*plugin.Definition, error) { return uniprot.Definition(res) },
	}

	defs := make([]*plugin.Definition, 0, len(builders))
	for _, build := range builders {
		def, err := build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return plugin.NewRegistry(defs...)
}
