package drawer

import (
	"time"

	"github.com/askiada/paladin-plugins/pkg/pipeline/measure"
)

// Drawer renders the plugins executed by a pipeline run as a graph.
type Drawer interface {
	// AddPlugin adds a vertex for a plugin of the run.
	AddPlugin(key string) error
	// AddLink links a plugin to the one that ran before it.
	AddLink(parentKey, childKey string) error
	// AddDependencyLink links a dependency to the plugin it was initialised for.
	AddDependencyLink(dependencyKey, pluginKey string) error
	// Draw writes the graph.
	Draw() error
	// SetTotalTime labels a plugin with the time elapsed since start.
	SetTotalTime(key string, start time.Time) error
	// AddMeasure colours the plugins with the durations held by measure.
	AddMeasure(measure measure.Measure) error
}
