package measure

import (
	"time"

	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
)

// Measure collects one metric per plugin of a run.
type Measure interface {
	AddMetric(name string) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
	// Names returns the metric names in the order they were added.
	Names() []string
}

// Metric accumulates the durations of the phases of one plugin.
type Metric interface {
	AddDuration(phase model.Phase, elapsed time.Duration)
	Duration(phase model.Phase) time.Duration
	Calls(phase model.Phase) int
	TotalDuration() time.Duration
}
