package measure

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

var summaryPhases = []model.Phase{model.ParsePhase, model.InitPhase, model.MainPhase, model.ControlPhase}

type pipelineMeasure struct {
	Measure
	sink output.Sink
}

func (pm *pipelineMeasure) New() error {
	return nil
}

func (pm *pipelineMeasure) PreparePlugin(_, plugin *model.PluginInfo) error {
	pm.AddMetric(plugin.Key())

	return nil
}

func (pm *pipelineMeasure) OnPhase(plugin *model.PluginInfo, phase model.Phase, duration time.Duration) error {
	pm.AddMetric(plugin.Key()).AddDuration(phase, duration)

	return nil
}

// Finish renders a timing table on the stderr stream of the sink.
func (pm *pipelineMeasure) Finish() error {
	if pm.sink == nil {
		return nil
	}

	tw := tabwriter.NewWriter(pm.sink.Writer(output.Stderr), 0, 4, 2, ' ', 0)
	_, err := fmt.Fprintln(tw, "Plugin\tParse\tInit\tMain\tControl\tTotal")
	if err != nil {
		return errors.Wrap(err, "unable to write measure header")
	}
	for _, name := range pm.Names() {
		mt := pm.GetMetric(name)
		row := name
		for _, phase := range summaryPhases {
			row += "\t" + mt.Duration(phase).String()
		}
		_, err := fmt.Fprintln(tw, row+"\t"+mt.TotalDuration().String())
		if err != nil {
			return errors.Wrap(err, "unable to write measure row")
		}
	}

	return errors.Wrap(tw.Flush(), "unable to flush measure table")
}

// PipelineMeasure records the phase durations of every plugin in measure. When sink is not
// nil, a summary table is sent to its stderr stream once the run finished.
func PipelineMeasure(measure Measure, sink output.Sink) model.PipelineOption {
	return &pipelineMeasure{measure, sink}
}
