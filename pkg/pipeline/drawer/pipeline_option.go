package drawer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/pkg/pipeline/measure"
	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m         measure.Measure
	startTime time.Time
	last      *model.PluginInfo
}

func (pd *pipelineDrawer) New() error {
	pd.startTime = time.Now()
	pd.last = model.Start

	err := pd.AddPlugin(model.Start.Key())
	if err != nil {
		return errors.Wrap(err, "unable to add start plugin to drawer")
	}
	err = pd.AddPlugin(model.End.Key())
	if err != nil {
		return errors.Wrap(err, "unable to add end plugin to drawer")
	}

	return nil
}

func (pd *pipelineDrawer) PreparePlugin(parent, plugin *model.PluginInfo) error {
	err := pd.AddPlugin(plugin.Key())
	if err != nil {
		return err
	}

	if plugin.Type == model.DependencyPluginType {
		return pd.AddDependencyLink(plugin.Key(), parent.Key())
	}

	err = pd.AddLink(parent.Key(), plugin.Key())
	if err != nil {
		return err
	}
	pd.last = plugin

	return nil
}

func (pd *pipelineDrawer) OnPhase(*model.PluginInfo, model.Phase, time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) Finish() error {
	err := pd.AddLink(pd.last.Key(), model.End.Key())
	if err != nil {
		return err
	}

	if pd.m != nil {
		err := pd.SetTotalTime(model.End.Key(), pd.startTime)
		if err != nil {
			return errors.Wrap(err, "unable to set total time")
		}
		err = pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the run with drawer once it finished. measure may be nil.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure}
}
