package model

import "time"

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error
	// PreparePlugin runs before a plugin of the run is executed. parent is the invocation that
	// ran before it, or the dependency being initialised on its behalf.
	PreparePlugin(parent, plugin *PluginInfo) error
	// OnPhase runs every time a phase of a plugin completed.
	OnPhase(plugin *PluginInfo, phase Phase, duration time.Duration) error
	// Finish runs after the pipeline is finished.
	Finish() error
}
