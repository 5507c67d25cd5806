package model

import "strconv"

type pluginType string

const (
	ControlPluginType    pluginType = "control"
	InvocationPluginType pluginType = "plugin"
	DependencyPluginType pluginType = "dependency"
)

// Phase is one stage of the lifecycle of a plugin.
type Phase string

const (
	ParsePhase   Phase = "parse"
	InitPhase    Phase = "init"
	MainPhase    Phase = "main"
	ControlPhase Phase = "control"
)

// PluginInfo describes one plugin as seen by a run.
type PluginInfo struct {
	Type pluginType
	// Index is the position of the invocation in the pipeline, -1 for dependencies.
	Index int
	Name  string
	Args  string
}

// Key identifies the plugin inside a run.
func (p *PluginInfo) Key() string {
	switch p.Type {
	case DependencyPluginType:
		return "init " + p.Name
	case InvocationPluginType, ControlPluginType:
		return strconv.Itoa(p.Index+1) + ". " + p.Name
	default:
		return p.Name
	}
}

var (
	Start = &PluginInfo{Name: "start", Index: -1}
	End   = &PluginInfo{Name: "end", Index: -1}
)
