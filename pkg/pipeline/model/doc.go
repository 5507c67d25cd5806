// Package model provides the data structures shared by the pipeline engine and its options.
// It defines how a plugin invocation is described to the options observing a run.
package model
