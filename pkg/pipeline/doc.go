// Package pipeline runs a chain of plugins parsed from one command line.
//
// A command line is split into invocations, each starting with a token beginning with the
// marker "@@". The engine validates every invocation, then for each one parses its arguments,
// initialises the plugin and the transitive closure of its dependencies in dependency order,
// and runs it. The flush and write control plugins render the output accumulated so far.
package pipeline
