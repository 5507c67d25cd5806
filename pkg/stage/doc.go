// Package stage runs small channel based dataflows inside a plugin.
//
// A dataflow starts with a root step producing values, continues with steps transforming
// each value (optionally with several goroutines) and ends with sinks consuming them. Values
// travel through unbuffered channels, so stages run concurrently without extra
// synchronisation.
//
// The first error stops the dataflow: the shared context is cancelled, every stage drains and
// Run returns that error decorated with the name of the stage it came from.
package stage
