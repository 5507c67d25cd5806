// Package plugin defines the contract every pipeline plugin implements.
//
// A plugin is described by an immutable Definition built with New: a unique name used as its
// invocation token, a description, a three part version, the names of the plugins it depends
// on, and three callbacks. The parse callback turns the raw argument substring that follows
// the plugin token into a value, the optional init callback prepares shared resources once per
// run, and the main callback does the work.
//
// Callbacks receive an Env carrying the output sink, a logger and the state shared between
// plugins. Plugins must never print to the process streams directly: everything goes through
// Env.Out so that the pipeline can buffer, persist or discard it.
package plugin
