// Package main hosts the reclink CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once per invocation, builds a
// slog logger tagged with the run id, and hands the bundled linker, the
// configured model store, and an interactive console judge to the pipeline.
// Subcommands stay thin: linkage, persistence, and output formatting live in
// the internal packages.
package main
