// Package main hosts the albumvideo CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into render
// submissions, status inspection, diagnostics collection, and configuration
// scaffolding. It centralizes configuration resolution and stack wiring so
// subcommands can focus on user experience instead of plumbing.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
