// Package cmd implements the command-line interface of smap. It provides
// commands for running a server and for working on its maps as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts and configures the smap server
//   - kv: map operations (get, put, remove, keys, entries, load, perf, ...)
//   - util: shared flag and configuration handling (internal use)
//
// See smap -help for a list of all commands.
package cmd
