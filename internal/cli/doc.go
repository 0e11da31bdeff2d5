// Package cli defines the lookout command tree. The root command starts the
// terminal UI; subcommands expose the same guarded operations for scripts.
package cli
