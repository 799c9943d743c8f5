// Package cli builds the esxigrid command tree. It merges the settings
// file, flags and ESXI_* environment into an app.Config, runs one engine
// operation per subcommand and maps failures onto process exit codes.
package cli
