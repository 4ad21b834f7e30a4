package flags

// Package flags defines canonical CLI flag names shared across the CLI and the
// config file loader. A config file value applies only when the flag of the
// same setting was not given on the command line, so both sides must agree on
// these names.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringSliceVar(&cfg.Repos, flags.FlagRepos, nil, "...")
//	if cmd.Flags().Changed(flags.FlagRepos) { ... }
const (
	// Global
	FlagConfig  = "config"
	FlagVerbose = "verbose"

	// Targeting
	FlagRepos   = "repos"
	FlagBaseURL = "base-url"
	FlagHost    = "host"

	// Output
	FlagFormat    = "format"
	FlagOut       = "out"
	FlagOutFormat = "out-format"
	FlagReport    = "report"
	FlagFilter    = "filter"
	FlagNoColor   = "no-color"

	// Runtime
	FlagTimeout = "timeout"
	FlagForce   = "force"
	FlagPerPage = "per-page"

	// Issue edits
	FlagOpen           = "open"
	FlagClose          = "close"
	FlagMilestone      = "milestone"
	FlagClearMilestone = "clear-milestone"
	FlagLabels         = "labels"
	FlagAssignee       = "assignee"
	FlagClearAssignee  = "clear-assignee"
)
