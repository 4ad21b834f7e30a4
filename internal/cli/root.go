package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"issuemirror/internal/config"
	"issuemirror/internal/flags"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 3
)

// exitError carries the process exit code for a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &exitError{code: exitFatal, err: err}
}

func partial(err error) error {
	return &exitError{code: exitPartial, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	// Usage errors from cobra (unknown flags, bad args).
	return exitFatal
}

// app is the state of one invocation, shared by every subcommand.
type app struct {
	cfg        *config.Config
	configPath string
	log        *logrus.Logger
	stdout     io.Writer
	stderr     io.Writer
}

const rootLong = `issuemirror keeps a local mirror of GitHub issues, labels, milestones and
assignees for a set of repositories, and pushes issue edits back to GitHub.

Work on one repository (loading, refreshing, tearing down its mirror) runs one
operation at a time in submission order; different repositories are processed
in parallel.

Examples:
	# Mirror two repositories and print one status line per repository
	issuemirror sync --repos octo/hello,octo/world

	# List open, unassigned issues
	issuemirror issues --repos octo/hello --filter 'open && assignee == ""'

	# Close an issue and clear its milestone
	issuemirror issue edit octo/hello#12 --close --clear-milestone

	# Print build info
	issuemirror version

Authentication:
	GITHUB_TOKEN, then GH_TOKEN, then the GitHub CLI (gh auth token).

Exit codes:
	0 = success
	1 = partial failure (some repositories or edits failed)
	3 = fatal error (configuration, authentication)`

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.New(),
		log:    logrus.New(),
		stdout: stdout,
		stderr: stderr,
	}
	a.log.SetOutput(stderr)
	a.log.SetLevel(logrus.WarnLevel)

	root := &cobra.Command{
		Use:           "issuemirror",
		Short:         "Mirror GitHub issues locally and push edits back",
		Long:          rootLong,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, flags.FlagConfig, "", "YAML config file; flags given on the command line override its values")
	pf.BoolVar(&a.cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call)")
	pf.StringVar(&a.cfg.GitHub.BaseURL, flags.FlagBaseURL, "", "GitHub Enterprise Server API URL (default: api.github.com)")
	pf.StringVar(&a.cfg.GitHub.Host, flags.FlagHost, "", "Host for 'gh auth token' (default: derived from --base-url, else github.com)")
	pf.DurationVar(&a.cfg.Runtime.Timeout, flags.FlagTimeout, a.cfg.Runtime.Timeout, "Global timeout for the run")
	pf.IntVar(&a.cfg.Runtime.PerPage, flags.FlagPerPage, a.cfg.Runtime.PerPage, "GitHub page size for listings (1-100)")
	pf.StringVar(&a.cfg.Output.Format, flags.FlagFormat, "text", "Console output format: text|json|ndjson")
	pf.BoolVar(&a.cfg.Output.NoColor, flags.FlagNoColor, false, "Disable colored console output")

	root.AddCommand(
		newSyncCmd(a),
		newIssuesCmd(a),
		newIssueCmd(a),
		newRemoveCmd(a),
		newVersionCmd(),
	)
	return root
}

// prepare merges the config file, validates the result and configures logging.
func (a *app) prepare(cmd *cobra.Command) error {
	if a.configPath != "" {
		f, err := config.LoadFile(a.configPath)
		if err != nil {
			return fatal(err)
		}
		if err := a.cfg.Apply(f, cmd.Flags().Changed); err != nil {
			return fatal(err)
		}
	}
	if err := a.cfg.Validate(); err != nil {
		return fatal(err)
	}
	if a.cfg.Runtime.Verbose {
		a.log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}
