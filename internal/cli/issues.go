package cli

import (
	"time"

	"issuemirror/internal/filter"
	"issuemirror/internal/flags"
	"issuemirror/internal/output"

	"github.com/spf13/cobra"
)

func newIssuesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List mirrored issues",
		Long: `Load the given repositories and list their issues.

--filter selects issues with a boolean expression over: repo, number, title,
open, labels, milestone (0 when none), assignee ("" when none) and updated.
hasGroup(labels, "prio") tests for a label of a group.

Examples:
	issuemirror issues --repos octo/hello
	issuemirror issues --repos octo/hello --filter 'open && "bug" in labels'
	issuemirror issues --repos octo/hello --format ndjson --out issues.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIssues()
		},
	}
	addRepoFlags(cmd, a)
	addFileOutputFlags(cmd, a)
	cmd.Flags().StringVar(&a.cfg.Output.Filter, flags.FlagFilter, "", "Issue filter expression (empty = all issues)")
	return cmd
}

func (a *app) runIssues() (err error) {
	keys, err := a.cfg.RepoKeys()
	if err != nil {
		return fatal(err)
	}
	f, err := filter.Compile(a.cfg.Output.Filter)
	if err != nil {
		return fatal(err)
	}
	s, err := a.connect(true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = partial(closeErr)
		}
	}()

	a.write(s.out, output.Event{Type: output.EventRunStarted, Repos: len(keys)})
	started := time.Now()

	// All repositories must load before anything is listed.
	models, err := s.control.OpenRepositories(s.ctx, keys).Wait(s.ctx)
	if err != nil {
		a.write(s.out, output.Event{Type: output.EventRunFinished, Repos: len(keys), ExitCode: exitPartial})
		return partial(err)
	}

	listed := 0
	for _, m := range models {
		a.write(s.out, status(m.Key, "open", started, m, nil))
		issues, err := f.Apply(m.Issues)
		if err != nil {
			return fatal(err)
		}
		for _, issue := range issues {
			a.write(s.out, issue)
		}
		listed += len(issues)
		a.write(s.out, m)
	}
	a.write(s.out, output.Event{Type: output.EventRunFinished, Repos: len(keys), Issues: listed})
	return nil
}
