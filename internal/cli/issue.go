package cli

import (
	"errors"
	"fmt"
	"time"

	"issuemirror/internal/flags"
	"issuemirror/internal/future"
	"issuemirror/internal/model"
	"issuemirror/internal/output"
	"issuemirror/internal/repoop"

	"github.com/spf13/cobra"
)

// issueEdit is the set of changes requested by `issue edit`. A nil field is
// left alone.
type issueEdit struct {
	open      *bool
	milestone **int
	labels    *[]string
	assignee  **string
}

func (e issueEdit) empty() bool {
	return e.open == nil && e.milestone == nil && e.labels == nil && e.assignee == nil
}

func newIssueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Edit a single issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newIssueEditCmd(a))
	return cmd
}

func newIssueEditCmd(a *app) *cobra.Command {
	var (
		open, closeIssue, clearMilestone, clearAssignee bool
		milestone                                       int
		labels                                          []string
		assignee                                        string
	)
	cmd := &cobra.Command{
		Use:   "edit OWNER/REPO#NUMBER",
		Short: "Change an issue locally and on GitHub",
		Long: `Apply an edit to the mirrored issue, then push it to GitHub.

When GitHub rejects the edit, the repository mirror is rebuilt from a full
refetch so it matches the server again, and the command exits with code 1.

Examples:
	issuemirror issue edit octo/hello#12 --close
	issuemirror issue edit octo/hello#12 --milestone 3 --labels bug,prio.high
	issuemirror issue edit octo/hello#12 --clear-assignee --labels ''`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, number, err := model.ParseIssueRef(args[0])
			if err != nil {
				return fatal(err)
			}
			f := cmd.Flags()
			var edit issueEdit
			switch {
			case open:
				v := true
				edit.open = &v
			case closeIssue:
				v := false
				edit.open = &v
			}
			switch {
			case f.Changed(flags.FlagMilestone):
				if milestone <= 0 {
					return fatal(fmt.Errorf("--%s must be > 0 (use --%s to remove it)", flags.FlagMilestone, flags.FlagClearMilestone))
				}
				v := &milestone
				edit.milestone = &v
			case clearMilestone:
				var v *int
				edit.milestone = &v
			}
			if f.Changed(flags.FlagLabels) {
				edit.labels = &labels
			}
			switch {
			case f.Changed(flags.FlagAssignee):
				if assignee == "" {
					return fatal(fmt.Errorf("--%s must not be empty (use --%s)", flags.FlagAssignee, flags.FlagClearAssignee))
				}
				v := &assignee
				edit.assignee = &v
			case clearAssignee:
				var v *string
				edit.assignee = &v
			}
			if edit.empty() {
				return fatal(errors.New("nothing to edit: use --open/--close, --milestone/--clear-milestone, --labels, or --assignee/--clear-assignee"))
			}
			return a.runIssueEdit(key, number, edit)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&open, flags.FlagOpen, false, "Reopen the issue")
	fl.BoolVar(&closeIssue, flags.FlagClose, false, "Close the issue")
	fl.IntVar(&milestone, flags.FlagMilestone, 0, "Set the milestone by number")
	fl.BoolVar(&clearMilestone, flags.FlagClearMilestone, false, "Remove the milestone")
	fl.StringSliceVar(&labels, flags.FlagLabels, nil, "Replace all labels (comma-separated; '' removes every label)")
	fl.StringVar(&assignee, flags.FlagAssignee, "", "Set the assignee by login")
	fl.BoolVar(&clearAssignee, flags.FlagClearAssignee, false, "Remove the assignee")
	cmd.MarkFlagsMutuallyExclusive(flags.FlagOpen, flags.FlagClose)
	cmd.MarkFlagsMutuallyExclusive(flags.FlagMilestone, flags.FlagClearMilestone)
	cmd.MarkFlagsMutuallyExclusive(flags.FlagAssignee, flags.FlagClearAssignee)
	return cmd
}

func (a *app) runIssueEdit(key model.RepoKey, number int, edit issueEdit) (err error) {
	s, err := a.connect(false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = partial(closeErr)
		}
	}()

	started := time.Now()
	m, err := s.control.OpenRepository(s.ctx, key).Wait(s.ctx)
	if err != nil {
		a.write(s.out, status(key, "open", started, nil, err))
		return partial(err)
	}
	issue, ok := m.Issue(number)
	if !ok {
		return partial(fmt.Errorf("issue %s#%d not found", key, number))
	}

	a.applyLocally(s, issue, edit)
	errs := a.pushToServer(s, issue, edit)

	ref := issue.Ref()
	if len(errs) > 0 {
		pushErr := errors.Join(errs...)
		op := "edit"
		if errors.Is(pushErr, repoop.ErrEditConflict) {
			op = "conflict"
			a.log.WithField("issue", ref).Warn("issue changed on GitHub since it was mirrored; edit not applied")
		}
		a.write(s.out, output.RepoStatus{Repo: ref, Op: op, Error: pushErr.Error(), Elapsed: time.Since(started)})

		// The local edit no longer matches the server; rebuild the mirror.
		resynced, resyncErr := s.control.UpdateLocalModel(s.ctx, m, true).Wait(s.ctx)
		a.write(s.out, status(key, "resync", started, resynced, resyncErr))
		return partial(pushErr)
	}

	a.write(s.out, output.RepoStatus{Repo: ref, Op: "edit", OK: true, Elapsed: time.Since(started)})
	if cur, ok := s.control.Model(key); ok {
		if updated, ok := cur.Issue(number); ok {
			a.write(s.out, updated)
		}
	}
	return nil
}

// applyLocally edits the mirrored copy of issue. The local store updates
// synchronously, so the futures are already complete.
func (a *app) applyLocally(s *session, issue *model.Issue, edit issueEdit) {
	var results []*future.Future[*model.Issue]
	if edit.open != nil {
		results = append(results, s.control.EditIssueStateLocally(issue, *edit.open))
	}
	if edit.milestone != nil {
		results = append(results, s.control.ReplaceIssueMilestoneLocally(issue, *edit.milestone))
	}
	if edit.labels != nil {
		results = append(results, s.control.ReplaceIssueLabelsLocally(issue, *edit.labels))
	}
	if edit.assignee != nil {
		results = append(results, s.control.ReplaceIssueAssigneeLocally(issue, *edit.assignee))
	}
	for _, f := range results {
		if updated, err := f.Result(); err != nil || updated == nil {
			a.log.WithField("issue", issue.Ref()).WithError(err).Warn("local edit not applied")
		}
	}
}

// pushToServer sends every requested change to GitHub concurrently and
// returns the failures.
func (a *app) pushToServer(s *session, issue *model.Issue, edit issueEdit) []error {
	var waits []func() error
	if edit.open != nil {
		f := s.control.EditIssueStateOnServer(s.ctx, issue, *edit.open)
		waits = append(waits, func() error { _, err := f.Wait(s.ctx); return err })
	}
	if edit.milestone != nil {
		f := s.control.ReplaceIssueMilestoneOnServer(s.ctx, issue, *edit.milestone)
		waits = append(waits, func() error { _, err := f.Wait(s.ctx); return err })
	}
	if edit.labels != nil {
		f := s.control.ReplaceIssueLabelsOnServer(s.ctx, issue, *edit.labels)
		waits = append(waits, func() error { _, err := f.Wait(s.ctx); return err })
	}
	if edit.assignee != nil {
		f := s.control.ReplaceIssueAssigneeOnServer(s.ctx, issue, *edit.assignee)
		waits = append(waits, func() error { _, err := f.Wait(s.ctx); return err })
	}

	var errs []error
	for _, wait := range waits {
		if err := wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
