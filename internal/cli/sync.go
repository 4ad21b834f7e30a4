package cli

import (
	"fmt"
	"time"

	"issuemirror/internal/flags"
	"issuemirror/internal/future"
	"issuemirror/internal/model"
	"issuemirror/internal/output"

	"github.com/spf13/cobra"
)

func addRepoFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().StringSliceVar(&a.cfg.Repos, flags.FlagRepos, nil, "Repositories as OWNER/REPO (repeatable; comma-separated accepted)")
}

func addFileOutputFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().StringVar(&a.cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	cmd.Flags().StringVar(&a.cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	cmd.Flags().StringVar(&a.cfg.Output.Report, flags.FlagReport, "", "Write a Markdown milestone report to this path")
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror repositories and report their status",
		Long: `Load the issue mirror of every repository given with --repos.

Repositories load in parallel. With --force each mirror is then rebuilt from a
full refetch instead of an incremental one. One status line is printed per
repository and operation.

Examples:
	issuemirror sync --repos octo/hello,octo/world
	issuemirror sync --repos octo/hello --force --report milestones.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync()
		},
	}
	addRepoFlags(cmd, a)
	addFileOutputFlags(cmd, a)
	cmd.Flags().BoolVar(&a.cfg.Runtime.Force, flags.FlagForce, false, "Refetch everything after loading, discarding incremental state")
	return cmd
}

func (a *app) runSync() (err error) {
	keys, err := a.cfg.RepoKeys()
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

	opens := make([]*future.Future[*model.Model], len(keys))
	for i, key := range keys {
		opens[i] = s.control.OpenRepository(s.ctx, key)
	}

	var failed int
	var loaded []*model.Model
	for i, key := range keys {
		m, err := opens[i].Wait(s.ctx)
		a.write(s.out, status(key, "open", started, m, err))
		if err != nil {
			failed++
			continue
		}
		loaded = append(loaded, m)
	}

	if a.cfg.Runtime.Force {
		loaded = a.refreshAll(s, loaded, &failed)
	}

	issues := 0
	for _, m := range loaded {
		issues += len(m.Issues)
		a.write(s.out, m)
	}

	code := exitOK
	if failed > 0 {
		code = exitPartial
	}
	a.write(s.out, output.Event{Type: output.EventRunFinished, Repos: len(keys), Issues: issues, ExitCode: code})
	if failed > 0 {
		return partial(fmt.Errorf("%d of %d repositories failed", failed, len(keys)))
	}
	return nil
}

// refreshAll force-refreshes every model in parallel and returns the
// refreshed mirrors; a repository whose refresh fails keeps its loaded model.
func (a *app) refreshAll(s *session, models []*model.Model, failed *int) []*model.Model {
	started := time.Now()
	refreshes := make([]*future.Future[*model.Model], len(models))
	for i, m := range models {
		refreshes[i] = s.control.UpdateLocalModel(s.ctx, m, true)
	}
	out := make([]*model.Model, 0, len(models))
	for i, m := range models {
		fresh, err := refreshes[i].Wait(s.ctx)
		a.write(s.out, status(m.Key, "refresh", started, fresh, err))
		if err != nil {
			*failed++
			out = append(out, m)
			continue
		}
		out = append(out, fresh)
	}
	return out
}
