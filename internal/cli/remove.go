package cli

import (
	"errors"
	"fmt"
	"time"

	"issuemirror/internal/future"
	"issuemirror/internal/model"
	"issuemirror/internal/output"

	"github.com/spf13/cobra"
)

func newRemoveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Load and tear down repository mirrors",
		Long: `Load each repository's mirror and tear it down again, releasing the cached
repository metadata. Both steps are queued at once; the teardown always runs
after its load finishes, so a repository that cannot be loaded is reported as
failed.

Examples:
	issuemirror remove --repos octo/hello,octo/world`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRemove()
		},
	}
	addRepoFlags(cmd, a)
	return cmd
}

func (a *app) runRemove() (err error) {
	keys, err := a.cfg.RepoKeys()
	if err != nil {
		return fatal(err)
	}
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
	opens := make([]*future.Future[*model.Model], len(keys))
	removals := make([]*future.Future[bool], len(keys))
	for i, key := range keys {
		opens[i] = s.control.OpenRepository(s.ctx, key)
		removals[i] = s.control.RemoveRepository(s.ctx, key)
	}

	failed := 0
	for i, key := range keys {
		_, err := opens[i].Wait(s.ctx)
		removed := false
		if err == nil {
			removed, err = removals[i].Wait(s.ctx)
		}
		if err == nil && !removed {
			err = errors.New("repository was not removed")
		}
		st := output.RepoStatus{Repo: key.String(), Op: "remove", OK: err == nil, Elapsed: time.Since(started)}
		if err != nil {
			st.Error = err.Error()
			failed++
		}
		a.write(s.out, st)
	}
	if failed > 0 {
		return partial(fmt.Errorf("%d of %d repositories failed", failed, len(keys)))
	}
	return nil
}
