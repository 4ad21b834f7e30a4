package repoio

import (
	"sync"

	"issuemirror/internal/model"

	"github.com/google/go-github/v81/github"
)

// repoCache remembers the repository metadata resolved when a repository was
// opened, keyed by normalized repository key.
type repoCache struct {
	data sync.Map
}

func (c *repoCache) Get(key model.RepoKey) (*github.Repository, bool) {
	v, ok := c.data.Load(key.Normalized())
	if !ok {
		return nil, false
	}
	return v.(*github.Repository), true
}

func (c *repoCache) Set(key model.RepoKey, repo *github.Repository) {
	c.data.Store(key.Normalized(), repo)
}

// Forget drops key and reports whether it was cached.
func (c *repoCache) Forget(key model.RepoKey) bool {
	_, ok := c.data.LoadAndDelete(key.Normalized())
	return ok
}
