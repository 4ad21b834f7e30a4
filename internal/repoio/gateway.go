// Package repoio is the GitHub side of the repository mirror: it loads issues,
// labels, milestones and assignable users, and pushes single-issue edits.
package repoio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "issuemirror/internal/github"
	"issuemirror/internal/model"
	"issuemirror/internal/repoop"

	"github.com/google/go-github/v81/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultPerPage = 100

// Gateway implements the remote side of the repository coordinator over the
// GitHub REST API. Its methods block; callers provide the asynchrony.
type Gateway struct {
	client  *gh.Client
	budget  *Budget
	repos   repoCache
	flight  singleflight.Group
	log     logrus.FieldLogger
	now     func() time.Time
	perPage int
}

type Option func(*Gateway)

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithBudget shares one rate limit budget between gateways using the same token.
func WithBudget(b *Budget) Option {
	return func(g *Gateway) {
		if b != nil {
			g.budget = b
		}
	}
}

func WithPerPage(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.perPage = n
		}
	}
}

func NewGateway(client *gh.Client, opts ...Option) (*Gateway, error) {
	if client == nil || client.Client == nil {
		return nil, errors.New("repoio: nil GitHub client")
	}
	g := &Gateway{
		client:  client,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		perPage: defaultPerPage,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(g)
		}
	}
	if g.budget == nil {
		g.budget = NewBudget(g.log)
	}
	return g, nil
}

func (g *Gateway) Budget() *Budget {
	return g.budget
}

// OpenRepository resolves the repository and loads its full mirror.
func (g *Gateway) OpenRepository(ctx context.Context, key model.RepoKey) (*model.Model, error) {
	if ctx == nil {
		return nil, errors.New("OpenRepository: nil context")
	}
	if _, err := g.resolve(ctx, key); err != nil {
		return nil, err
	}
	m := model.NewModel(key)
	u, err := g.fetch(ctx, m, true)
	if err != nil {
		return nil, err
	}
	return m.ApplyUpdates(u), nil
}

// UpdateModel fetches what changed since m was last fetched. Issues are
// requested incrementally unless forced or m was never fetched; labels,
// milestones and users are listed in full and flagged NotModified when their
// ETag matches m's.
func (g *Gateway) UpdateModel(ctx context.Context, m *model.Model, forced bool) (*model.Updates, error) {
	if ctx == nil {
		return nil, errors.New("UpdateModel: nil context")
	}
	if m == nil {
		return nil, errors.New("UpdateModel: nil model")
	}
	if _, err := g.resolve(ctx, m.Key); err != nil {
		return nil, err
	}
	return g.fetch(ctx, m, forced)
}

// RemoveRepository forgets the cached repository metadata. The mirror itself
// lives in the store, so there is nothing to tear down remotely.
func (g *Gateway) RemoveRepository(ctx context.Context, key model.RepoKey) (bool, error) {
	if ctx == nil {
		return false, errors.New("RemoveRepository: nil context")
	}
	if g.repos.Forget(key) {
		g.log.WithField("repo", key).Debug("forgot repository metadata")
	}
	return true, nil
}

// resolve returns the repository's metadata, fetching it once per key.
func (g *Gateway) resolve(ctx context.Context, key model.RepoKey) (*github.Repository, error) {
	if _, err := model.ParseRepoKey(string(key)); err != nil {
		return nil, err
	}
	if repo, ok := g.repos.Get(key); ok {
		return repo, nil
	}
	repo, err := dedupe(ctx, g, "repo:"+key.Normalized(), func(ctx context.Context) (*github.Repository, error) {
		if err := g.budget.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		repo, resp, err := g.client.Client.Repositories.Get(ctx, key.Owner(), key.Name())
		if resp != nil {
			g.budget.Observe(resp.Response)
		}
		if err != nil {
			return nil, fmt.Errorf("get repository %s: %w", key, err)
		}
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	if !repo.GetHasIssues() {
		return nil, fmt.Errorf("repository %s has issues disabled", key)
	}
	g.repos.Set(key, repo)
	return repo, nil
}

func (g *Gateway) fetch(ctx context.Context, m *model.Model, forced bool) (*model.Updates, error) {
	key := m.Key
	owner, name := key.Owner(), key.Name()
	started := g.now()

	var since time.Time
	if !forced && m.Fetched() {
		since = m.Freshness.UpdatedAt
	}
	log := g.log.WithFields(logrus.Fields{"repo": key, "incremental": !since.IsZero()})
	log.Debug("fetching repository")

	var (
		issues     []*github.Issue
		labels     []*github.Label
		milestones []*github.Milestone
		users      []*github.User
		headers    [4]http.Header
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		issues, headers[0], err = paginate(ectx, g, func(ctx context.Context, lo github.ListOptions) ([]*github.Issue, *github.Response, error) {
			opts := &github.IssueListByRepoOptions{State: "all", Sort: "updated", Direction: "asc", ListOptions: lo}
			if !since.IsZero() {
				opts.Since = since
			}
			return g.client.Client.Issues.ListByRepo(ctx, owner, name, opts)
		})
		return wrapList("issues", key, err)
	})
	eg.Go(func() (err error) {
		labels, headers[1], err = paginate(ectx, g, func(ctx context.Context, lo github.ListOptions) ([]*github.Label, *github.Response, error) {
			return g.client.Client.Issues.ListLabels(ctx, owner, name, &lo)
		})
		return wrapList("labels", key, err)
	})
	eg.Go(func() (err error) {
		milestones, headers[2], err = paginate(ectx, g, func(ctx context.Context, lo github.ListOptions) ([]*github.Milestone, *github.Response, error) {
			return g.client.Client.Issues.ListMilestones(ctx, owner, name, &github.MilestoneListOptions{State: "all", ListOptions: lo})
		})
		return wrapList("milestones", key, err)
	})
	eg.Go(func() (err error) {
		users, headers[3], err = paginate(ectx, g, func(ctx context.Context, lo github.ListOptions) ([]*github.User, *github.Response, error) {
			return g.client.Client.Issues.ListAssignees(ctx, owner, name, &lo)
		})
		return wrapList("assignees", key, err)
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var mirrored []*github.Issue
	for _, issue := range issues {
		if !issue.IsPullRequest() {
			mirrored = append(mirrored, issue)
		}
	}

	var tags [4]string
	for i, h := range headers {
		if h != nil {
			tags[i] = h.Get("ETag")
		}
	}
	// The next incremental fetch asks for issues updated since this moment,
	// so it must be on GitHub's clock. The request start is the fallback.
	stamp := serverTime(headers[0], started)

	fresh := m.Freshness
	u := &model.Updates{
		Repo: key,
		Issues: model.Result[*model.Issue]{
			Items:       convertAll(key, mirrored, toIssue),
			ETag:        tags[0],
			Timestamp:   stamp,
			NotModified: unchanged(forced, tags[0], fresh.IssuesETag),
		},
		Labels: model.Result[*model.Label]{
			Items:       convertAll(key, labels, toLabel),
			ETag:        tags[1],
			Timestamp:   stamp,
			NotModified: unchanged(forced, tags[1], fresh.LabelsETag),
		},
		Milestones: model.Result[*model.Milestone]{
			Items:       convertAll(key, milestones, toMilestone),
			ETag:        tags[2],
			Timestamp:   stamp,
			NotModified: unchanged(forced, tags[2], fresh.MilestonesETag),
		},
		Users: model.Result[*model.User]{
			Items:       convertAll(key, users, toUser),
			ETag:        tags[3],
			Timestamp:   stamp,
			NotModified: unchanged(forced, tags[3], fresh.UsersETag),
		},
	}
	log.WithFields(logrus.Fields{
		"issues":     len(u.Issues.Items),
		"labels":     len(u.Labels.Items),
		"milestones": len(u.Milestones.Items),
		"users":      len(u.Users.Items),
	}).Debug("fetched repository")
	return u, nil
}

func unchanged(forced bool, etag, previous string) bool {
	return !forced && etag != "" && etag == previous
}

func wrapList(what string, key model.RepoKey, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("list %s of %s: %w", what, key, err)
}

// paginate walks every page of a listing and returns the items together with
// the response header of the first page.
func paginate[T any](ctx context.Context, g *Gateway, list func(context.Context, github.ListOptions) ([]T, *github.Response, error)) ([]T, http.Header, error) {
	opts := github.ListOptions{PerPage: g.perPage}
	var (
		all    []T
		header http.Header
	)
	for first := true; ; first = false {
		if err := g.budget.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		items, resp, err := list(ctx, opts)
		if resp != nil && resp.Response != nil {
			g.budget.Observe(resp.Response)
			if first {
				header = resp.Header
			}
		}
		if err != nil {
			return nil, nil, err
		}
		all = append(all, items...)
		if resp == nil || resp.NextPage == 0 {
			return all, header, nil
		}
		opts.Page = resp.NextPage
	}
}

// serverTime is the response's Date, or fallback when the header is missing
// or malformed.
func serverTime(h http.Header, fallback time.Time) time.Time {
	if h != nil {
		if t, err := http.ParseTime(h.Get("Date")); err == nil {
			return t
		}
	}
	return fallback
}

// EditIssueState opens or closes the issue and reports whether GitHub now
// shows the requested state.
func (g *Gateway) EditIssueState(ctx context.Context, issue *model.Issue, open bool) (bool, error) {
	if err := checkEdit(ctx, issue); err != nil {
		return false, err
	}
	state := "closed"
	if open {
		state = "open"
	}
	return dedupe(ctx, g, editKey(issue, "state", state), func(ctx context.Context) (bool, error) {
		updated, err := g.editIssue(ctx, issue, &github.IssueRequest{State: github.Ptr(state)})
		if err != nil {
			return false, err
		}
		return updated.Open == open, nil
	})
}

// ReplaceIssueMilestone sets the issue's milestone, or clears it when
// milestone is nil.
func (g *Gateway) ReplaceIssueMilestone(ctx context.Context, issue *model.Issue, milestone *int) (*model.Issue, error) {
	if err := checkEdit(ctx, issue); err != nil {
		return nil, err
	}
	if milestone != nil {
		n := *milestone
		return dedupe(ctx, g, editKey(issue, "milestone", n), func(ctx context.Context) (*model.Issue, error) {
			return g.editIssue(ctx, issue, &github.IssueRequest{Milestone: &n})
		})
	}
	// IssueRequest omits a nil milestone; clearing needs an explicit null.
	return dedupe(ctx, g, editKey(issue, "milestone", nil), func(ctx context.Context) (*model.Issue, error) {
		return g.editIssue(ctx, issue, map[string]any{"milestone": nil})
	})
}

// ReplaceIssueLabels replaces every label on the issue with labels.
func (g *Gateway) ReplaceIssueLabels(ctx context.Context, issue *model.Issue, labels []string) (*model.Issue, error) {
	if err := checkEdit(ctx, issue); err != nil {
		return nil, err
	}
	names := append([]string{}, labels...)
	return dedupe(ctx, g, editKey(issue, "labels", names), func(ctx context.Context) (*model.Issue, error) {
		if err := g.budget.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		applied, resp, err := g.client.Client.Issues.ReplaceLabelsForIssue(ctx, issue.Repo.Owner(), issue.Repo.Name(), issue.Number, names)
		if resp != nil {
			g.budget.Observe(resp.Response)
		}
		if err != nil {
			return nil, fmt.Errorf("replace labels of %s: %w", issue.Ref(), err)
		}
		updated := issue.Clone()
		updated.Labels = nil
		for _, l := range applied {
			updated.Labels = append(updated.Labels, l.GetName())
		}
		return updated, nil
	})
}

// ReplaceIssueAssignee makes assignee the issue's only assignee, or removes
// all assignees when assignee is nil.
func (g *Gateway) ReplaceIssueAssignee(ctx context.Context, issue *model.Issue, assignee *string) (*model.Issue, error) {
	if err := checkEdit(ctx, issue); err != nil {
		return nil, err
	}
	logins := []string{}
	if assignee != nil && *assignee != "" {
		logins = append(logins, *assignee)
	}
	return dedupe(ctx, g, editKey(issue, "assignee", logins), func(ctx context.Context) (*model.Issue, error) {
		return g.editIssue(ctx, issue, &github.IssueRequest{Assignees: &logins})
	})
}

// editIssue PATCHes the issue with body. When the mirrored issue carries its
// last update time, the request is conditional on the issue not having changed
// since: GitHub answers 412 and the edit fails with repoop.ErrEditConflict.
func (g *Gateway) editIssue(ctx context.Context, issue *model.Issue, body any) (*model.Issue, error) {
	u := fmt.Sprintf("repos/%v/%v/issues/%d", issue.Repo.Owner(), issue.Repo.Name(), issue.Number)
	req, err := g.client.Client.NewRequest(http.MethodPatch, u, body)
	if err != nil {
		return nil, fmt.Errorf("edit %s: %w", issue.Ref(), err)
	}
	if !issue.UpdatedAt.IsZero() {
		req.Header.Set("If-Unmodified-Since", issue.UpdatedAt.UTC().Format(http.TimeFormat))
	}

	if err := g.budget.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	updated := new(github.Issue)
	resp, err := g.client.Client.Do(ctx, req, updated)
	if resp != nil {
		g.budget.Observe(resp.Response)
	}
	if err != nil {
		var er *github.ErrorResponse
		if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusPreconditionFailed {
			return nil, fmt.Errorf("edit %s: %w: %w", issue.Ref(), repoop.ErrEditConflict, err)
		}
		return nil, fmt.Errorf("edit %s: %w", issue.Ref(), err)
	}
	g.log.WithField("issue", issue.Ref()).Debug("issue edited")
	return toIssue(issue.Repo, updated), nil
}

func checkEdit(ctx context.Context, issue *model.Issue) error {
	if ctx == nil {
		return errors.New("edit: nil context")
	}
	if issue == nil {
		return errors.New("edit: nil issue")
	}
	if _, err := model.ParseRepoKey(string(issue.Repo)); err != nil {
		return err
	}
	return nil
}

// editKey identifies an edit for deduplication. value is JSON-encoded so
// that distinct values (["a,b"] and ["a","b"]) never share a key.
func editKey(issue *model.Issue, field string, value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", value))
	}
	return fmt.Sprintf("edit:%s#%d:%s=%s", issue.Repo.Normalized(), issue.Number, field, b)
}

// dedupe collapses concurrent identical calls into one request. The shared
// request runs detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done.
func dedupe[T any](ctx context.Context, g *Gateway, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ch := g.flight.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		if r.Shared {
			g.log.WithField("key", key).Debug("joined in-flight request")
		}
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
