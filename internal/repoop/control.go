// Package repoop coordinates operations on tracked repositories.
//
// Operations that load, refresh or tear down a repository's mirror are queued
// per repository: for one repository they run one at a time in submission
// order, while different repositories proceed in parallel. Local issue edits
// mutate the store directly and bypass the queue; edits pushed to the remote
// target a single issue and are not queued either.
package repoop

import (
	"context"
	"errors"
	"fmt"

	"issuemirror/internal/future"
	"issuemirror/internal/keyqueue"
	"issuemirror/internal/model"

	"github.com/sirupsen/logrus"
)

type Control struct {
	gateway Gateway
	store   Store
	queue   *keyqueue.Queue
	log     logrus.FieldLogger
}

type Option func(*Control)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Control) {
		if l != nil {
			c.log = l
		}
	}
}

// WithQueue shares a queue between controls, or injects one for inspection.
func WithQueue(q *keyqueue.Queue) Option {
	return func(c *Control) {
		if q != nil {
			c.queue = q
		}
	}
}

func New(gateway Gateway, store Store, opts ...Option) (*Control, error) {
	if gateway == nil {
		return nil, errors.New("repoop: gateway is nil")
	}
	if store == nil {
		return nil, errors.New("repoop: store is nil")
	}
	c := &Control{
		gateway: gateway,
		store:   store,
		log:     logrus.StandardLogger(),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(c)
		}
	}
	if c.queue == nil {
		c.queue = keyqueue.New(keyqueue.WithLogger(c.log))
	}
	return c, nil
}

// Model returns a snapshot of the stored mirror for key.
func (c *Control) Model(key model.RepoKey) (*model.Model, bool) {
	return c.store.Get(key)
}

// OpenRepository loads key's mirror from the remote and stores it.
//
// On failure the future fails with an error wrapping ErrRepositoryUnavailable
// and the store is left unchanged.
func (c *Control) OpenRepository(ctx context.Context, key model.RepoKey) *future.Future[*model.Model] {
	if err := c.check(ctx, "OpenRepository"); err != nil {
		return future.Failed[*model.Model](err)
	}
	return keyqueue.Submit(c.queue, key.Normalized(), func() (*model.Model, error) {
		log := c.log.WithFields(logrus.Fields{"repo": key, "op": "open"})
		log.Debug("opening repository")

		m, err := c.gateway.OpenRepository(ctx, key)
		if err != nil {
			log.WithError(err).Warn("open failed")
			return nil, fmt.Errorf("open %s: %w: %w", key, ErrRepositoryUnavailable, err)
		}
		if m == nil {
			return nil, fmt.Errorf("open %s: %w: gateway returned no model", key, ErrRepositoryUnavailable)
		}
		// The store keeps its own copy; the caller's snapshot is never shared.
		c.store.Add(m.Clone())
		log.WithField("issues", len(m.Issues)).Info("repository opened")
		return m, nil
	})
}

// OpenRepositories opens every key concurrently and resolves once all have
// loaded, or with the first failure.
func (c *Control) OpenRepositories(ctx context.Context, keys []model.RepoKey) *future.Future[[]*model.Model] {
	if err := c.check(ctx, "OpenRepositories"); err != nil {
		return future.Failed[[]*model.Model](err)
	}
	futures := make([]*future.Future[*model.Model], 0, len(keys))
	for _, key := range keys {
		futures = append(futures, c.OpenRepository(ctx, key))
	}
	return async(func() ([]*model.Model, error) {
		return future.All(ctx, futures...)
	})
}

// UpdateLocalModel refreshes the mirror of m's repository and returns the
// merged model.
//
// The stored model (or m, when the repository is not stored) supplies the
// freshness metadata for an incremental fetch. forced discards it and
// rebuilds the mirror from a full refetch.
func (c *Control) UpdateLocalModel(ctx context.Context, m *model.Model, forced bool) *future.Future[*model.Model] {
	if err := c.check(ctx, "UpdateLocalModel"); err != nil {
		return future.Failed[*model.Model](err)
	}
	if m == nil {
		return future.Failed[*model.Model](errors.New("UpdateLocalModel: nil model"))
	}
	key := m.Key
	return keyqueue.Submit(c.queue, key.Normalized(), func() (*model.Model, error) {
		log := c.log.WithFields(logrus.Fields{"repo": key, "op": "update", "forced": forced})

		base := m
		if stored, ok := c.store.Get(key); ok {
			base = stored
		}
		if forced {
			// A full refetch replaces the mirror instead of merging into it.
			base = model.NewModel(base.Key)
		}

		log.Debug("refreshing repository")
		updates, err := c.gateway.UpdateModel(ctx, base, forced)
		if err != nil {
			log.WithError(err).Warn("refresh failed")
			return nil, fmt.Errorf("update %s: %w: %w", key, ErrRepositoryUnavailable, err)
		}

		merged := base.ApplyUpdates(updates)
		c.store.Add(merged.Clone())
		log.WithField("changed_issues", changedIssues(updates)).Info("repository refreshed")
		return merged, nil
	})
}

// RemoveRepository tears down key's mirror. Removing a repository that is not
// open succeeds without contacting the remote.
func (c *Control) RemoveRepository(ctx context.Context, key model.RepoKey) *future.Future[bool] {
	if err := c.check(ctx, "RemoveRepository"); err != nil {
		return future.Failed[bool](err)
	}
	return keyqueue.Submit(c.queue, key.Normalized(), func() (bool, error) {
		log := c.log.WithFields(logrus.Fields{"repo": key, "op": "remove"})

		if _, ok := c.store.Get(key); !ok {
			log.Debug("repository not open; nothing to remove")
			return true, nil
		}
		ok, err := c.gateway.RemoveRepository(ctx, key)
		if err != nil {
			log.WithError(err).Warn("remove failed")
			return false, fmt.Errorf("remove %s: %w: %w", key, ErrRepositoryUnavailable, err)
		}
		if ok {
			c.store.Remove(key)
			log.Info("repository removed")
		}
		return ok, nil
	})
}

// ReplaceIssueMilestoneLocally sets the cached issue's milestone. The future
// resolves with nil when the issue is no longer in the store.
func (c *Control) ReplaceIssueMilestoneLocally(issue *model.Issue, milestone *int) *future.Future[*model.Issue] {
	if issue == nil {
		return future.Failed[*model.Issue](errors.New("ReplaceIssueMilestoneLocally: nil issue"))
	}
	return future.Completed(c.store.ReplaceIssueMilestone(issue.Repo, issue.Number, milestone))
}

func (c *Control) ReplaceIssueLabelsLocally(issue *model.Issue, labels []string) *future.Future[*model.Issue] {
	if issue == nil {
		return future.Failed[*model.Issue](errors.New("ReplaceIssueLabelsLocally: nil issue"))
	}
	return future.Completed(c.store.ReplaceIssueLabels(issue.Repo, issue.Number, labels))
}

func (c *Control) EditIssueStateLocally(issue *model.Issue, open bool) *future.Future[*model.Issue] {
	if issue == nil {
		return future.Failed[*model.Issue](errors.New("EditIssueStateLocally: nil issue"))
	}
	return future.Completed(c.store.EditIssueState(issue.Repo, issue.Number, open))
}

func (c *Control) ReplaceIssueAssigneeLocally(issue *model.Issue, assignee *string) *future.Future[*model.Issue] {
	if issue == nil {
		return future.Failed[*model.Issue](errors.New("ReplaceIssueAssigneeLocally: nil issue"))
	}
	return future.Completed(c.store.ReplaceIssueAssignee(issue.Repo, issue.Number, assignee))
}

// EditIssueStateOnServer opens or closes the issue on the remote and resolves
// with whether the remote accepted the change.
func (c *Control) EditIssueStateOnServer(ctx context.Context, issue *model.Issue, open bool) *future.Future[bool] {
	if err := c.checkIssue(ctx, "EditIssueStateOnServer", issue); err != nil {
		return future.Failed[bool](err)
	}
	return async(func() (bool, error) {
		ok, err := c.gateway.EditIssueState(ctx, issue, open)
		if err != nil {
			c.logEditFailure(issue, "state", err)
			return false, fmt.Errorf("edit state of %s: %w: %w", issue.Ref(), ErrRemoteEdit, err)
		}
		return ok, nil
	})
}

func (c *Control) ReplaceIssueMilestoneOnServer(ctx context.Context, issue *model.Issue, milestone *int) *future.Future[*model.Issue] {
	if err := c.checkIssue(ctx, "ReplaceIssueMilestoneOnServer", issue); err != nil {
		return future.Failed[*model.Issue](err)
	}
	return async(func() (*model.Issue, error) {
		updated, err := c.gateway.ReplaceIssueMilestone(ctx, issue, milestone)
		if err != nil {
			c.logEditFailure(issue, "milestone", err)
			return nil, fmt.Errorf("replace milestone of %s: %w: %w", issue.Ref(), ErrRemoteEdit, err)
		}
		return updated, nil
	})
}

func (c *Control) ReplaceIssueLabelsOnServer(ctx context.Context, issue *model.Issue, labels []string) *future.Future[*model.Issue] {
	if err := c.checkIssue(ctx, "ReplaceIssueLabelsOnServer", issue); err != nil {
		return future.Failed[*model.Issue](err)
	}
	return async(func() (*model.Issue, error) {
		updated, err := c.gateway.ReplaceIssueLabels(ctx, issue, labels)
		if err != nil {
			c.logEditFailure(issue, "labels", err)
			return nil, fmt.Errorf("replace labels of %s: %w: %w", issue.Ref(), ErrRemoteEdit, err)
		}
		return updated, nil
	})
}

func (c *Control) ReplaceIssueAssigneeOnServer(ctx context.Context, issue *model.Issue, assignee *string) *future.Future[*model.Issue] {
	if err := c.checkIssue(ctx, "ReplaceIssueAssigneeOnServer", issue); err != nil {
		return future.Failed[*model.Issue](err)
	}
	return async(func() (*model.Issue, error) {
		updated, err := c.gateway.ReplaceIssueAssignee(ctx, issue, assignee)
		if err != nil {
			c.logEditFailure(issue, "assignee", err)
			return nil, fmt.Errorf("replace assignee of %s: %w: %w", issue.Ref(), ErrRemoteEdit, err)
		}
		return updated, nil
	})
}

func (c *Control) check(ctx context.Context, op string) error {
	if c == nil {
		return fmt.Errorf("%s: nil Control (use New)", op)
	}
	if ctx == nil {
		return fmt.Errorf("%s: nil context", op)
	}
	return nil
}

func (c *Control) checkIssue(ctx context.Context, op string, issue *model.Issue) error {
	if err := c.check(ctx, op); err != nil {
		return err
	}
	if issue == nil {
		return fmt.Errorf("%s: nil issue", op)
	}
	return nil
}

func (c *Control) logEditFailure(issue *model.Issue, field string, err error) {
	c.log.WithFields(logrus.Fields{"issue": issue.Ref(), "field": field}).WithError(err).Warn("remote edit failed")
}

func changedIssues(u *model.Updates) int {
	if u == nil {
		return 0
	}
	return len(u.Issues.Items)
}

// async runs fn on its own goroutine and exposes its result as a future.
func async[T any](fn func() (T, error)) *future.Future[T] {
	f := future.New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("repoop: panic: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}
