package repoop

import (
	"context"

	"issuemirror/internal/model"
)

// Gateway performs networked repository I/O. Methods block until the remote
// call completes; Control runs them off the caller's goroutine.
type Gateway interface {
	OpenRepository(ctx context.Context, key model.RepoKey) (*model.Model, error)
	UpdateModel(ctx context.Context, m *model.Model, forced bool) (*model.Updates, error)
	RemoveRepository(ctx context.Context, key model.RepoKey) (bool, error)
	EditIssueState(ctx context.Context, issue *model.Issue, open bool) (bool, error)
	ReplaceIssueMilestone(ctx context.Context, issue *model.Issue, milestone *int) (*model.Issue, error)
	ReplaceIssueLabels(ctx context.Context, issue *model.Issue, labels []string) (*model.Issue, error)
	ReplaceIssueAssignee(ctx context.Context, issue *model.Issue, assignee *string) (*model.Issue, error)
}

// Store holds the in-memory mirrors of all open repositories. Issue mutations
// return nil when the repository or issue is not present.
type Store interface {
	Add(m *model.Model)
	Get(key model.RepoKey) (*model.Model, bool)
	Remove(key model.RepoKey) bool

	ReplaceIssueMilestone(key model.RepoKey, issueID int, milestone *int) *model.Issue
	ReplaceIssueLabels(key model.RepoKey, issueID int, labels []string) *model.Issue
	EditIssueState(key model.RepoKey, issueID int, open bool) *model.Issue
	ReplaceIssueAssignee(key model.RepoKey, issueID int, assignee *string) *model.Issue
}

var _ Store = (*model.MultiModel)(nil)
