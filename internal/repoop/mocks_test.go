package repoop

import (
	"context"

	"issuemirror/internal/model"

	"github.com/stretchr/testify/mock"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) OpenRepository(ctx context.Context, key model.RepoKey) (*model.Model, error) {
	args := m.Called(ctx, key)
	mdl, _ := args.Get(0).(*model.Model)
	return mdl, args.Error(1)
}

func (m *mockGateway) UpdateModel(ctx context.Context, mdl *model.Model, forced bool) (*model.Updates, error) {
	args := m.Called(ctx, mdl, forced)
	u, _ := args.Get(0).(*model.Updates)
	return u, args.Error(1)
}

func (m *mockGateway) RemoveRepository(ctx context.Context, key model.RepoKey) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) EditIssueState(ctx context.Context, issue *model.Issue, open bool) (bool, error) {
	args := m.Called(ctx, issue, open)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) ReplaceIssueMilestone(ctx context.Context, issue *model.Issue, milestone *int) (*model.Issue, error) {
	args := m.Called(ctx, issue, milestone)
	i, _ := args.Get(0).(*model.Issue)
	return i, args.Error(1)
}

func (m *mockGateway) ReplaceIssueLabels(ctx context.Context, issue *model.Issue, labels []string) (*model.Issue, error) {
	args := m.Called(ctx, issue, labels)
	i, _ := args.Get(0).(*model.Issue)
	return i, args.Error(1)
}

func (m *mockGateway) ReplaceIssueAssignee(ctx context.Context, issue *model.Issue, assignee *string) (*model.Issue, error) {
	args := m.Called(ctx, issue, assignee)
	i, _ := args.Get(0).(*model.Issue)
	return i, args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Add(mdl *model.Model) {
	m.Called(mdl)
}

func (m *mockStore) Get(key model.RepoKey) (*model.Model, bool) {
	args := m.Called(key)
	mdl, _ := args.Get(0).(*model.Model)
	return mdl, args.Bool(1)
}

func (m *mockStore) Remove(key model.RepoKey) bool {
	return m.Called(key).Bool(0)
}

func (m *mockStore) ReplaceIssueMilestone(key model.RepoKey, issueID int, milestone *int) *model.Issue {
	i, _ := m.Called(key, issueID, milestone).Get(0).(*model.Issue)
	return i
}

func (m *mockStore) ReplaceIssueLabels(key model.RepoKey, issueID int, labels []string) *model.Issue {
	i, _ := m.Called(key, issueID, labels).Get(0).(*model.Issue)
	return i
}

func (m *mockStore) EditIssueState(key model.RepoKey, issueID int, open bool) *model.Issue {
	i, _ := m.Called(key, issueID, open).Get(0).(*model.Issue)
	return i
}

func (m *mockStore) ReplaceIssueAssignee(key model.RepoKey, issueID int, assignee *string) *model.Issue {
	i, _ := m.Called(key, issueID, assignee).Get(0).(*model.Issue)
	return i
}
