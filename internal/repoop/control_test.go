package repoop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"issuemirror/internal/future"
	"issuemirror/internal/model"
	"issuemirror/internal/probe"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testRepo = model.RepoKey("test/test")

type callIDKey struct{}

// stubGateway simulates remote calls that take time, tracking how many run at
// once and the order in which they start and finish.
type stubGateway struct {
	counter probe.MaxCounter
	delay   time.Duration

	mu     sync.Mutex
	events []string
	fail   map[string]error
}

func newStubGateway(delay time.Duration) *stubGateway {
	return &stubGateway{delay: delay, fail: make(map[string]error)}
}

// failOnce makes the next op call for key fail with err.
func (g *stubGateway) failOnce(op string, key model.RepoKey, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op+" "+key.Normalized()] = err
}

func (g *stubGateway) run(ctx context.Context, op string, key model.RepoKey) error {
	g.mu.Lock()
	delay := g.delay
	g.mu.Unlock()

	g.counter.Enter()
	defer g.counter.Exit()

	label := op + " " + key.Normalized()
	if id := ctx.Value(callIDKey{}); id != nil {
		label = fmt.Sprintf("%s #%v", label, id)
	}
	g.record("start " + label)
	time.Sleep(delay)
	g.record("end " + label)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.fail[op+" "+key.Normalized()]; ok {
		delete(g.fail, op+" "+key.Normalized())
		return err
	}
	return nil
}

func (g *stubGateway) record(event string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, event)
}

func (g *stubGateway) Events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

func (g *stubGateway) OpenRepository(ctx context.Context, key model.RepoKey) (*model.Model, error) {
	if err := g.run(ctx, "open", key); err != nil {
		return nil, err
	}
	m := model.NewModel(key)
	m.Issues = []*model.Issue{model.NewIssue(key, 1, "Issue 1")}
	m.Freshness.UpdatedAt = time.Now()
	return m, nil
}

func (g *stubGateway) UpdateModel(ctx context.Context, m *model.Model, forced bool) (*model.Updates, error) {
	if err := g.run(ctx, "update", m.Key); err != nil {
		return nil, err
	}
	return &model.Updates{Repo: m.Key, Issues: model.Result[*model.Issue]{Timestamp: time.Now()}}, nil
}

func (g *stubGateway) RemoveRepository(ctx context.Context, key model.RepoKey) (bool, error) {
	if err := g.run(ctx, "remove", key); err != nil {
		return false, err
	}
	return true, nil
}

func (g *stubGateway) EditIssueState(ctx context.Context, issue *model.Issue, open bool) (bool, error) {
	return true, g.run(ctx, "edit", issue.Repo)
}

func (g *stubGateway) ReplaceIssueMilestone(ctx context.Context, issue *model.Issue, milestone *int) (*model.Issue, error) {
	return issue, g.run(ctx, "milestone", issue.Repo)
}

func (g *stubGateway) ReplaceIssueLabels(ctx context.Context, issue *model.Issue, labels []string) (*model.Issue, error) {
	return issue, g.run(ctx, "labels", issue.Repo)
}

func (g *stubGateway) ReplaceIssueAssignee(ctx context.Context, issue *model.Issue, assignee *string) (*model.Issue, error) {
	return issue, g.run(ctx, "assignee", issue.Repo)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestControl(t *testing.T, gw Gateway, store Store) *Control {
	t.Helper()
	c, err := New(gw, store, WithLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

func waitFor[T any](t *testing.T, f *future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "timed out waiting for future")
	return v, err
}

func TestNew_NilCollaborators(t *testing.T) {
	_, err := New(nil, model.NewMultiModel())
	assert.Error(t, err)
	_, err = New(newStubGateway(0), nil)
	assert.Error(t, err)
}

func TestOpsWithinMultipleRepos(t *testing.T) {
	// Operations on different repositories run concurrently, one per repository.
	gw := newStubGateway(50 * time.Millisecond)
	c := newTestControl(t, gw, model.NewMultiModel())
	ctx := context.Background()
	other := testRepo + "1"

	futures := []*future.Future[*model.Model]{
		c.OpenRepository(ctx, testRepo),
		c.UpdateLocalModel(ctx, model.NewModel(other), true),
		c.OpenRepository(ctx, testRepo),
		c.UpdateLocalModel(ctx, model.NewModel(other), true),
	}
	_, err := waitFor(t, c.RemoveRepository(ctx, testRepo+"2"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = future.All(waitCtx, futures...)
	require.NoError(t, err)

	assert.Equal(t, int64(2), gw.counter.Max())
}

func TestOpsWithinSameRepo(t *testing.T) {
	// Operations on the same repository never overlap.
	gw := newStubGateway(10 * time.Millisecond)
	c := newTestControl(t, gw, model.NewMultiModel())
	ctx := context.Background()

	futures := []*future.Future[*model.Model]{c.OpenRepository(ctx, testRepo)}
	_, err := waitFor(t, c.RemoveRepository(ctx, testRepo))
	require.NoError(t, err)
	futures = append(futures, c.UpdateLocalModel(ctx, model.NewModel(testRepo), true))
	_, err = waitFor(t, c.RemoveRepository(ctx, testRepo))
	require.NoError(t, err)
	futures = append(futures,
		c.OpenRepository(ctx, testRepo),
		c.UpdateLocalModel(ctx, model.NewModel("TEST/test"), true),
	)

	for _, f := range futures {
		_, err := waitFor(t, f)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), gw.counter.Max())
}

func TestOpeningSameRepo_SerialInSubmissionOrder(t *testing.T) {
	const n = 4
	const delay = 20 * time.Millisecond
	gw := newStubGateway(delay)
	c := newTestControl(t, gw, model.NewMultiModel())

	start := time.Now()
	var futures []*future.Future[*model.Model]
	for i := 0; i < n; i++ {
		ctx := context.WithValue(context.Background(), callIDKey{}, i)
		futures = append(futures, c.OpenRepository(ctx, testRepo))
	}
	seen := make(map[*model.Model]bool)
	for _, f := range futures {
		m, err := waitFor(t, f)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.False(t, seen[m], "each open resolves with its own snapshot")
		seen[m] = true
	}
	elapsed := time.Since(start)

	assert.Equal(t, int64(1), gw.counter.Max())
	assert.GreaterOrEqual(t, elapsed, n*delay)

	var want []string
	for i := 0; i < n; i++ {
		want = append(want,
			fmt.Sprintf("start open test/test #%d", i),
			fmt.Sprintf("end open test/test #%d", i))
	}
	assert.Equal(t, want, gw.Events())
}

func TestOpeningDifferentRepos_Parallel(t *testing.T) {
	const n = 5
	const delay = 100 * time.Millisecond
	gw := newStubGateway(delay)
	c := newTestControl(t, gw, model.NewMultiModel())
	ctx := context.Background()

	keys := make([]model.RepoKey, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, model.RepoKey(fmt.Sprintf("%s%d", testRepo, i)))
	}

	start := time.Now()
	models, err := waitFor(t, c.OpenRepositories(ctx, keys))
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, models, n)
	for i, m := range models {
		assert.Equal(t, keys[i], m.Key)
	}

	assert.Equal(t, int64(n), gw.counter.Max())
	assert.Less(t, elapsed, time.Duration(n-1)*delay, "opens of distinct repositories should overlap")
}

func TestOpenThenRemove_ExactSubmissionOrder(t *testing.T) {
	gw := newStubGateway(10 * time.Millisecond)
	store := model.NewMultiModel()
	c := newTestControl(t, gw, store)
	ctx := context.Background()

	first := c.OpenRepository(ctx, "r/r")
	second := c.OpenRepository(ctx, "r/r")
	removed := c.RemoveRepository(ctx, "r/r")

	_, err := waitFor(t, first)
	require.NoError(t, err)
	_, err = waitFor(t, second)
	require.NoError(t, err)
	ok, err := waitFor(t, removed)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		"start open r/r", "end open r/r",
		"start open r/r", "end open r/r",
		"start remove r/r", "end remove r/r",
	}, gw.Events())
	assert.Equal(t, int64(1), gw.counter.Max())
	_, stillOpen := store.Get("r/r")
	assert.False(t, stillOpen)
}

func TestFailedOpenDoesNotBlockQueue(t *testing.T) {
	gw := newStubGateway(5 * time.Millisecond)
	store := model.NewMultiModel()
	c := newTestControl(t, gw, store)
	ctx := context.Background()
	boom := errors.New("connection reset")
	gw.failOnce("open", testRepo, boom)

	failed := c.OpenRepository(ctx, testRepo)
	next := c.OpenRepository(ctx, testRepo)

	_, err := waitFor(t, failed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.ErrorIs(t, err, boom)

	m, err := waitFor(t, next)
	require.NoError(t, err)
	assert.Equal(t, testRepo, m.Key)
	_, ok := store.Get(testRepo)
	assert.True(t, ok)
}

func TestFailedOpenLeavesStoreUnchanged(t *testing.T) {
	gw := newStubGateway(0)
	store := model.NewMultiModel()
	c := newTestControl(t, gw, store)
	gw.failOnce("open", testRepo, errors.New("401 Bad credentials"))

	_, err := waitFor(t, c.OpenRepository(context.Background(), testRepo))
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.Empty(t, store.Keys())
}

func TestUpdateLocalModel_MergesIntoStoredModel(t *testing.T) {
	gw := &mockGateway{}
	store := model.NewMultiModel()
	c := newTestControl(t, gw, store)
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := model.NewModel(testRepo)
	stored.Issues = []*model.Issue{model.NewIssue(testRepo, 1, "Issue 1")}
	stored.Freshness = model.Freshness{IssuesETag: "e0", UpdatedAt: t0}
	store.Add(stored)

	changed := model.NewIssue(testRepo, 1, "Issue 1 renamed")
	added := model.NewIssue(testRepo, 2, "Issue 2")
	gw.On("UpdateModel", mock.Anything, mock.MatchedBy(func(m *model.Model) bool {
		return m.Freshness.UpdatedAt.Equal(t0) && len(m.Issues) == 1
	}), false).Return(&model.Updates{
		Repo:   testRepo,
		Issues: model.Result[*model.Issue]{Items: []*model.Issue{changed, added}, ETag: "e1", Timestamp: t0.Add(time.Minute)},
	}, nil).Once()

	// The caller's copy is stale; the stored model's freshness drives the fetch.
	merged, err := waitFor(t, c.UpdateLocalModel(ctx, model.NewModel(testRepo), false))
	require.NoError(t, err)
	gw.AssertExpectations(t)

	require.Len(t, merged.Issues, 2)
	assert.Equal(t, "Issue 1 renamed", merged.Issues[0].Title)
	assert.Equal(t, "e1", merged.Freshness.IssuesETag)

	fromStore, ok := store.Get(testRepo)
	require.True(t, ok)
	assert.Len(t, fromStore.Issues, 2)
}

func TestUpdateLocalModel_ForcedRefetchesFromScratch(t *testing.T) {
	gw := &mockGateway{}
	store := model.NewMultiModel()
	c := newTestControl(t, gw, store)

	stored := model.NewModel(testRepo)
	stored.Issues = []*model.Issue{model.NewIssue(testRepo, 1, "deleted remotely")}
	stored.Freshness.UpdatedAt = time.Now()
	store.Add(stored)

	gw.On("UpdateModel", mock.Anything, mock.MatchedBy(func(m *model.Model) bool {
		return !m.Fetched() && len(m.Issues) == 0
	}), true).Return(&model.Updates{
		Repo:   testRepo,
		Issues: model.Result[*model.Issue]{Items: []*model.Issue{model.NewIssue(testRepo, 2, "fresh")}, Timestamp: time.Now()},
	}, nil).Once()

	merged, err := waitFor(t, c.UpdateLocalModel(context.Background(), stored, true))
	require.NoError(t, err)
	gw.AssertExpectations(t)
	require.Len(t, merged.Issues, 1)
	assert.Equal(t, 2, merged.Issues[0].Number)
}

func TestUpdateLocalModel_FailureWrapsRemoteError(t *testing.T) {
	gw := &mockGateway{}
	c := newTestControl(t, gw, model.NewMultiModel())
	boom := errors.New("502 Bad Gateway")
	gw.On("UpdateModel", mock.Anything, mock.Anything, false).Return(nil, boom)

	_, err := waitFor(t, c.UpdateLocalModel(context.Background(), model.NewModel(testRepo), false))
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestRemoveRepository_NotOpenIsNoOp(t *testing.T) {
	gw := &mockGateway{}
	c := newTestControl(t, gw, model.NewMultiModel())

	ok, err := waitFor(t, c.RemoveRepository(context.Background(), testRepo))
	require.NoError(t, err)
	assert.True(t, ok)
	gw.AssertNotCalled(t, "RemoveRepository", mock.Anything, mock.Anything)
}

func TestRemoveRepository_FailureKeepsModel(t *testing.T) {
	gw := &mockGateway{}
	store := model.NewMultiModel()
	store.Add(model.NewModel(testRepo))
	c := newTestControl(t, gw, store)
	gw.On("RemoveRepository", mock.Anything, testRepo).Return(false, errors.New("disk full"))

	_, err := waitFor(t, c.RemoveRepository(context.Background(), testRepo))
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
	_, ok := store.Get(testRepo)
	assert.True(t, ok)
}

func TestReplaceIssueMilestoneLocally(t *testing.T) {
	store := &mockStore{}
	c := newTestControl(t, &mockGateway{}, store)

	milestone := 1
	returned := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	returned.Milestone = &milestone
	store.On("ReplaceIssueMilestone", model.RepoKey("testrepo/testrepo"), 1, &milestone).Return(returned)

	got, err := c.ReplaceIssueMilestoneLocally(returned, &milestone).Result()
	require.NoError(t, err)
	assert.Same(t, returned, got)
	store.AssertExpectations(t)
}

func TestReplaceIssueMilestoneLocally_AbsentIssue(t *testing.T) {
	c := newTestControl(t, &mockGateway{}, model.NewMultiModel())
	milestone := 1

	got, err := c.ReplaceIssueMilestoneLocally(model.NewIssue(testRepo, 9, "gone"), &milestone).Result()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceIssueLabelsLocally(t *testing.T) {
	store := &mockStore{}
	c := newTestControl(t, &mockGateway{}, store)
	returned := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	store.On("ReplaceIssueLabels", model.RepoKey("testrepo/testrepo"), 1, []string{}).Return(returned)

	got, err := c.ReplaceIssueLabelsLocally(returned, []string{}).Result()
	require.NoError(t, err)
	assert.Same(t, returned, got)
}

func TestEditIssueStateLocally(t *testing.T) {
	store := &mockStore{}
	c := newTestControl(t, &mockGateway{}, store)
	returned := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	store.On("EditIssueState", model.RepoKey("testrepo/testrepo"), 1, false).Return(returned)

	got, err := c.EditIssueStateLocally(returned, false).Result()
	require.NoError(t, err)
	assert.Same(t, returned, got)
}

func TestReplaceIssueAssigneeLocally(t *testing.T) {
	store := &mockStore{}
	c := newTestControl(t, &mockGateway{}, store)
	returned := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	assignee := ""
	store.On("ReplaceIssueAssignee", model.RepoKey("testrepo/testrepo"), 1, &assignee).Return(returned)

	got, err := c.ReplaceIssueAssigneeLocally(returned, &assignee).Result()
	require.NoError(t, err)
	assert.Same(t, returned, got)
}

func TestLocalMutations_NilIssue(t *testing.T) {
	c := newTestControl(t, &mockGateway{}, model.NewMultiModel())
	_, err := c.EditIssueStateLocally(nil, true).Result()
	assert.Error(t, err)
	_, err = c.ReplaceIssueLabelsLocally(nil, nil).Result()
	assert.Error(t, err)
}

func TestEditIssueStateOnServer(t *testing.T) {
	gw := &mockGateway{}
	c := newTestControl(t, gw, &mockStore{})
	issue := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	gw.On("EditIssueState", mock.Anything, issue, false).Return(true, nil)

	ok, err := waitFor(t, c.EditIssueStateOnServer(context.Background(), issue, false))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEditIssueStateOnServer_Failure(t *testing.T) {
	gw := &mockGateway{}
	c := newTestControl(t, gw, &mockStore{})
	issue := model.NewIssue("testrepo/testrepo", 1, "Issue title")
	boom := errors.New("403 Forbidden")
	gw.On("EditIssueState", mock.Anything, issue, true).Return(false, boom)

	_, err := waitFor(t, c.EditIssueStateOnServer(context.Background(), issue, true))
	assert.ErrorIs(t, err, ErrRemoteEdit)
	assert.ErrorIs(t, err, boom)
}

func TestServerEdits_NotQueuedBehindRepositoryWork(t *testing.T) {
	// A slow reload of the repository does not delay single-issue edits.
	gw := newStubGateway(300 * time.Millisecond)
	c := newTestControl(t, gw, model.NewMultiModel())
	ctx := context.Background()

	reload := c.OpenRepository(ctx, testRepo)
	issue := model.NewIssue(testRepo, 1, "Issue 1")

	// Give the open a head start so it holds the repository's queue.
	require.Eventually(t, func() bool { return gw.counter.Current() == 1 }, time.Second, time.Millisecond)
	gw.mu.Lock()
	gw.delay = 0
	gw.mu.Unlock()

	milestone := 2
	labels := []string{"bug"}
	who := "octocat"
	results := []*future.Future[*model.Issue]{
		c.ReplaceIssueMilestoneOnServer(ctx, issue, &milestone),
		c.ReplaceIssueLabelsOnServer(ctx, issue, labels),
		c.ReplaceIssueAssigneeOnServer(ctx, issue, &who),
	}
	for _, f := range results {
		_, err := waitFor(t, f)
		require.NoError(t, err)
	}
	assert.False(t, reload.IsDone(), "server edits finished while the reload was still running")

	_, err := waitFor(t, reload)
	require.NoError(t, err)
	assert.Greater(t, gw.counter.Max(), int64(1))
}

func TestNilContextFailsFast(t *testing.T) {
	c := newTestControl(t, &mockGateway{}, model.NewMultiModel())
	var nilCtx context.Context

	_, err := c.OpenRepository(nilCtx, testRepo).Result()
	assert.Error(t, err)
	_, err = c.RemoveRepository(nilCtx, testRepo).Result()
	assert.Error(t, err)
	_, err = c.EditIssueStateOnServer(nilCtx, model.NewIssue(testRepo, 1, "x"), true).Result()
	assert.Error(t, err)
}
