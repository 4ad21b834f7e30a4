package model

import (
	"sort"
	"sync"
)

// MultiModel holds the mirrors of all open repositories.
//
// Mutations return a copy of the affected issue, or nil when the repository
// or issue is not in the store. The internal lock keeps the map consistent
// under concurrent use; ordering between writers of the same repository is the
// caller's concern.
type MultiModel struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewMultiModel() *MultiModel {
	return &MultiModel{models: make(map[string]*Model)}
}

// Add stores m, replacing any model for the same repository.
func (mm *MultiModel) Add(m *Model) {
	if m == nil {
		return
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.models == nil {
		mm.models = make(map[string]*Model)
	}
	mm.models[m.Key.Normalized()] = m
}

// Get returns a snapshot of the model for key. Later mutations of the store
// are not visible through the snapshot.
func (mm *MultiModel) Get(key RepoKey) (*Model, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	m, ok := mm.models[key.Normalized()]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Remove drops the model for key and reports whether one was present.
func (mm *MultiModel) Remove(key RepoKey) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	k := key.Normalized()
	if _, ok := mm.models[k]; !ok {
		return false
	}
	delete(mm.models, k)
	return true
}

// Keys returns the keys of all stored models, sorted case-insensitively.
func (mm *MultiModel) Keys() []RepoKey {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	keys := make([]RepoKey, 0, len(mm.models))
	for _, m := range mm.models {
		keys = append(keys, m.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Normalized() < keys[j].Normalized() })
	return keys
}

func (mm *MultiModel) ReplaceIssueMilestone(key RepoKey, issueID int, milestone *int) *Issue {
	return mm.mutateIssue(key, issueID, func(i *Issue) {
		if milestone == nil {
			i.Milestone = nil
			return
		}
		v := *milestone
		i.Milestone = &v
	})
}

func (mm *MultiModel) ReplaceIssueLabels(key RepoKey, issueID int, labels []string) *Issue {
	return mm.mutateIssue(key, issueID, func(i *Issue) {
		i.Labels = append([]string(nil), labels...)
	})
}

func (mm *MultiModel) EditIssueState(key RepoKey, issueID int, open bool) *Issue {
	return mm.mutateIssue(key, issueID, func(i *Issue) {
		i.Open = open
	})
}

func (mm *MultiModel) ReplaceIssueAssignee(key RepoKey, issueID int, assignee *string) *Issue {
	return mm.mutateIssue(key, issueID, func(i *Issue) {
		if assignee == nil {
			i.Assignee = nil
			return
		}
		v := *assignee
		i.Assignee = &v
	})
}

func (mm *MultiModel) mutateIssue(key RepoKey, issueID int, mutate func(*Issue)) *Issue {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m, ok := mm.models[key.Normalized()]
	if !ok {
		return nil
	}
	issue, ok := m.Issue(issueID)
	if !ok {
		return nil
	}
	mutate(issue)
	return issue.Clone()
}
