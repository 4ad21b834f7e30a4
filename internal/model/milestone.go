package model

import (
	"slices"
	"sort"
	"time"
)

// Milestone is a repository milestone. ID is the milestone number GitHub uses
// in issue payloads.
type Milestone struct {
	Repo         RepoKey    `json:"repo"`
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Description  string     `json:"description,omitempty"`
	Open         bool       `json:"open"`
	OpenIssues   int        `json:"open_issues"`
	ClosedIssues int        `json:"closed_issues"`
}

func NewMilestone(repo RepoKey, id int, title string) *Milestone {
	return &Milestone{Repo: repo, ID: id, Title: title, Open: true}
}

// IsOverdue reports whether the due date is a day before now's date.
func (m *Milestone) IsOverdue(now time.Time) bool {
	if m.DueDate == nil {
		return false
	}
	return truncateDay(*m.DueDate).Before(truncateDay(now))
}

func (m *Milestone) HasOpenIssues() bool {
	return m.OpenIssues > 0
}

// IsOngoing reports whether the milestone is not yet due, or is overdue but
// still has open issues.
func (m *Milestone) IsOngoing(now time.Time) bool {
	return !m.IsOverdue(now) || m.HasOpenIssues()
}

func OpenMilestones(ms []*Milestone) []*Milestone {
	var out []*Milestone
	for _, m := range ms {
		if m.Open {
			out = append(out, m)
		}
	}
	return out
}

// MilestonesOfRepos keeps the milestones belonging to any of repos.
func MilestonesOfRepos(ms []*Milestone, repos []RepoKey) []*Milestone {
	want := make([]string, 0, len(repos))
	for _, r := range repos {
		want = append(want, r.Normalized())
	}
	var out []*Milestone
	for _, m := range ms {
		if slices.Contains(want, m.Repo.Normalized()) {
			out = append(out, m)
		}
	}
	return out
}

// SortByDueDate returns milestones with a due date in ascending order,
// followed by those without one in their original order.
func SortByDueDate(ms []*Milestone) []*Milestone {
	var dated, undated []*Milestone
	for _, m := range ms {
		if m.DueDate != nil {
			dated = append(dated, m)
		} else {
			undated = append(undated, m)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].DueDate.Before(*dated[j].DueDate)
	})
	return append(dated, undated...)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
