package model

import (
	"fmt"
	"slices"
	"time"
)

// Issue is the cached state of one GitHub issue.
type Issue struct {
	Repo      RepoKey   `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Open      bool      `json:"open"`
	Labels    []string  `json:"labels,omitempty"`
	Milestone *int      `json:"milestone,omitempty"`
	Assignee  *string   `json:"assignee,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	HTMLURL   string    `json:"html_url,omitempty"`
}

func NewIssue(repo RepoKey, number int, title string) *Issue {
	return &Issue{Repo: repo, Number: number, Title: title, Open: true}
}

// Ref returns OWNER/REPO#NUMBER.
func (i *Issue) Ref() string {
	return fmt.Sprintf("%s#%d", i.Repo, i.Number)
}

func (i *Issue) HasLabel(name string) bool {
	return slices.Contains(i.Labels, name)
}

// Clone returns a deep copy.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	c := *i
	c.Labels = slices.Clone(i.Labels)
	if i.Milestone != nil {
		m := *i.Milestone
		c.Milestone = &m
	}
	if i.Assignee != nil {
		a := *i.Assignee
		c.Assignee = &a
	}
	return &c
}
