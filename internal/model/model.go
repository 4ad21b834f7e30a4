package model

import (
	"sort"
	"time"
)

// Freshness is the metadata that lets the next refresh be incremental.
type Freshness struct {
	IssuesETag     string    `json:"issues_etag,omitempty"`
	LabelsETag     string    `json:"labels_etag,omitempty"`
	MilestonesETag string    `json:"milestones_etag,omitempty"`
	UsersETag      string    `json:"users_etag,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Model is the local mirror of one repository.
type Model struct {
	Key        RepoKey      `json:"repo"`
	Issues     []*Issue     `json:"issues"`
	Labels     []*Label     `json:"labels"`
	Milestones []*Milestone `json:"milestones"`
	Users      []*User      `json:"users"`
	Freshness  Freshness    `json:"freshness"`
}

func NewModel(key RepoKey) *Model {
	return &Model{Key: key}
}

// Issue returns the issue with the given number.
func (m *Model) Issue(number int) (*Issue, bool) {
	for _, i := range m.Issues {
		if i.Number == number {
			return i, true
		}
	}
	return nil, false
}

func (m *Model) Milestone(id int) (*Milestone, bool) {
	for _, ms := range m.Milestones {
		if ms.ID == id {
			return ms, true
		}
	}
	return nil, false
}

// Fetched reports whether the model has been populated from the remote at least once.
func (m *Model) Fetched() bool {
	return !m.Freshness.UpdatedAt.IsZero()
}

// Clone returns a copy whose issues may be mutated without affecting m.
// Labels, milestones and users are shared; they are replaced wholesale, never
// edited in place.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Issues = make([]*Issue, len(m.Issues))
	for i, issue := range m.Issues {
		c.Issues[i] = issue.Clone()
	}
	c.Labels = append([]*Label(nil), m.Labels...)
	c.Milestones = append([]*Milestone(nil), m.Milestones...)
	c.Users = append([]*User(nil), m.Users...)
	return &c
}

// ApplyUpdates returns a new model with u merged into m.
//
// Updated issues replace cached issues with the same number and new ones are
// added; the result is ordered by issue number. Label, milestone and user
// listings replace the cached ones unless the server reported them unchanged.
func (m *Model) ApplyUpdates(u *Updates) *Model {
	merged := m.Clone()
	if u == nil {
		return merged
	}

	if !u.Issues.NotModified {
		byNumber := make(map[int]int, len(merged.Issues))
		for idx, issue := range merged.Issues {
			byNumber[issue.Number] = idx
		}
		for _, issue := range u.Issues.Items {
			if issue == nil {
				continue
			}
			if idx, ok := byNumber[issue.Number]; ok {
				merged.Issues[idx] = issue.Clone()
				continue
			}
			byNumber[issue.Number] = len(merged.Issues)
			merged.Issues = append(merged.Issues, issue.Clone())
		}
		sort.Slice(merged.Issues, func(i, j int) bool {
			return merged.Issues[i].Number < merged.Issues[j].Number
		})
		merged.Freshness.IssuesETag = u.Issues.ETag
	}
	if !u.Labels.NotModified {
		merged.Labels = append([]*Label(nil), u.Labels.Items...)
		merged.Freshness.LabelsETag = u.Labels.ETag
	}
	if !u.Milestones.NotModified {
		merged.Milestones = append([]*Milestone(nil), u.Milestones.Items...)
		merged.Freshness.MilestonesETag = u.Milestones.ETag
	}
	if !u.Users.NotModified {
		merged.Users = append([]*User(nil), u.Users.Items...)
		merged.Freshness.UsersETag = u.Users.ETag
	}
	if u.Issues.Timestamp.After(merged.Freshness.UpdatedAt) {
		merged.Freshness.UpdatedAt = u.Issues.Timestamp
	}
	return merged
}
