package model

import (
	"testing"
	"time"
)

func TestModel_ApplyUpdates(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	base := NewModel("owner/repo")
	base.Issues = []*Issue{NewIssue("owner/repo", 1, "one"), NewIssue("owner/repo", 3, "three")}
	base.Labels = []*Label{{Name: "bug"}}
	base.Freshness = Freshness{IssuesETag: "i0", LabelsETag: "l0", UpdatedAt: t0}

	updated := NewIssue("owner/repo", 3, "three (edited)")
	updated.Open = false
	u := &Updates{
		Repo:   "owner/repo",
		Issues: Result[*Issue]{Items: []*Issue{updated, NewIssue("owner/repo", 2, "two")}, ETag: "i1", Timestamp: t1},
		Labels: Result[*Label]{NotModified: true, ETag: "l0"},
		Milestones: Result[*Milestone]{
			Items: []*Milestone{NewMilestone("owner/repo", 1, "v1")},
			ETag:  "m1",
		},
	}

	merged := base.ApplyUpdates(u)

	if len(merged.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(merged.Issues))
	}
	for i, want := range []int{1, 2, 3} {
		if merged.Issues[i].Number != want {
			t.Fatalf("issue order: position %d has #%d", i, merged.Issues[i].Number)
		}
	}
	three, _ := merged.Issue(3)
	if three.Title != "three (edited)" || three.Open {
		t.Fatalf("issue 3 not replaced: %+v", three)
	}
	if len(merged.Labels) != 1 || merged.Freshness.LabelsETag != "l0" {
		t.Fatalf("labels should be kept when not modified")
	}
	if len(merged.Milestones) != 1 || merged.Freshness.MilestonesETag != "m1" {
		t.Fatalf("milestones should be replaced")
	}
	if merged.Freshness.IssuesETag != "i1" || !merged.Freshness.UpdatedAt.Equal(t1) {
		t.Fatalf("freshness not advanced: %+v", merged.Freshness)
	}

	// The base model is untouched.
	if len(base.Issues) != 2 || base.Issues[1].Title != "three" {
		t.Fatalf("base model mutated: %+v", base.Issues)
	}
}

func TestModel_ApplyNilUpdates(t *testing.T) {
	base := NewModel("o/r")
	base.Issues = []*Issue{NewIssue("o/r", 1, "x")}
	merged := base.ApplyUpdates(nil)
	if merged == base || len(merged.Issues) != 1 {
		t.Fatalf("expected a copy of the base model")
	}
}

func TestIssue_CloneIsDeep(t *testing.T) {
	ms := 4
	who := "octocat"
	i := &Issue{Number: 1, Labels: []string{"a"}, Milestone: &ms, Assignee: &who}
	c := i.Clone()
	c.Labels[0] = "b"
	*c.Milestone = 5
	*c.Assignee = "someone"
	if i.Labels[0] != "a" || *i.Milestone != 4 || *i.Assignee != "octocat" {
		t.Fatalf("clone shares state with original: %+v", i)
	}
	if (*Issue)(nil).Clone() != nil {
		t.Fatalf("nil clone must be nil")
	}
}
