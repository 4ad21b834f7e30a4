package output

import (
	"time"

	"issuemirror/internal/model"
)

// Lifecycle event types emitted in NDJSON mode.
const (
	EventRunStarted  = "run.started"
	EventRepoStatus  = "repo.status"
	EventIssue       = "issue"
	EventRunFinished = "run.finished"
)

// RepoStatus is the outcome of one coordinator operation on a repository.
type RepoStatus struct {
	Repo    string        `json:"repo"`
	Op      string        `json:"op"`
	OK      bool          `json:"ok"`
	Issues  int           `json:"issues,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
}

// Event is a lifecycle record for NDJSON streaming output.
//
// Sinks accept Event values directly and wrap *model.Issue and RepoStatus
// values into "issue" and "repo.status" events. JSON mode instead aggregates
// issues and statuses into a single Summary document.
type Event struct {
	Type     string       `json:"type"`
	Repo     string       `json:"repo,omitempty"`
	Issue    *model.Issue `json:"issue,omitempty"`
	Status   *RepoStatus  `json:"status,omitempty"`
	Repos    int          `json:"repos,omitempty"`
	Issues   int          `json:"issues,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
}

// Summary is the aggregate document written in JSON mode.
type Summary struct {
	Repos  []RepoStatus   `json:"repos"`
	Issues []*model.Issue `json:"issues"`
}

// eventFor converts a sink value into its NDJSON event.
func eventFor(v any) (Event, bool) {
	switch t := v.(type) {
	case Event:
		return t, true
	case *model.Issue:
		if t == nil {
			return Event{}, false
		}
		return Event{Type: EventIssue, Repo: t.Repo.String(), Issue: t}, true
	case RepoStatus:
		return Event{Type: EventRepoStatus, Repo: t.Repo, Status: &t}, true
	default:
		return Event{}, false
	}
}

// add records v into the summary and reports whether it was aggregated.
func (s *Summary) add(v any) bool {
	switch t := v.(type) {
	case *model.Issue:
		if t == nil {
			return false
		}
		s.Issues = append(s.Issues, t)
	case RepoStatus:
		s.Repos = append(s.Repos, t)
	default:
		return false
	}
	return true
}
