package repoio

import (
	"issuemirror/internal/model"

	"github.com/google/go-github/v81/github"
)

func toIssue(key model.RepoKey, in *github.Issue) *model.Issue {
	out := model.NewIssue(key, in.GetNumber(), in.GetTitle())
	out.Open = in.GetState() != "closed"
	out.HTMLURL = in.GetHTMLURL()
	out.UpdatedAt = in.GetUpdatedAt().Time
	for _, l := range in.Labels {
		if name := l.GetName(); name != "" {
			out.Labels = append(out.Labels, name)
		}
	}
	if ms := in.GetMilestone(); ms != nil && ms.Number != nil {
		n := ms.GetNumber()
		out.Milestone = &n
	}
	if login := assigneeLogin(in); login != "" {
		out.Assignee = &login
	}
	return out
}

// assigneeLogin returns the first assignee; the mirror tracks one per issue.
func assigneeLogin(in *github.Issue) string {
	if login := in.GetAssignee().GetLogin(); login != "" {
		return login
	}
	for _, u := range in.Assignees {
		if login := u.GetLogin(); login != "" {
			return login
		}
	}
	return ""
}

func toLabel(key model.RepoKey, in *github.Label) *model.Label {
	return &model.Label{Repo: key, Name: in.GetName(), Color: in.GetColor()}
}

func toMilestone(key model.RepoKey, in *github.Milestone) *model.Milestone {
	out := model.NewMilestone(key, in.GetNumber(), in.GetTitle())
	out.Description = in.GetDescription()
	out.Open = in.GetState() != "closed"
	out.OpenIssues = in.GetOpenIssues()
	out.ClosedIssues = in.GetClosedIssues()
	if in.DueOn != nil {
		due := in.GetDueOn().Time
		out.DueDate = &due
	}
	return out
}

func toUser(key model.RepoKey, in *github.User) *model.User {
	return &model.User{Repo: key, Login: in.GetLogin(), Name: in.GetName(), AvatarURL: in.GetAvatarURL()}
}

func convertAll[In, Out any](key model.RepoKey, items []In, conv func(model.RepoKey, In) Out) []Out {
	out := make([]Out, 0, len(items))
	for _, item := range items {
		out = append(out, conv(key, item))
	}
	return out
}
