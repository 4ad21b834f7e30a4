package model

import "strings"

const (
	exclusiveDelimiter    = "."
	nonExclusiveDelimiter = "-"
)

// Label is a repository label. Names of the form "group.name" belong to an
// exclusive group (an issue carries at most one of them); "group-name"
// belongs to a non-exclusive group.
type Label struct {
	Repo  RepoKey `json:"repo"`
	Name  string  `json:"name"`
	Color string  `json:"color,omitempty"`
}

// Group returns the label's group, if its name has one.
func (l *Label) Group() (string, bool) {
	for _, delim := range []string{exclusiveDelimiter, nonExclusiveDelimiter} {
		if group, _, ok := strings.Cut(l.Name, delim); ok && group != "" {
			return group, true
		}
	}
	return "", false
}

// ShortName is the name without its group prefix.
func (l *Label) ShortName() string {
	for _, delim := range []string{exclusiveDelimiter, nonExclusiveDelimiter} {
		if group, rest, ok := strings.Cut(l.Name, delim); ok && group != "" {
			return rest
		}
	}
	return l.Name
}

func (l *Label) Exclusive() bool {
	group, _, ok := strings.Cut(l.Name, exclusiveDelimiter)
	return ok && group != ""
}
