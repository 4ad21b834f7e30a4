package model

import (
	"fmt"
	"strconv"
	"strings"
)

// RepoKey identifies a GitHub repository as "owner/name".
//
// Keys keep the caller's spelling for display and API calls; identity is
// case-insensitive and always goes through Normalized.
type RepoKey string

// ParseRepoKey validates raw as OWNER/REPO.
func ParseRepoKey(raw string) (RepoKey, error) {
	s := strings.TrimSpace(raw)
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid repository %q: expected OWNER/REPO", raw)
	}
	if strings.ContainsAny(s, " \t#") {
		return "", fmt.Errorf("invalid repository %q: expected OWNER/REPO", raw)
	}
	return RepoKey(s), nil
}

// ParseIssueRef parses OWNER/REPO#NUMBER.
func ParseIssueRef(raw string) (RepoKey, int, error) {
	repoPart, numPart, ok := strings.Cut(strings.TrimSpace(raw), "#")
	if !ok {
		return "", 0, fmt.Errorf("invalid issue reference %q: expected OWNER/REPO#NUMBER", raw)
	}
	key, err := ParseRepoKey(repoPart)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid issue number in %q", raw)
	}
	return key, n, nil
}

func NormalizeRepoKey(key RepoKey) string {
	return strings.ToLower(strings.TrimSpace(string(key)))
}

func (k RepoKey) Normalized() string {
	return NormalizeRepoKey(k)
}

func (k RepoKey) Owner() string {
	owner, _, _ := strings.Cut(string(k), "/")
	return owner
}

func (k RepoKey) Name() string {
	_, name, _ := strings.Cut(string(k), "/")
	return name
}

// Equal reports whether k and other denote the same repository.
func (k RepoKey) Equal(other RepoKey) bool {
	return k.Normalized() == other.Normalized()
}

func (k RepoKey) String() string {
	return string(k)
}
