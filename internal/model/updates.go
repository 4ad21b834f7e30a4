package model

import "time"

// Result is the envelope of one remote fetch: the entities returned, the
// freshness token reported by the server and the time of the fetch.
//
// NotModified means the server reported the same token as the previous fetch
// and Items carries nothing new.
type Result[T any] struct {
	Items       []T
	ETag        string
	Timestamp   time.Time
	NotModified bool
}

// Updates bundles the per-resource results of one repository refresh.
//
// Issues are incremental (only issues changed since the previous fetch);
// labels, milestones and users are full listings.
type Updates struct {
	Repo       RepoKey
	Issues     Result[*Issue]
	Labels     Result[*Label]
	Milestones Result[*Milestone]
	Users      Result[*User]
}
