package repoop

import "errors"

var (
	// ErrRepositoryUnavailable wraps failures of remote open, refresh and
	// remove calls.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrRemoteEdit wraps failures of single-field edits pushed to the remote.
	ErrRemoteEdit = errors.New("remote edit failed")

	// ErrEditConflict marks an edit GitHub refused because the issue changed
	// after it was mirrored.
	ErrEditConflict = errors.New("issue changed on the remote since it was mirrored")
)
