package model

// User is an account that can be assigned to issues in a repository.
type User struct {
	Repo      RepoKey `json:"repo"`
	Login     string  `json:"login"`
	Name      string  `json:"name,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
}
