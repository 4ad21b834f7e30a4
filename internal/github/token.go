package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env:GITHUB_TOKEN"
	AuthTokenSourceGHEnv    AuthTokenSource = "env:GH_TOKEN"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

const defaultHost = "github.com"

var envSources = []struct {
	name   string
	source AuthTokenSource
}{
	{"GITHUB_TOKEN", AuthTokenSourceEnv},
	{"GH_TOKEN", AuthTokenSourceGHEnv},
}

// ResolveAuthToken resolves a GitHub access token for host (github.com when
// empty).
//
// Precedence:
//  1. provided (if non-empty)
//  2. GITHUB_TOKEN, then GH_TOKEN
//  3. GitHub CLI: `gh auth token -h <host>`
//
// An empty token with a nil error means no credentials were found. The token
// is never logged.
func ResolveAuthToken(ctx context.Context, provided, host string) (token string, source AuthTokenSource, err error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}
	for _, env := range envSources {
		if tok := strings.TrimSpace(os.Getenv(env.name)); tok != "" {
			return tok, env.source, nil
		}
	}

	if host = strings.TrimSpace(host); host == "" {
		host = defaultHost
	}
	tok, err := tokenFromGitHubCLI(ctx, host)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, AuthTokenSourceGitHubCL, nil
}

func tokenFromGitHubCLI(ctx context.Context, host string) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	// A broken gh credential helper must not hang the command.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "gh", "auth", "token", "-h", host)
	env := make([]string, 0, len(os.Environ())+1)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, "GH_PAGER=") {
			env = append(env, entry)
		}
	}
	cmd.Env = append(env, "GH_PAGER=cat")

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Not logged in, or gh failed otherwise. Its output is not surfaced.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}
