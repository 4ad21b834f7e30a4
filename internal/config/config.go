package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"issuemirror/internal/model"
)

type Config struct {
	// Repos lists the repositories to mirror as OWNER/REPO (see --repos).
	// Values may be provided as repeated flags and/or comma-separated lists.
	Repos []string

	GitHub  GitHub
	Output  Output
	Runtime Runtime
}

type GitHub struct {
	// BaseURL is a GitHub Enterprise Server API root (see --base-url).
	// Empty means api.github.com.
	BaseURL string

	// Host is the host passed to `gh auth token -h` when falling back to
	// GitHub CLI authentication. Derived from BaseURL when empty.
	Host string
}

type Output struct {
	// Format controls the console format (see --format).
	// Allowed values: text, json, ndjson.
	Format string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Report writes a Markdown milestone report to this path (see --report).
	Report string

	// Filter is an expression selecting which issues are listed (see --filter).
	Filter string

	// NoColor disables colored console output (see --no-color).
	NoColor bool
}

type Runtime struct {
	// Timeout bounds the whole run, including every GitHub request (see --timeout).
	// Must be > 0.
	Timeout time.Duration

	// Force discards incremental state and refetches everything (see --force).
	Force bool

	// PerPage is the GitHub page size for listings (see --per-page), 1..100.
	PerPage int

	// Verbose logs every GitHub API call at debug level (see --verbose).
	Verbose bool
}

func New() *Config {
	return &Config{
		Output: Output{
			Format: "text",
		},
		Runtime: Runtime{
			Timeout: 5 * time.Minute,
			PerPage: 100,
		},
	}
}

// Validate normalizes list and enum values and checks them. It does not
// require repositories; commands that need them call RepoKeys.
func (c *Config) Validate() error {
	c.Repos = splitCommaList(c.Repos)
	for _, r := range c.Repos {
		if _, err := model.ParseRepoKey(r); err != nil {
			return err
		}
	}

	c.Output.Format = normalizeEnumValue(c.Output.Format)
	if c.Output.Format == "" {
		return errors.New("--format must be one of: text, json, ndjson")
	}
	if c.Output.Format != "text" && c.Output.Format != "json" && c.Output.Format != "ndjson" {
		return fmt.Errorf("unsupported --format: %s (must be one of: text, json, ndjson)", c.Output.Format)
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}
	c.Output.Filter = strings.TrimSpace(c.Output.Filter)

	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	if c.Runtime.PerPage < 1 || c.Runtime.PerPage > 100 {
		return errors.New("--per-page must be between 1 and 100")
	}

	c.GitHub.BaseURL = strings.TrimSpace(c.GitHub.BaseURL)
	c.GitHub.Host = strings.TrimSpace(c.GitHub.Host)
	if c.GitHub.BaseURL != "" {
		host, err := hostOf(c.GitHub.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid --base-url value: %w", err)
		}
		if c.GitHub.Host == "" {
			c.GitHub.Host = host
		}
	}
	return nil
}

// RepoKeys returns the configured repositories, failing when none are given.
func (c *Config) RepoKeys() ([]model.RepoKey, error) {
	repos := splitCommaList(c.Repos)
	if len(repos) == 0 {
		return nil, errors.New("--repos must name at least one repository")
	}
	keys := make([]model.RepoKey, 0, len(repos))
	seen := make(map[string]bool, len(repos))
	for _, r := range repos {
		key, err := model.ParseRepoKey(r)
		if err != nil {
			return nil, err
		}
		if seen[key.Normalized()] {
			continue
		}
		seen[key.Normalized()] = true
		keys = append(keys, key)
	}
	return keys, nil
}

func hostOf(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%q", raw)
	}
	return strings.ToLower(u.Hostname()), nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
