package config

import (
	"fmt"
	"os"
	"time"

	"issuemirror/internal/flags"

	"github.com/goccy/go-yaml"
)

// File is the on-disk YAML configuration. Every field is optional.
//
//	repos: [octo/hello, octo/world]
//	github:
//	  base_url: https://ghe.example.com/api/v3/
//	output:
//	  format: text
//	  report: milestones.md
//	  filter: open && assignee == ""
//	runtime:
//	  timeout: 2m
//	  per_page: 50
type File struct {
	Repos  []string `yaml:"repos"`
	GitHub struct {
		BaseURL string `yaml:"base_url"`
		Host    string `yaml:"host"`
	} `yaml:"github"`
	Output struct {
		Format    string `yaml:"format"`
		Out       string `yaml:"out"`
		OutFormat string `yaml:"out_format"`
		Report    string `yaml:"report"`
		Filter    string `yaml:"filter"`
		NoColor   *bool  `yaml:"no_color"`
	} `yaml:"output"`
	Runtime struct {
		Timeout string `yaml:"timeout"`
		PerPage int    `yaml:"per_page"`
		Verbose *bool  `yaml:"verbose"`
	} `yaml:"runtime"`
}

// LoadFile reads and strictly decodes a YAML config file; unknown keys are
// errors.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.UnmarshalWithOptions(b, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies the file's values into c for every setting whose flag was not
// set on the command line. changed reports whether a flag was set; nil means
// none were.
func (c *Config) Apply(f *File, changed func(flag string) bool) error {
	if f == nil {
		return nil
	}
	if changed == nil {
		changed = func(string) bool { return false }
	}
	setString := func(flag string, dst *string, v string) {
		if v != "" && !changed(flag) {
			*dst = v
		}
	}
	setBool := func(flag string, dst *bool, v *bool) {
		if v != nil && !changed(flag) {
			*dst = *v
		}
	}

	if len(f.Repos) > 0 && !changed(flags.FlagRepos) {
		c.Repos = append([]string(nil), f.Repos...)
	}
	setString(flags.FlagBaseURL, &c.GitHub.BaseURL, f.GitHub.BaseURL)
	setString(flags.FlagHost, &c.GitHub.Host, f.GitHub.Host)
	setString(flags.FlagFormat, &c.Output.Format, f.Output.Format)
	setString(flags.FlagOut, &c.Output.Out, f.Output.Out)
	setString(flags.FlagOutFormat, &c.Output.OutFormat, f.Output.OutFormat)
	setString(flags.FlagReport, &c.Output.Report, f.Output.Report)
	setString(flags.FlagFilter, &c.Output.Filter, f.Output.Filter)
	setBool(flags.FlagNoColor, &c.Output.NoColor, f.Output.NoColor)
	setBool(flags.FlagVerbose, &c.Runtime.Verbose, f.Runtime.Verbose)

	if f.Runtime.Timeout != "" && !changed(flags.FlagTimeout) {
		d, err := time.ParseDuration(f.Runtime.Timeout)
		if err != nil {
			return fmt.Errorf("invalid runtime.timeout %q: %w", f.Runtime.Timeout, err)
		}
		c.Runtime.Timeout = d
	}
	if f.Runtime.PerPage != 0 && !changed(flags.FlagPerPage) {
		c.Runtime.PerPage = f.Runtime.PerPage
	}
	return nil
}
