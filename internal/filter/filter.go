// Package filter selects cached issues with boolean expressions such as
//
//	open && "bug" in labels && assignee == ""
//	hasGroup(labels, "prio") && now() - updated > duration("720h")
//
// Expressions see repo, number, title, open, labels, milestone, assignee and
// updated, plus expr-lang's builtins.
package filter

import (
	"fmt"
	"strings"
	"time"

	"issuemirror/internal/model"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// env is the view of an issue an expression evaluates against. An absent
// milestone is 0 and an absent assignee is "".
type env struct {
	Repo      string    `expr:"repo"`
	Number    int       `expr:"number"`
	Title     string    `expr:"title"`
	Open      bool      `expr:"open"`
	Labels    []string  `expr:"labels"`
	Milestone int       `expr:"milestone"`
	Assignee  string    `expr:"assignee"`
	Updated   time.Time `expr:"updated"`
}

func newEnv(i *model.Issue) env {
	e := env{
		Repo:    i.Repo.Normalized(),
		Number:  i.Number,
		Title:   i.Title,
		Open:    i.Open,
		Labels:  i.Labels,
		Updated: i.UpdatedAt,
	}
	if i.Milestone != nil {
		e.Milestone = *i.Milestone
	}
	if i.Assignee != nil {
		e.Assignee = *i.Assignee
	}
	return e
}

type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses src. An empty (or blank) source yields a filter matching
// every issue.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(src,
		expr.Env(env{}),
		expr.AsBool(),
		expr.Function("hasGroup", hasGroup, new(func([]string, string) bool)),
	)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// hasGroup(labels, group) reports whether any label belongs to group.
func hasGroup(params ...any) (any, error) {
	labels, _ := params[0].([]string)
	group, _ := params[1].(string)
	for _, name := range labels {
		l := model.Label{Name: name}
		if g, ok := l.Group(); ok && strings.EqualFold(g, group) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

func (f *Filter) Match(issue *model.Issue) (bool, error) {
	if issue == nil {
		return false, nil
	}
	if f == nil || f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, newEnv(issue))
	if err != nil {
		return false, fmt.Errorf("filter %q on %s: %w", f.src, issue.Ref(), err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the matching issues in their original order.
func (f *Filter) Apply(issues []*model.Issue) ([]*model.Issue, error) {
	out := make([]*model.Issue, 0, len(issues))
	for _, issue := range issues {
		ok, err := f.Match(issue)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, issue)
		}
	}
	return out, nil
}
