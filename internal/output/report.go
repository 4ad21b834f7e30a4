package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"issuemirror/internal/model"

	"github.com/dustin/go-humanize"
)

// ReportSink collects repository mirrors and failed operations and writes a
// Markdown milestone report on Close.
type ReportSink struct {
	path   string
	file   *os.File
	mu     sync.Mutex
	models map[string]*model.Model
	failed []RepoStatus
	now    func() time.Time
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return &ReportSink{
		path:   path,
		file:   f,
		models: make(map[string]*model.Model),
		now:    time.Now,
	}, nil
}

// Write accepts *model.Model snapshots and RepoStatus values; other values are
// ignored. A later snapshot of the same repository replaces the earlier one.
func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case *model.Model:
		if t != nil {
			s.models[t.Key.Normalized()] = t
		}
	case RepoStatus:
		if !t.OK {
			s.failed = append(s.failed, t)
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.file.WriteString(s.render())
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (s *ReportSink) render() string {
	now := s.now()
	keys := make([]string, 0, len(s.models))
	for k := range s.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Issue mirror report\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n", now.UTC().Format(time.RFC1123))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Repository | Open | Closed | Open milestones | Overdue |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, k := range keys {
		m := s.models[k]
		open, closed := countIssues(m.Issues)
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n", m.Key, open, closed, len(model.OpenMilestones(m.Milestones)), len(overdue(m.Milestones, now)))
	}
	b.WriteString("\n")

	for _, k := range keys {
		writeRepoSection(&b, s.models[k], now)
	}

	if len(s.failed) > 0 {
		b.WriteString("## Failed operations\n\n")
		for _, f := range s.failed {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", f.Repo, f.Op, f.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeRepoSection(b *strings.Builder, m *model.Model, now time.Time) {
	fmt.Fprintf(b, "## %s\n\n", m.Key)

	milestones := model.SortByDueDate(model.OpenMilestones(m.Milestones))
	b.WriteString("### Milestones\n\n")
	if len(milestones) == 0 {
		b.WriteString("No open milestones.\n\n")
	}
	for _, ms := range milestones {
		fmt.Fprintf(b, "- **%s**: %d open, %d closed", ms.Title, ms.OpenIssues, ms.ClosedIssues)
		switch {
		case ms.DueDate == nil:
			b.WriteString(", no due date")
		case ms.IsOverdue(now):
			fmt.Fprintf(b, ", OVERDUE (due %s)", humanize.RelTime(*ms.DueDate, now, "ago", "from now"))
		default:
			fmt.Fprintf(b, ", due %s", humanize.RelTime(*ms.DueDate, now, "ago", "from now"))
		}
		if !ms.HasOpenIssues() {
			b.WriteString(", ready to close")
		}
		b.WriteString("\n")
	}
	if len(milestones) > 0 {
		b.WriteString("\n")
	}

	var unassigned []*model.Issue
	for _, i := range m.Issues {
		if i.Open && i.Assignee == nil {
			unassigned = append(unassigned, i)
		}
	}
	if len(unassigned) > 0 {
		b.WriteString("### Unassigned open issues\n\n")
		for _, i := range unassigned {
			fmt.Fprintf(b, "- #%d %s\n", i.Number, i.Title)
		}
		b.WriteString("\n")
	}

	if groups := labelGroups(m); len(groups) > 0 {
		b.WriteString("### Label groups\n\n")
		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		sort.Strings(names)
		for _, g := range names {
			fmt.Fprintf(b, "- %s: %s\n", g, strings.Join(groups[g], ", "))
		}
		b.WriteString("\n")
	}
}

func countIssues(issues []*model.Issue) (open, closed int) {
	for _, i := range issues {
		if i.Open {
			open++
		} else {
			closed++
		}
	}
	return open, closed
}

func overdue(ms []*model.Milestone, now time.Time) []*model.Milestone {
	var out []*model.Milestone
	for _, m := range ms {
		if m.Open && m.IsOverdue(now) {
			out = append(out, m)
		}
	}
	return out
}

// labelGroups maps each label group to "short (n open)" entries, counting the
// open issues carrying each label.
func labelGroups(m *model.Model) map[string][]string {
	counts := make(map[string]int)
	for _, i := range m.Issues {
		if !i.Open {
			continue
		}
		for _, name := range i.Labels {
			counts[name]++
		}
	}
	groups := make(map[string][]string)
	labels := append([]*model.Label(nil), m.Labels...)
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	for _, l := range labels {
		g, ok := l.Group()
		if !ok {
			continue
		}
		entry := fmt.Sprintf("%s (%d open)", l.ShortName(), counts[l.Name])
		if l.Exclusive() {
			entry += " [exclusive]"
		}
		groups[g] = append(groups[g], entry)
	}
	return groups
}
