package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"issuemirror/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// ConsoleSink prints results for a terminal ("text") or as structured output
// ("json", "ndjson").
type ConsoleSink struct {
	writer io.Writer
	format string
	mu     sync.Mutex
	out    structured
	now    func() time.Time

	ok, failed, open, closed, dim *color.Color
}

// NewConsoleSink returns a sink writing to w (stdout when nil). Colors are
// used in text mode only when colored is true.
func NewConsoleSink(w io.Writer, format string, colored bool) (*ConsoleSink, error) {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	if format != "text" && !validStructuredFormat(format) {
		return nil, fmt.Errorf("unsupported console format: %s", format)
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
		out:    structured{w: w, format: format},
		now:    time.Now,
		ok:     color.New(color.FgGreen),
		failed: color.New(color.FgRed, color.Bold),
		open:   color.New(color.FgGreen),
		closed: color.New(color.FgMagenta),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{s.ok, s.failed, s.open, s.closed, s.dim} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s, nil
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format != "text" {
		return s.out.write(v)
	}

	var line string
	switch t := v.(type) {
	case *model.Issue:
		if t == nil {
			return nil
		}
		line = s.issueLine(t)
	case RepoStatus:
		line = s.statusLine(t)
	default:
		// Lifecycle events are not printed in text mode.
		return nil
	}
	if _, err := fmt.Fprintln(s.writer, line); err != nil {
		return err
	}
	return flushIfPossible(s.writer)
}

func (s *ConsoleSink) issueLine(i *model.Issue) string {
	state := s.open.Sprint("open  ")
	if !i.Open {
		state = s.closed.Sprint("closed")
	}
	parts := []string{fmt.Sprintf("%-24s", i.Ref()), state, i.Title}
	if len(i.Labels) > 0 {
		parts = append(parts, s.dim.Sprintf("[%s]", strings.Join(i.Labels, ", ")))
	}
	if i.Milestone != nil {
		parts = append(parts, s.dim.Sprintf("milestone %d", *i.Milestone))
	}
	if i.Assignee != nil {
		parts = append(parts, "@"+*i.Assignee)
	}
	if !i.UpdatedAt.IsZero() {
		parts = append(parts, s.dim.Sprint("updated "+humanize.RelTime(i.UpdatedAt, s.now(), "ago", "from now")))
	}
	return strings.Join(parts, "  ")
}

func (s *ConsoleSink) statusLine(st RepoStatus) string {
	if !st.OK {
		return fmt.Sprintf("%s %s %s: %s", s.failed.Sprint("✗"), st.Op, st.Repo, st.Error)
	}
	detail := humanize.Comma(int64(st.Issues)) + " issues"
	if st.Elapsed > 0 {
		detail += ", " + st.Elapsed.Truncate(time.Millisecond).String()
	}
	return fmt.Sprintf("%s %s %s (%s)", s.ok.Sprint("✓"), st.Op, st.Repo, detail)
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == "text" {
		return nil
	}
	return s.out.close()
}
