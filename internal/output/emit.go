package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"issuemirror/internal/model"
)

// structured renders sink values as JSON or NDJSON.
//
//   - json: aggregates issues and repository statuses and writes one Summary on close
//   - ndjson: streams one Event per line, flushing after each
type structured struct {
	w       io.Writer
	format  string
	summary Summary
}

func validStructuredFormat(format string) bool {
	return format == "json" || format == "ndjson"
}

func (s *structured) write(v any) error {
	switch s.format {
	case "json":
		s.summary.add(v)
		return nil
	case "ndjson":
		e, ok := eventFor(v)
		if !ok {
			return nil
		}
		if err := json.NewEncoder(s.w).Encode(e); err != nil {
			return err
		}
		return flushIfPossible(s.w)
	default:
		return fmt.Errorf("unsupported structured format: %s", s.format)
	}
}

func (s *structured) close() error {
	if s.format != "json" {
		return nil
	}
	doc := s.summary
	if doc.Repos == nil {
		doc.Repos = []RepoStatus{}
	}
	if doc.Issues == nil {
		doc.Issues = []*model.Issue{}
	}
	encoder := json.NewEncoder(s.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}

// EmitSink writes structured output to an arbitrary writer, typically stdout
// when the console is in text mode or a pipe.
type EmitSink struct {
	mu  sync.Mutex
	out structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if !validStructuredFormat(format) {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{out: structured{w: w, format: format}}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.write(v)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.close()
}
