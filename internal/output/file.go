package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink writes structured output to a file. The format is inferred from
// the extension (.json, .ndjson, .jsonl) when not given.
type FileSink struct {
	path string
	file *os.File
	mu   sync.Mutex
	out  structured
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}

	if format == "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			format = "json"
		case ".ndjson", ".jsonl":
			format = "ndjson"
		default:
			return nil, fmt.Errorf("cannot infer output format from file extension %q", ext)
		}
	}
	if !validStructuredFormat(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &FileSink{
		path: path,
		file: f,
		out:  structured{w: f, format: format},
	}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.write(v)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.out.close()
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
