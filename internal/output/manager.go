package output

import (
	"errors"
	"fmt"
	"sync"
)

// Sink is a destination for issues, repository statuses and lifecycle events.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every value out to all of its sinks. It may be written from
// several goroutines; each value reaches every sink before the next one.
type Manager struct {
	mu    sync.Mutex
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
	return nil
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each("writing to", func(s Sink) error { return s.Write(v) })
}

func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each("closing", Sink.Close)
}

func (m *Manager) each(verb string, fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", verb, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors %s sinks: %w", verb, errors.Join(errs...))
	}
	return nil
}
