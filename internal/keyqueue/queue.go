// Package keyqueue serializes asynchronous work by key.
//
// Work submitted under the same key runs strictly one at a time, in submission
// order. Work under different keys runs concurrently with no ordering between
// keys. Keys are compared case-insensitively.
package keyqueue

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"issuemirror/internal/future"

	"github.com/sirupsen/logrus"
)

type Queue struct {
	mu   sync.Mutex
	keys map[string]*keyState
	log  logrus.FieldLogger
}

// keyState is the FIFO for one key. A key with no running or pending work is
// removed from the map, so absence doubles as the idle marker.
type keyState struct {
	running bool
	pending []func()
}

type Option func(*Queue)

// WithLogger sets the logger used for queue diagnostics (debug level).
func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		keys: make(map[string]*keyState),
		log:  logrus.StandardLogger(),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(q)
		}
	}
	return q
}

// NormalizeKey returns the canonical form of key used for mutual exclusion.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Submit schedules work under key and returns a future for its result.
//
// work is not invoked until every unit of work submitted earlier under the same
// key has completed. A panic inside work fails the future; in every case the
// key is released so the next queued unit can start.
func Submit[T any](q *Queue, key string, work func() (T, error)) *future.Future[T] {
	f := future.New[T]()
	if q == nil {
		f.Reject(errors.New("keyqueue: nil Queue (use New)"))
		return f
	}
	if work == nil {
		f.Reject(errors.New("keyqueue: nil work"))
		return f
	}

	k := NormalizeKey(key)
	q.enqueue(k, func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("keyqueue: work for %q panicked: %v", k, r))
			}
		}()
		v, err := work()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	})
	return f
}

func (q *Queue) enqueue(key string, run func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.keys == nil {
		q.keys = make(map[string]*keyState)
	}
	st, ok := q.keys[key]
	if !ok {
		st = &keyState{}
		q.keys[key] = st
	}
	if st.running {
		st.pending = append(st.pending, run)
		q.logger().WithFields(logrus.Fields{"key": key, "pending": len(st.pending)}).Debug("queued behind running work")
		return
	}
	q.startLocked(key, st, run)
}

// startLocked marks key as running and launches run. Callers hold q.mu.
func (q *Queue) startLocked(key string, st *keyState, run func()) {
	if st.running {
		panic(fmt.Sprintf("keyqueue: second unit of work started for running key %q", key))
	}
	st.running = true
	q.logger().WithField("key", key).Debug("starting work")
	go q.execute(key, run)
}

func (q *Queue) execute(key string, run func()) {
	defer q.advance(key)
	run()
}

// advance releases key and starts the next pending unit, if any.
func (q *Queue) advance(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.keys[key]
	if st == nil || !st.running {
		panic(fmt.Sprintf("keyqueue: completion for idle key %q", key))
	}
	st.running = false

	if len(st.pending) == 0 {
		delete(q.keys, key)
		q.logger().WithField("key", key).Debug("key idle")
		return
	}
	next := st.pending[0]
	st.pending[0] = nil
	st.pending = st.pending[1:]
	q.startLocked(key, st, next)
}

// Running reports whether a unit of work for key is in flight.
func (q *Queue) Running(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.keys[NormalizeKey(key)]
	return st != nil && st.running
}

// Pending returns how many units of work wait behind the running one for key.
func (q *Queue) Pending(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.keys[NormalizeKey(key)]
	if st == nil {
		return 0
	}
	return len(st.pending)
}

// ActiveKeys returns the number of keys with running or pending work.
func (q *Queue) ActiveKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

func (q *Queue) logger() logrus.FieldLogger {
	if q.log == nil {
		return logrus.StandardLogger()
	}
	return q.log
}
