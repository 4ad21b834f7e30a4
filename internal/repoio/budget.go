package repoio

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultHourlyLimit = 5000

// Budget tracks the GitHub rate limit reported by response headers and makes
// callers wait once it is spent.
//
// Every API call takes one unit with Acquire before the request and reports
// the response with Observe. When the window is exhausted, Acquire blocks
// until the reset time, or lets exactly one probe request through if the reset
// has passed without a response refreshing the numbers.
type Budget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	changed   chan struct{}
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewBudget(log logrus.FieldLogger) *Budget {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Budget{
		remaining: defaultHourlyLimit,
		reset:     time.Now().Add(time.Hour),
		changed:   make(chan struct{}),
		now:       time.Now,
		log:       log,
	}
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire takes n request units, waiting while the budget is exhausted or a
// Retry-After cooldown is in effect.
func (b *Budget) Acquire(ctx context.Context, n int) error {
	switch {
	case ctx == nil:
		return errors.New("Acquire: nil context")
	case b == nil:
		return errors.New("Acquire: nil Budget")
	case b.now == nil || b.changed == nil:
		return errors.New("Acquire: Budget not initialized (use NewBudget)")
	case n <= 0:
		return errors.New("Acquire: n must be positive")
	}
	for ; n > 0; n-- {
		if err := b.take(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Budget) take(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		changed := b.changed

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case now.Before(b.reset):
			until = b.reset
		case !b.probed:
			b.probed = true
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		if err := b.wait(ctx, now, until, changed); err != nil {
			return err
		}
	}
}

// wait blocks until until (forever when zero), a budget change or ctx ends.
func (b *Budget) wait(ctx context.Context, now, until time.Time, changed <-chan struct{}) error {
	var timeout <-chan time.Time
	if !until.IsZero() {
		d := until.Sub(now)
		if d < 0 {
			d = 0
		}
		b.log.WithField("wait", d.Truncate(time.Second)).Debug("rate limit budget exhausted")
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
	case <-timeout:
	}
	return nil
}

// Observe updates the budget from the rate limit headers of resp.
func (b *Budget) Observe(resp *http.Response) {
	if b == nil || resp == nil || b.now == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	updated := false
	if secs, ok := headerInt(resp, "Retry-After"); ok && secs > 0 {
		if until := b.now().Add(time.Duration(secs) * time.Second); until.After(b.cooldown) {
			b.cooldown = until
			updated = true
		}
	}
	if rem, ok := headerInt(resp, "X-RateLimit-Remaining"); ok && rem >= 0 && int(rem) != b.remaining {
		b.remaining = int(rem)
		updated = true
	}
	if epoch, ok := headerInt(resp, "X-RateLimit-Reset"); ok && epoch > 0 {
		if reset := time.Unix(epoch, 0); !reset.Equal(b.reset) {
			b.reset = reset
			updated = true
		}
	}
	if !updated {
		return
	}
	b.probed = false
	close(b.changed)
	b.changed = make(chan struct{})
}

func headerInt(resp *http.Response, name string) (int64, bool) {
	raw := resp.Header.Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
