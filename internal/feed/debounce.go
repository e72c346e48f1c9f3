package feed

import (
	"sync"
	"time"
)

// DefaultSearchDebounce is the quiescence window applied to search input
// before a filter change is propagated to the store.
const DefaultSearchDebounce = 800 * time.Millisecond

// Debouncer delays a callback until its input has been quiet for the
// configured window. Each Trigger restarts the window and supersedes any
// pending callback.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer constructs a debouncer. A non-positive delay falls back to
// DefaultSearchDebounce.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules fn to run after the quiescence window, replacing any
// previously scheduled callback.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
