package filter

import (
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before typed search input is applied.
const DefaultDebounce = 1000 * time.Millisecond

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The zero Debouncer uses the wall clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// WithDelay overrides the quiet period.
func WithDelay(d time.Duration) DebounceOption {
	return func(db *Debouncer) {
		if d > 0 {
			db.delay = d
		}
	}
}

// WithClock injects the scheduler used for the quiet-period timer.
func WithClock(c Clock) DebounceOption {
	return func(db *Debouncer) {
		if c != nil {
			db.clock = c
		}
	}
}

// WithOnApply registers the callback invoked with every applied term. It runs
// outside the debouncer's lock, on the timer goroutine for delayed terms and
// on the caller's goroutine for cleared input. Calls never overlap and arrive
// in the order the terms were applied; a term superseded before delivery is
// skipped. fn must not call back into Input, Flush or Cancel.
func WithOnApply(fn func(term string)) DebounceOption {
	return func(db *Debouncer) {
		db.onApply = fn
	}
}

// Debouncer coalesces rapid search input into a single applied term once the
// input has been quiet for the configured delay. Clearing the input applies
// the empty term immediately.
//
// It is meant for one logical caller; the locks only protect against the
// timer callback racing with Input.
type Debouncer struct {
	mu       sync.Mutex
	notifyMu sync.Mutex // serializes onApply; taken before mu
	delay    time.Duration
	clock    Clock
	onApply  func(string)
	buffered string
	applied  string
	pending  Timer
	seq      uint64
	applies  uint64 // bumped on every change to applied
}

// NewDebouncer creates a Debouncer with DefaultDebounce unless overridden.
func NewDebouncer(opts ...DebounceOption) *Debouncer {
	d := &Debouncer{
		delay: DefaultDebounce,
		clock: wallClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Input records newly typed text and restarts the quiet-period timer. Any
// previously pending term is dropped. Blank or whitespace-only text clears
// the search at once.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	d.seq++
	d.stopLocked()
	d.buffered = text

	if strings.TrimSpace(text) == "" {
		n := d.applyLocked("")
		d.mu.Unlock()
		d.notify(n)
		return
	}

	seq := d.seq
	d.pending = d.clock.AfterFunc(d.delay, func() { d.fire(seq) })
	d.mu.Unlock()
}

// Flush applies the buffered text now if a timer is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.seq++
	d.stopLocked()
	n := d.applyLocked(d.buffered)
	d.mu.Unlock()
	d.notify(n)
}

// Cancel drops the pending input without applying it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.stopLocked()
	d.buffered = d.applied
}

// Searching reports whether typed input is waiting for the quiet period.
func (d *Debouncer) Searching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Applied returns the most recently applied term.
func (d *Debouncer) Applied() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied
}

// Buffered returns the text most recently passed to Input.
func (d *Debouncer) Buffered() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffered
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// A newer Input, Flush or Cancel superseded this timer after it was
	// already due.
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	n := d.applyLocked(d.buffered)
	d.mu.Unlock()
	d.notify(n)
}

func (d *Debouncer) applyLocked(term string) uint64 {
	d.applied = term
	d.applies++
	return d.applies
}

// notify delivers the n-th applied term unless a later one exists; that later
// apply delivers its own term.
func (d *Debouncer) notify(n uint64) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	d.mu.Lock()
	if n != d.applies || d.onApply == nil {
		d.mu.Unlock()
		return
	}
	term, fn := d.applied, d.onApply
	d.mu.Unlock()
	fn(term)
}

func (d *Debouncer) stopLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
