// Package coalescer merges the bursts of USN records the kernel emits for
// a single logical file operation into one event per FRN per quiet
// window.
//
// Grounded on the teacher's pkg/gc.Collector: a struct holding config and
// stop/done channels, a background worker goroutine started by Start and
// joined with a bounded timeout by Stop.
package coalescer

import (
	"sync"
	"time"

	"github.com/marmos91/usnwatcher/internal/logger"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// DefaultWindow is the quiet interval used when Config.Window is zero.
const DefaultWindow = 50 * time.Millisecond

// MinWindow is the lowest permitted debounce window.
const MinWindow = 10 * time.Millisecond

// Sink receives flushed, merged events. It is invoked synchronously from
// the flush worker, once per FRN whose pending slot aged past the window.
type Sink func(*usnrecord.Event)

// Config controls coalescer behavior.
type Config struct {
	// Window is the quiet interval; a pending slot flushes once it has
	// seen no new record for this long. Clamped to MinWindow.
	Window time.Duration
}

type pendingSlot struct {
	mu       sync.Mutex
	event    *usnrecord.Event
	lastSeen time.Time
}

// Coalescer is safe for concurrent use. The pending table is a concurrent
// map keyed by FRN; each slot carries its own lock so that merging one
// FRN's burst never blocks another's.
type Coalescer struct {
	window time.Duration
	sink   Sink

	mu      sync.Mutex // guards pending map membership only
	pending map[uint64]*pendingSlot

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New creates a Coalescer that delivers flushed events to sink.
func New(cfg Config, sink Sink) *Coalescer {
	window := cfg.Window
	if window == 0 {
		window = DefaultWindow
	}
	if window < MinWindow {
		window = MinWindow
	}

	return &Coalescer{
		window:  window,
		sink:    sink,
		pending: make(map[uint64]*pendingSlot),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background flush worker, which wakes every debounce
// window and flushes any slot whose lastSeen is older than the window.
func (c *Coalescer) Start() {
	go c.worker()
}

// Dispose cancels the flush worker and waits for it to exit, bounded by
// timeout.
func (c *Coalescer) Dispose(timeout time.Duration) {
	c.once.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
	case <-time.After(timeout):
		logger.Warn("coalescer: flush worker did not stop within %s", timeout)
	}
}

func (c *Coalescer) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flushAged()
		case <-c.stopCh:
			return
		}
	}
}

// flushAged flushes every slot whose lastSeen is older than the window.
func (c *Coalescer) flushAged() {
	cutoff := time.Now().Add(-c.window)

	c.mu.Lock()
	candidates := make([]uint64, 0, len(c.pending))
	for frn := range c.pending {
		candidates = append(candidates, frn)
	}
	c.mu.Unlock()

	for _, frn := range candidates {
		c.mu.Lock()
		slot, ok := c.pending[frn]
		c.mu.Unlock()
		if !ok {
			continue
		}

		slot.mu.Lock()
		aged := slot.lastSeen.Before(cutoff) || slot.lastSeen.Equal(cutoff)
		var ev *usnrecord.Event
		if aged {
			ev = slot.event
		}
		slot.mu.Unlock()

		if !aged {
			continue
		}

		c.mu.Lock()
		delete(c.pending, frn)
		c.mu.Unlock()

		c.deliver(ev)
	}
}

func (c *Coalescer) deliver(ev *usnrecord.Event) {
	// The emitted timestamp is the flush time, not the first observed
	// event time: this reflects that the merged event represents the
	// completion of a burst, not its start.
	ev.Timestamp = time.Now().UTC()
	c.sink(ev)
}

// Add merges event into the pending slot for its FRN, creating the slot
// if absent.
func (c *Coalescer) Add(event *usnrecord.Event) {
	c.mu.Lock()
	slot, ok := c.pending[event.FRN]
	if !ok {
		slot = &pendingSlot{}
		c.pending[event.FRN] = slot
	}
	c.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.event == nil {
		slot.event = event.Clone()
	} else {
		merge(slot.event, event)
	}
	slot.lastSeen = time.Now()
}

// merge folds next into base per the coalescer's merge rule: greatest
// USN, latest timestamp, union of reason tokens, OR of raw mask and
// attributes, most-recent non-empty filename/fullPath/newPath, first
// non-empty oldPath, sticky directory flag.
func merge(base, next *usnrecord.Event) {
	if next.USN > base.USN {
		base.USN = next.USN
	}
	if next.Timestamp.After(base.Timestamp) {
		base.Timestamp = next.Timestamp
	}

	base.Reasons = unionReasons(base.Reasons, next.Reasons)
	base.ReasonRaw |= next.ReasonRaw
	base.Attributes |= next.Attributes

	if next.FileName != "" {
		base.FileName = next.FileName
	}
	if next.FullPath != "" {
		base.FullPath = next.FullPath
	}
	if base.OldPath == "" && next.OldPath != "" {
		base.OldPath = next.OldPath
	}
	if next.NewPath != "" {
		base.NewPath = next.NewPath
	}
	if next.IsDirectory {
		base.IsDirectory = true
	}
}

func unionReasons(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, r := range a {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	for _, r := range b {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// FlushAll drains every pending slot unconditionally, delivering each to
// sink. Used at shutdown so no event that has not yet aged out is lost.
func (c *Coalescer) FlushAll() {
	c.mu.Lock()
	frns := make([]uint64, 0, len(c.pending))
	for frn := range c.pending {
		frns = append(frns, frn)
	}
	c.mu.Unlock()

	for _, frn := range frns {
		c.mu.Lock()
		slot, ok := c.pending[frn]
		if ok {
			delete(c.pending, frn)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		slot.mu.Lock()
		ev := slot.event
		slot.mu.Unlock()

		c.deliver(ev)
	}
}

// Pending reports how many FRNs currently have a buffered, unflushed
// event. Exposed for tests and metrics.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
