package watch

import (
	"context"
	"sort"
	"time"
)

// Debouncer coalesces bursts of file change notifications into batches.
// A batch is emitted once the file system has stayed quiet for the quiet
// window, or when changes keep arriving past the max delay. While the
// consumer is busy building, further changes merge into the pending batch,
// so a slow build is followed by exactly one catch-up.
type Debouncer struct {
	quiet time.Duration
	max   time.Duration

	in  chan string
	out chan []string
}

// NewDebouncer sizes the debounce windows from the watch configuration.
func NewDebouncer(quiet, max time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = 400 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * quiet
	}
	return &Debouncer{
		quiet: quiet,
		max:   max,
		in:    make(chan string, 256),
		out:   make(chan []string),
	}
}

// Notify queues a changed path. Called from the watcher goroutine.
func (d *Debouncer) Notify(path string) {
	d.in <- path
}

// Batches delivers coalesced change sets, sorted and deduplicated. The
// channel closes when Run returns.
func (d *Debouncer) Batches() <-chan []string { return d.out }

// Run owns all debouncer state in a single goroutine. It exits when ctx is
// canceled.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.out)

	quietTimer := time.NewTimer(time.Hour)
	stopTimer(quietTimer)
	maxTimer := time.NewTimer(time.Hour)
	stopTimer(maxTimer)

	var (
		quietC  <-chan time.Time
		maxC    <-chan time.Time
		pending = map[string]struct{}{}
		due     bool
	)

	for {
		// Arm delivery only when a window has expired. The batch is
		// recomputed each pass so paths arriving while the consumer is
		// busy still make it into the set.
		var (
			outC  chan []string
			batch []string
		)
		if due && len(pending) > 0 {
			batch = make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			outC = d.out
		}

		select {
		case <-ctx.Done():
			return

		case p := <-d.in:
			if len(pending) == 0 && !due {
				resetTimer(maxTimer, d.max)
				maxC = maxTimer.C
			}
			pending[p] = struct{}{}
			if !due {
				resetTimer(quietTimer, d.quiet)
				quietC = quietTimer.C
			}

		case <-quietC:
			due = true
			quietC, maxC = nil, nil

		case <-maxC:
			due = true
			quietC, maxC = nil, nil

		case outC <- batch:
			for _, p := range batch {
				delete(pending, p)
			}
			if len(pending) == 0 {
				due = false
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, after time.Duration) {
	stopTimer(t)
	t.Reset(after)
}
