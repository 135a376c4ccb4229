package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(25*time.Millisecond, 200*time.Millisecond)
	go d.Run(t.Context())

	for range 5 {
		d.Notify("content/a.md")
		d.Notify("content/b.md")
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case batch := <-d.Batches():
		require.Equal(t, []string{"content/a.md", "content/b.md"}, batch)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for batch")
	}

	select {
	case batch := <-d.Batches():
		t.Fatalf("expected a single batch for the burst, got %v", batch)
	case <-time.After(75 * time.Millisecond):
		// ok
	}
}

func TestDebouncerMaxDelayForcesBatch(t *testing.T) {
	// Quiet window longer than the gap between notifications, so only the
	// max delay can fire.
	d := NewDebouncer(200*time.Millisecond, 60*time.Millisecond)
	go d.Run(t.Context())

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.Notify("content/a.md")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case batch := <-d.Batches():
		require.Contains(t, batch, "content/a.md")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for max-delay batch")
	}
}

func TestDebouncerMergesWhileConsumerBusy(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 500*time.Millisecond)
	go d.Run(t.Context())

	d.Notify("content/a.md")
	// Let the first batch come due with nobody receiving, then add more.
	time.Sleep(60 * time.Millisecond)
	d.Notify("content/b.md")
	time.Sleep(10 * time.Millisecond)

	select {
	case batch := <-d.Batches():
		require.Equal(t, []string{"content/a.md", "content/b.md"}, batch)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for merged batch")
	}
}

func TestDebouncerClosesBatchesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	d := NewDebouncer(20*time.Millisecond, 100*time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("debouncer did not stop on cancel")
	}

	_, ok := <-d.Batches()
	require.False(t, ok, "batches channel must be closed after Run returns")
}
