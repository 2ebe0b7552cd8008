package pulse

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
)

func newTestChannel(t *testing.T) *hopper.Channel {
	t.Helper()
	ch, err := hopper.Open(hopper.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("hopper.Open: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestPulserTicksAndFiresFinalFlushOnCancel(t *testing.T) {
	ch := newTestChannel(t)
	p := New(10*time.Millisecond, []*hopper.Channel{ch})

	r, err := ch.Reader("sink0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()

	buf, err := r.Next(readCtx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	e, _, err := event.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if e.Variant != event.VariantTimerFlush {
		t.Fatalf("variant = %v, want TimerFlush", e.Variant)
	}
	if e.WindowID == math.MaxInt64 {
		t.Fatal("first tick already carries the terminal window id")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Drain until the terminal flush, tolerating any ticks queued between
	// cancel() and the ticker goroutine observing it.
	sawTerminal := false
	for i := 0; i < 8 && !sawTerminal; i++ {
		buf, err := r.Next(readCtx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		e, _, err := event.Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		if e.WindowID == math.MaxInt64 {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatal("never observed terminal flush (window id == math.MaxInt64) after cancel")
	}
}
