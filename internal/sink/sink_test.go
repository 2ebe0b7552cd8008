package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/node"
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

type fakeSender struct {
	mu          sync.Mutex
	failUntil   int
	attempts    int
	emissions   [][]buckets.Emission
	rawEvents   []event.Event
}

func (f *fakeSender) SendEmissions(ctx context.Context, emissions []buckets.Emission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failUntil {
		return errors.New("fake send failure")
	}
	cp := make([]buckets.Emission, len(emissions))
	copy(cp, emissions)
	f.emissions = append(f.emissions, cp)
	return nil
}

func (f *fakeSender) SendRaw(ctx context.Context, e event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawEvents = append(f.rawEvents, e)
	return nil
}

func (f *fakeSender) sentEmissionBatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emissions)
}

func enqueueEvent(t *testing.T, ch *hopper.Channel, e event.Event) {
	t.Helper()
	if err := node.Emit(ch, e); err != nil {
		t.Fatalf("Emit: %v", err)
	}
}

func TestRunCommitsOnlyAfterFlushDelivered(t *testing.T) {
	ch := newTestChannel(t)
	r, err := ch.Reader("sink")
	if err != nil {
		t.Fatal(err)
	}

	tags := event.Tags{}
	enqueueEvent(t, ch, event.NewTelemetry("requests", tags, event.KindCounter, 10, 3, false, 1))

	sender := &fakeSender{}
	egress := &Egress{Sender: sender}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, "test-sink", Config{BinWidth: 1}, []*hopper.Reader{r}, egress) }()

	// Give the ingest a moment to land before checking that nothing has
	// been committed or sent yet — the data event alone must not advance
	// the reader's durable cursor or trigger any delivery.
	time.Sleep(20 * time.Millisecond)
	if sender.sentEmissionBatches() != 0 {
		t.Fatal("SendEmissions called before any flush was delivered")
	}
	if _, err := os.Stat(filepath.Join(ch.Dir(), "cursors", "sink")); !os.IsNotExist(err) {
		t.Fatalf("reader cursor committed before any flush was delivered (stat: %v)", err)
	}

	enqueueEvent(t, ch, event.NewTimerFlush(11))

	deadline := time.Now().Add(time.Second)
	for sender.sentEmissionBatches() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sender.sentEmissionBatches() != 1 {
		t.Fatalf("got %d emission batches, want 1", sender.sentEmissionBatches())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunRawModeForwardsEveryEventImmediately(t *testing.T) {
	ch := newTestChannel(t)
	r, err := ch.Reader("sink")
	if err != nil {
		t.Fatal(err)
	}

	sender := &fakeSender{}
	egress := &Egress{Sender: sender}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, "raw-sink", Config{Raw: true}, []*hopper.Reader{r}, egress) }()

	enqueueEvent(t, ch, event.NewTelemetry("hits", event.Tags{}, event.KindCounter, 1, 1, false, 1))
	enqueueEvent(t, ch, event.NewTelemetry("hits", event.Tags{}, event.KindCounter, 2, 1, false, 1))

	deadline := time.Now().Add(time.Second)
	for func() bool { sender.mu.Lock(); defer sender.mu.Unlock(); return len(sender.rawEvents) }() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	sender.mu.Lock()
	n := len(sender.rawEvents)
	sender.mu.Unlock()
	if n != 2 {
		t.Fatalf("got %d raw events forwarded, want 2", n)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}
