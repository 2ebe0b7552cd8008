package filter

import (
	"context"
	"testing"
	"time"

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

// panicky is a Filter whose ProcessMetric always panics, exercising the
// recover-and-discard contract.
type panicky struct{}

func (panicky) Name() string            { return "panicky" }
func (panicky) Tick(p *Payload)          {}
func (panicky) ProcessMetric(p *Payload) { panic("boom") }
func (panicky) ProcessLog(p *Payload)    {}

func drainOne(t *testing.T, r *hopper.Reader) event.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	e, _, err := event.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunPassesThroughNoop(t *testing.T) {
	in := newTestChannel(t)
	out := newTestChannel(t)
	inReader, err := in.Reader("filter")
	if err != nil {
		t.Fatal(err)
	}
	outReader, err := out.Reader("downstream")
	if err != nil {
		t.Fatal(err)
	}

	if err := node.Emit(in, event.NewTelemetry("hits", event.Tags{}, event.KindCounter, 1, 1, false, 1)); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- Run(ctx, passthrough{}, []*hopper.Reader{inReader}, []*hopper.Channel{out}) }()

	got := drainOne(t, outReader)
	if got.Name != "hits" {
		t.Fatalf("got name %q, want hits", got.Name)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

type passthrough struct{}

func (passthrough) Name() string            { return "passthrough" }
func (passthrough) Tick(p *Payload)          {}
func (passthrough) ProcessMetric(p *Payload) {}
func (passthrough) ProcessLog(p *Payload)    {}

func TestRunRecoversPanicAndStillForwardsFlush(t *testing.T) {
	in := newTestChannel(t)
	out := newTestChannel(t)
	inReader, err := in.Reader("filter")
	if err != nil {
		t.Fatal(err)
	}
	outReader, err := out.Reader("downstream")
	if err != nil {
		t.Fatal(err)
	}

	if err := node.Emit(in, event.NewTelemetry("hits", event.Tags{}, event.KindCounter, 1, 1, false, 1)); err != nil {
		t.Fatal(err)
	}
	if err := node.Emit(in, event.NewTimerFlush(2)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, panicky{}, []*hopper.Reader{inReader}, []*hopper.Channel{out}) }()

	// The panicking metric's payload is discarded, so the only thing that
	// reaches the downstream channel is the forwarded flush.
	got := drainOne(t, outReader)
	if got.Variant != event.VariantTimerFlush {
		t.Fatalf("variant = %v, want TimerFlush (the panicked metric must not be forwarded)", got.Variant)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunMergesMultipleUpstreamReaders(t *testing.T) {
	inA := newTestChannel(t)
	inB := newTestChannel(t)
	out := newTestChannel(t)
	readerA, err := inA.Reader("filter")
	if err != nil {
		t.Fatal(err)
	}
	readerB, err := inB.Reader("filter")
	if err != nil {
		t.Fatal(err)
	}
	outReader, err := out.Reader("downstream")
	if err != nil {
		t.Fatal(err)
	}

	if err := node.Emit(inA, event.NewTelemetry("a", event.Tags{}, event.KindCounter, 1, 1, false, 1)); err != nil {
		t.Fatal(err)
	}
	if err := node.Emit(inB, event.NewTelemetry("b", event.Tags{}, event.KindCounter, 1, 1, false, 1)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, passthrough{}, []*hopper.Reader{readerA, readerB}, []*hopper.Channel{out})
	}()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		e := drainOne(t, outReader)
		seen[e.Name] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected events from both upstream readers, got %v", seen)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}
