package buckets

import (
	"testing"

	"github.com/cernan/cernan/internal/event"
)

func counter(name string, ts int64, value float64) event.Event {
	return event.NewTelemetry(name, event.Tags{}, event.KindCounter, ts, value, false, 1)
}

func gaugeAbs(name string, ts int64, value float64) event.Event {
	return event.NewTelemetry(name, event.Tags{}, event.KindGaugeAbsolute, ts, value, true, 1)
}

func gaugeDelta(name string, ts int64, value float64) event.Event {
	return event.NewTelemetry(name, event.Tags{}, event.KindGaugeDelta, ts, value, true, 1)
}

// TestScenarioSingleCounterEmission covers a single statsd counter at
// t=100, bin_width=1: flush at t=101 emits {foo, 1.0}.
func TestScenarioSingleCounterEmission(t *testing.T) {
	b := New(Config{BinWidth: 1})
	b.Ingest(counter("foo", 100, 1))

	ems := b.Flush(101)
	if len(ems) != 1 {
		t.Fatalf("len(emissions) = %d, want 1", len(ems))
	}
	if ems[0].BinStart != 100 || ems[0].Value != 1.0 || ems[0].Name != "foo" {
		t.Errorf("emission = %+v, want bin=100 value=1.0", ems[0])
	}
}

// TestScenarioGaugeDeltaThenAbsoluteSustain covers a gauge delta followed
// by an absolute write in a later bin, then sustain into a bin with no
// input at all.
func TestScenarioGaugeDeltaThenAbsoluteSustain(t *testing.T) {
	b := New(Config{BinWidth: 1})
	b.Ingest(gaugeDelta("x", 0, 3))
	b.Ingest(gaugeDelta("x", 0, -1))
	b.Ingest(gaugeAbs("x", 1, 10))

	ems := b.Flush(2)
	byBin := map[int64]float64{}
	for _, e := range ems {
		byBin[e.BinStart] = e.Value
	}
	if byBin[0] != 2 {
		t.Errorf("bin 0 = %v, want 2", byBin[0])
	}
	if byBin[1] != 10 {
		t.Errorf("bin 1 = %v, want 10", byBin[1])
	}

	// Bin 2 has no input but the gauge must sustain at 10 when flush
	// reaches window 3.
	ems2 := b.Flush(3)
	if len(ems2) != 1 || ems2[0].BinStart != 2 || ems2[0].Value != 10 || !ems2[0].Synthesized {
		t.Errorf("sustain emission = %+v, want synthesized bin=2 value=10", ems2)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	b := New(Config{BinWidth: 1})
	b.Ingest(counter("foo", 100, 1))

	first := b.Flush(101)
	second := b.Flush(101)

	if len(first) != 1 {
		t.Fatalf("first flush len = %d, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second flush with same windowID emitted %d events, want 0", len(second))
	}
}

func TestFlushOrderIsMonotonicInBinStart(t *testing.T) {
	b := New(Config{BinWidth: 1})
	b.Ingest(counter("foo", 105, 1))
	b.Ingest(counter("foo", 100, 1))
	b.Ingest(counter("foo", 103, 1))

	ems := b.Flush(200)
	for i := 1; i < len(ems); i++ {
		if ems[i].BinStart < ems[i-1].BinStart {
			t.Fatalf("emission order not monotonic: %+v", ems)
		}
	}
}

func TestCounterSampleRateAdjustment(t *testing.T) {
	b := New(Config{BinWidth: 1})
	b.Ingest(event.NewTelemetry("foo", event.Tags{}, event.KindCounter, 100, 1, false, 0.1))

	ems := b.Flush(101)
	if len(ems) != 1 || ems[0].Value != 10 {
		t.Errorf("emission = %+v, want value=10 (1/0.1)", ems)
	}
}

func TestTimerSketchEmission(t *testing.T) {
	b := New(Config{BinWidth: 1, Phi: []float64{0.5}, Eps: 0.01})
	for i := 1; i <= 10; i++ {
		b.Ingest(event.NewTelemetry("t", event.Tags{}, event.KindTimer, 100, float64(i*100), false, 1))
	}

	ems := b.Flush(101)
	if len(ems) != 1 {
		t.Fatalf("len(emissions) = %d, want 1", len(ems))
	}
	if ems[0].Sketch == nil {
		t.Fatal("expected sketch emission, got nil")
	}
	if ems[0].Sketch.Count != 10 {
		t.Errorf("sketch count = %d, want 10", ems[0].Sketch.Count)
	}
}

func TestGaugeTTLExpiry(t *testing.T) {
	b := New(Config{BinWidth: 1, GaugeTTLSeconds: 5})
	b.Ingest(gaugeAbs("x", 0, 42))
	b.Flush(1) // bin 0 emitted, gauge stays in overlay

	// Flush well past the TTL with no new bins to emit; the gauge should
	// be expired and not sustained further.
	ems := b.Flush(100)
	if len(ems) != 0 {
		t.Errorf("expected no emissions after TTL expiry window with no bins, got %+v", ems)
	}

	b.Ingest(counter("unrelated", 100, 1))
	ems = b.Flush(101)
	for _, e := range ems {
		if e.Name == "x" {
			t.Errorf("expired gauge x should not be sustained: %+v", e)
		}
	}
}
