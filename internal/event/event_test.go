package event

import "testing"

func TestBinStart(t *testing.T) {
	cases := []struct {
		ts, width, want int64
	}{
		{100, 1, 100},
		{105, 10, 100},
		{99, 10, 90},
		{0, 60, 0},
		{-5, 10, -10},
	}
	for _, c := range cases {
		if got := BinStart(c.ts, c.width); got != c.want {
			t.Errorf("BinStart(%d, %d) = %d, want %d", c.ts, c.width, got, c.want)
		}
	}
}

func TestAdjustedValueSampleRate(t *testing.T) {
	e := NewTelemetry("foo", Tags{}, KindCounter, 100, 1, false, 0.1)
	if got := e.AdjustedValue(); got != 10 {
		t.Errorf("AdjustedValue() = %v, want 10", got)
	}

	gauge := NewTelemetry("bar", Tags{}, KindGaugeAbsolute, 100, 5, true, 0.1)
	if got := gauge.AdjustedValue(); got != 5 {
		t.Errorf("gauge AdjustedValue() = %v, want 5 (sample rate ignored)", got)
	}
}

func TestKeyIgnoresTagOrder(t *testing.T) {
	var t1, t2 Tags
	t1.Set("a", "1")
	t1.Set("b", "2")
	t2.Set("b", "2")
	t2.Set("a", "1")

	k1 := NewKey("foo", t1, KindCounter)
	k2 := NewKey("foo", t2, KindCounter)
	if k1 != k2 {
		t.Errorf("keys with set-equal tags in different order should be equal: %+v vs %+v", k1, k2)
	}
}

func TestEncodeDecodeTelemetryRoundTrip(t *testing.T) {
	var tags Tags
	tags.Set("host", "node01")
	tags.Set("unit", "ms")
	in := NewTelemetry("request.latency", tags, KindTimer, 1234, 56.78, false, 1)

	buf := Encode(nil, in)
	out, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Decode consumed %d bytes, want %d", n, len(buf))
	}
	if out.Name != in.Name || out.Kind != in.Kind || out.TimestampS != in.TimestampS || out.Value != in.Value {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if !out.Tags.Equal(in.Tags) {
		t.Errorf("tags mismatch after round trip: got %+v, want %+v", out.Tags, in.Tags)
	}
}

func TestEncodeDecodeLogLineRoundTrip(t *testing.T) {
	var tags Tags
	tags.Set("service", "api")
	in := NewLogLine("/var/log/api.log", "panic: oh no", 42, tags, map[string]string{"level": "error"})

	buf := Encode(nil, in)
	out, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Decode consumed %d bytes, want %d", n, len(buf))
	}
	if out.Path != in.Path || out.Name != in.Name || out.TimestampS != in.TimestampS {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.Fields["level"] != "error" {
		t.Errorf("fields mismatch: got %+v", out.Fields)
	}
}

func TestEncodeDecodeTimerFlushRoundTrip(t *testing.T) {
	in := NewTimerFlush(99999)
	buf := Encode(nil, in)
	out, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(buf) || out.WindowID != in.WindowID || out.Variant != VariantTimerFlush {
		t.Errorf("round trip mismatch: got %+v", out)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, _, err := Decode(nil); err != ErrShortBuffer {
		t.Errorf("Decode(nil) error = %v, want ErrShortBuffer", err)
	}
}
