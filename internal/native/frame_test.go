package native

import (
	"bytes"
	"testing"

	"github.com/cernan/cernan/internal/event"
)

func TestEventRoundTrip(t *testing.T) {
	var tags event.Tags
	tags.Set("host", "a")
	tags.Set("env", "prod")

	cases := []event.Event{
		event.NewTelemetry("foo.bar", tags, event.KindCounter, 1234, 5.5, false, 0.5),
		event.NewTelemetry("neg.ts", event.Tags{}, event.KindGaugeAbsolute, -42, -1.25, true, 1),
		event.NewLogLine("/var/log/app.log", "boom", 99, tags, map[string]string{"level": "error"}),
		event.NewTimerFlush(100),
	}

	for i, want := range cases {
		buf := EncodeEvent(nil, want)
		got, n, err := DecodeEvent(buf)
		if err != nil {
			t.Fatalf("case %d: DecodeEvent: %v", i, err)
		}
		if n != len(buf) {
			t.Fatalf("case %d: consumed %d, want %d", i, n, len(buf))
		}
		if got.Variant != want.Variant || got.Name != want.Name || got.Kind != want.Kind ||
			got.TimestampS != want.TimestampS || got.Value != want.Value ||
			got.Persist != want.Persist || got.WindowID != want.WindowID {
			t.Fatalf("case %d: round-trip mismatch: got %+v, want %+v", i, got, want)
		}
		if !got.Tags.Equal(want.Tags) {
			t.Fatalf("case %d: tags mismatch: got %+v, want %+v", i, got.Tags, want.Tags)
		}
	}
}

func TestFrameRoundTripsMultipleEvents(t *testing.T) {
	events := []event.Event{
		event.NewTelemetry("a", event.Tags{}, event.KindCounter, 1, 1, false, 1),
		event.NewTelemetry("b", event.Tags{}, event.KindGaugeAbsolute, 2, 2, true, 1),
		event.NewTimerFlush(3),
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, events); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].Name != events[i].Name || got[i].Variant != events[i].Variant {
			t.Fatalf("event %d mismatch: got %+v, want %+v", i, got[i], events[i])
		}
	}
}

func TestDecodeEventSkipsUnknownFields(t *testing.T) {
	want := event.NewTelemetry("foo", event.Tags{}, event.KindCounter, 10, 1, false, 1)
	buf := EncodeEvent(nil, want)

	// Append a field number this decoder doesn't recognize yet, simulating
	// a newer writer's schema addition.
	buf = appendString(buf, 99, "future-field")

	got, _, err := DecodeEvent(buf)
	if err != nil {
		t.Fatalf("DecodeEvent with unknown trailing field: %v", err)
	}
	if got.Name != "foo" {
		t.Fatalf("got %+v", got)
	}
}
