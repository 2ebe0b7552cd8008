package statsd

import (
	"testing"

	"github.com/cernan/cernan/internal/event"
)

func TestParseLineCounter(t *testing.T) {
	s := New("edge0", ":0")
	e, ok := s.parseLine("foo:1|c")
	if !ok {
		t.Fatal("parseLine failed on valid counter line")
	}
	if e.Kind != event.KindCounter || e.Value != 1 || e.Name != "foo" {
		t.Fatalf("got %+v", e)
	}
}

func TestParseLineGaugeDelta(t *testing.T) {
	s := New("edge0", ":0")
	e, ok := s.parseLine("foo:-5|g")
	if !ok {
		t.Fatal("parseLine failed")
	}
	if e.Kind != event.KindGaugeDelta || e.Value != -5 {
		t.Fatalf("got %+v", e)
	}
}

func TestParseLineGaugeAbsolute(t *testing.T) {
	s := New("edge0", ":0")
	e, ok := s.parseLine("foo:42|g")
	if !ok {
		t.Fatal("parseLine failed")
	}
	if e.Kind != event.KindGaugeAbsolute || e.Value != 42 || !e.Persist {
		t.Fatalf("got %+v", e)
	}
}

func TestParseLineSampleRateAndTags(t *testing.T) {
	s := New("edge0", ":0")
	e, ok := s.parseLine("foo:1|c|@0.1|#host:a,env:prod")
	if !ok {
		t.Fatal("parseLine failed")
	}
	if e.SampleRate != 0.1 {
		t.Fatalf("sample rate = %v, want 0.1", e.SampleRate)
	}
	host, ok := e.Tags.Get("host")
	if !ok || host != "a" {
		t.Fatalf("tags = %+v", e.Tags)
	}
}

func TestParseLineSetTypeIsUnsupported(t *testing.T) {
	s := New("edge0", ":0")
	if _, ok := s.parseLine("foo:bar|s"); ok {
		t.Fatal("expected set type to be rejected")
	}
}

func TestParseLineMalformed(t *testing.T) {
	s := New("edge0", ":0")
	for _, line := range []string{"", "noColon", "foo:notanumber|c", "foo:1|unknown"} {
		if _, ok := s.parseLine(line); ok {
			t.Fatalf("expected parseLine(%q) to fail", line)
		}
	}
}
