package graphite

import (
	"testing"

	"github.com/cernan/cernan/internal/event"
)

func TestParseLine(t *testing.T) {
	e, ok := parseLine("servers.foo.load 1.5 1000")
	if !ok {
		t.Fatal("parseLine failed")
	}
	if e.Name != "servers.foo.load" || e.Value != 1.5 || e.TimestampS != 1000 || e.Kind != event.KindRaw {
		t.Fatalf("got %+v", e)
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{"", "only.two 1", "name notanumber 1000", "name 1.5 notanint"} {
		if _, ok := parseLine(line); ok {
			t.Fatalf("expected parseLine(%q) to fail", line)
		}
	}
}
