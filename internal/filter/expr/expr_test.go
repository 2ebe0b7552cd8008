package expr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/filter"
)

func writeRule(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rule.expr")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessMetricDropsRejected(t *testing.T) {
	f, err := New("expr0", writeRule(t, `value > 10`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := &filter.Payload{}
	p.AppendMetric(event.NewTelemetry("kept", event.Tags{}, event.KindGaugeAbsolute, 0, 42, true, 1))
	p.AppendMetric(event.NewTelemetry("dropped", event.Tags{}, event.KindGaugeAbsolute, 0, 1, true, 1))

	f.ProcessMetric(p)

	if len(p.Metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(p.Metrics))
	}
	if p.Metrics[0].Name != "kept" {
		t.Fatalf("surviving metric = %q, want kept", p.Metrics[0].Name)
	}
}

func TestProcessMetricMatchesAgainstTags(t *testing.T) {
	f, err := New("expr0", writeRule(t, `tags["env"] == "prod"`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prod := event.Tags{}
	prod.Set("env", "prod")
	staging := event.Tags{}
	staging.Set("env", "staging")

	p := &filter.Payload{}
	p.AppendMetric(event.NewTelemetry("m", prod, event.KindCounter, 0, 1, false, 1))
	p.AppendMetric(event.NewTelemetry("m", staging, event.KindCounter, 0, 1, false, 1))

	f.ProcessMetric(p)

	if len(p.Metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(p.Metrics))
	}
	if v, _ := p.Metrics[0].Tags.Get("env"); v != "prod" {
		t.Fatalf("surviving metric env tag = %q, want prod", v)
	}
}

func TestNewRejectsUncompilableRule(t *testing.T) {
	if _, err := New("expr0", writeRule(t, `this is not valid expr syntax (`)); err == nil {
		t.Fatal("expected a compile error, got nil")
	}
}
