package rename

import (
	"testing"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/filter"
)

func TestProcessMetricRenamesExactMatch(t *testing.T) {
	f := New("rename0", map[string]string{
		"collectd.host.cpu.idle": "collectd.cpu.idle",
	})

	p := &filter.Payload{}
	p.AppendMetric(event.NewTelemetry("collectd.host.cpu.idle", event.Tags{}, event.KindGaugeAbsolute, 0, 1, true, 1))
	p.AppendMetric(event.NewTelemetry("untouched.metric", event.Tags{}, event.KindCounter, 0, 1, false, 1))

	f.ProcessMetric(p)

	if got := p.Metrics[0].Name; got != "collectd.cpu.idle" {
		t.Fatalf("renamed metric name = %q, want collectd.cpu.idle", got)
	}
	if got := p.Metrics[1].Name; got != "untouched.metric" {
		t.Fatalf("non-matching metric was renamed to %q", got)
	}
}
