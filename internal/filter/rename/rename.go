// Package rename implements a small, fully-Go filter.Filter that renames
// metrics by exact name match — the whole of what a "script" needs to be
// for the common case of normalizing a collector's naming convention (e.g.
// collectd's "host.cpu.idle" stitched onto a plugin prefix) into a cleaner
// downstream name, without embedding a scripting VM.
package rename

import "github.com/cernan/cernan/internal/filter"

// Filter renames any metric whose name exactly matches a key in Rules to
// the corresponding value. Metrics with no matching rule pass through
// unchanged. Logs and flushes are never touched.
type Filter struct {
	name  string
	rules map[string]string
}

// New builds a rename Filter named name, renaming according to rules
// (from name to name).
func New(name string, rules map[string]string) *Filter {
	r := make(map[string]string, len(rules))
	for k, v := range rules {
		r[k] = v
	}
	return &Filter{name: name, rules: r}
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) Tick(p *filter.Payload) {}

func (f *Filter) ProcessMetric(p *filter.Payload) {
	for i := range p.Metrics {
		if to, ok := f.rules[p.Metrics[i].Name]; ok {
			p.Metrics[i].Name = to
		}
	}
}

func (f *Filter) ProcessLog(p *filter.Payload) {}
