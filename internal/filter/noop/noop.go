// Package noop implements a filter.Filter that passes every metric, log,
// and flush through unchanged. The topology builds it for a filter entry of
// type "noop"; it is not inserted for topologies that configure no filter.
package noop

import "github.com/cernan/cernan/internal/filter"

// Filter is a no-op filter.Filter: every callback returns without touching
// the payload.
type Filter struct {
	name string
}

// New builds a noop Filter named name.
func New(name string) *Filter {
	return &Filter{name: name}
}

func (f *Filter) Name() string                    { return f.name }
func (f *Filter) Tick(p *filter.Payload)           {}
func (f *Filter) ProcessMetric(p *filter.Payload)  {}
func (f *Filter) ProcessLog(p *filter.Payload)     {}
