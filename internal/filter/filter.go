// Package filter defines the narrow callback contract a filter node
// implements — tick, process_metric, process_log — and the payload type
// those callbacks read and mutate in place.
package filter

import (
	"context"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/node"
)

// Filter is the capability interface every filter implementation provides.
// Each callback mutates p in place: editing, replacing, appending, or
// emptying its metrics and logs. State a filter keeps between calls (e.g. a
// counter, a renaming table) belongs to the concrete implementation, not to
// Payload — it lives only in process memory, never persisted.
type Filter interface {
	Name() string
	Tick(p *Payload)
	ProcessMetric(p *Payload)
	ProcessLog(p *Payload)
}

// Payload is the callback-visible view of the metric(s) and log(s) for one
// incoming Event. Indices are 1-based with negative indices counting from
// the end (-1 is the last element), matching the indexing convention every
// callback implementation is written against.
type Payload struct {
	Metrics []event.Event
	Logs    []event.Event
}

func normalize(i, n int) (int, bool) {
	switch {
	case i > 0:
		i--
	case i < 0:
		i = n + i
	default:
		return 0, false
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// MetricAt returns the metric at 1-based index i, if present.
func (p *Payload) MetricAt(i int) (event.Event, bool) {
	idx, ok := normalize(i, len(p.Metrics))
	if !ok {
		return event.Event{}, false
	}
	return p.Metrics[idx], true
}

// SetMetricAt replaces the metric at 1-based index i, reporting whether i
// was in range.
func (p *Payload) SetMetricAt(i int, e event.Event) bool {
	idx, ok := normalize(i, len(p.Metrics))
	if !ok {
		return false
	}
	p.Metrics[idx] = e
	return true
}

// AppendMetric adds a new metric to the end of the payload.
func (p *Payload) AppendMetric(e event.Event) {
	p.Metrics = append(p.Metrics, e)
}

// RemoveMetricAt deletes the metric at 1-based index i, if present.
func (p *Payload) RemoveMetricAt(i int) bool {
	idx, ok := normalize(i, len(p.Metrics))
	if !ok {
		return false
	}
	p.Metrics = append(p.Metrics[:idx], p.Metrics[idx+1:]...)
	return true
}

// LogAt returns the log line at 1-based index i, if present.
func (p *Payload) LogAt(i int) (event.Event, bool) {
	idx, ok := normalize(i, len(p.Logs))
	if !ok {
		return event.Event{}, false
	}
	return p.Logs[idx], true
}

// AppendLog adds a new log line to the end of the payload.
func (p *Payload) AppendLog(e event.Event) {
	p.Logs = append(p.Logs, e)
}

func (p *Payload) clear() {
	p.Metrics = nil
	p.Logs = nil
}

// Run drives one filter node: merges every upstream Reader in ins via
// node.FanIn, dispatches each delivered Event to the matching Filter
// callback, and enqueues whatever remains in the payload onto every
// channel in outs, preserving the fan-out-once-per-channel rule every
// other node follows. It returns when ctx is cancelled, or on an
// unrecoverable channel error.
func Run(ctx context.Context, f Filter, ins []*hopper.Reader, outs []*hopper.Channel) error {
	for d := range node.FanIn(ctx, ins) {
		if d.Err != nil {
			return d.Err
		}
		e := d.Event

		p := &Payload{}
		var forwardFlush bool

		switch e.Variant {
		case event.VariantTelemetry:
			p.AppendMetric(e)
			invoke(f.Name(), "process_metric", func() { f.ProcessMetric(p) }, p)

		case event.VariantLogLine:
			p.AppendLog(e)
			invoke(f.Name(), "process_log", func() { f.ProcessLog(p) }, p)

		case event.VariantTimerFlush:
			invoke(f.Name(), "tick", func() { f.Tick(p) }, p)
			forwardFlush = true
		}

		for _, out := range outs {
			for _, m := range p.Metrics {
				if err := node.Emit(out, m); err != nil {
					return err
				}
			}
			for _, l := range p.Logs {
				if err := node.Emit(out, l); err != nil {
					return err
				}
			}
			if forwardFlush {
				if err := node.Emit(out, e); err != nil {
					return err
				}
			}
		}

		if err := d.Reader.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// invoke calls fn, recovering a panic the way a callback's thrown exception
// is handled: logged, and the payload it was mutating is discarded (a
// flush tick's payload is ordinarily empty already, so discarding it costs
// nothing beyond the flush forward that happens regardless).
func invoke(filterName, callback string, fn func(), p *Payload) {
	defer func() {
		if r := recover(); r != nil {
			cernanlog.Errorf("filter %s: %s panicked: %v", filterName, callback, r)
			p.clear()
		}
	}()
	fn()
}
