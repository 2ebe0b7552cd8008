// Package pulse drives the single flush pulse that makes bucket aggregation
// boundaries explicit: a TimerFlush event is itself a unit of flow, queued
// through the same channels as ordinary telemetry so every downstream node
// observes flush boundaries in the same order as the data that led up to
// them.
package pulse

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
)

// DefaultInterval is used when New is given an interval <= 0. (A topology
// that doesn't configure flush_interval gets internal/config's default
// instead, before New is called.)
const DefaultInterval = time.Second

// Pulser ticks on a fixed interval and enqueues a TimerFlush event (carrying
// the tick's own unix-second timestamp as its window id) onto every channel
// it was given; the topology hands it every channel it opens. It is a source in
// every sense except that its payload is synthetic rather than read from an
// external protocol.
type Pulser struct {
	interval time.Duration
	outs     []*hopper.Channel
}

// New builds a Pulser that fires every interval (DefaultInterval if <= 0)
// onto each of outs.
func New(interval time.Duration, outs []*hopper.Channel) *Pulser {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pulser{interval: interval, outs: outs}
}

// Run ticks until ctx is cancelled, at which point it enqueues one final
// flush carrying math.MaxInt64 as its window id — the "flush everything,
// there will be no more ticks" signal every bucket interprets as "emit
// every bin, including ones that would otherwise still be open" — before
// returning nil. A failure to enqueue is fatal: it means a channel is
// degraded or irrecoverably full, and the pulser is the one node whose
// failure ends the whole process rather than just itself.
func (p *Pulser) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.fire(math.MaxInt64)

		case t := <-ticker.C:
			if err := p.fire(t.Unix()); err != nil {
				return err
			}
		}
	}
}

func (p *Pulser) fire(windowID int64) error {
	e := event.NewTimerFlush(windowID)
	buf := event.Encode(nil, e)
	for _, out := range p.outs {
		if err := out.Enqueue(buf); err != nil {
			cernanlog.Errorf("pulse: enqueue flush %d: %v", windowID, err)
			return fmt.Errorf("pulse: fatal: %w", err)
		}
	}
	return nil
}
