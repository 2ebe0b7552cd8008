// Package sink provides the shared machinery every sink uses on top of its
// own egress client: the buckets-driven flush loop and the retrying egress
// wrapper that only commits a reader's cursor once delivery is confirmed.
package sink

import (
	"context"
	"time"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/metrics"
	"github.com/cernan/cernan/internal/node"
	"github.com/jpillora/backoff"
)

// Sender delivers one flush's worth of emissions (or, for raw/log sinks,
// individual events bypassing Buckets entirely) to an external system. It
// returns an error to trigger Egress's retry loop.
type Sender interface {
	SendEmissions(ctx context.Context, emissions []buckets.Emission) error
	SendRaw(ctx context.Context, e event.Event) error
}

// Egress wraps a Sender with capped exponential backoff retry: 100ms base,
// doubling, capped at 30s. A send is retried indefinitely (or up to
// DropAfterRetries attempts, if configured) without ever dropping silently
// past that cap — it blocks the sink's reader from advancing instead,
// which backs up its channel exactly as the no-drop design intends.
type Egress struct {
	Sender           Sender
	DropAfterRetries int // 0 means retry forever

	b backoff.Backoff
}

func (g *Egress) backoffPolicy() *backoff.Backoff {
	if g.b.Max == 0 {
		g.b = backoff.Backoff{Min: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
	}
	return &g.b
}

// SendEmissions retries Sender.SendEmissions until it succeeds, ctx is
// cancelled, or DropAfterRetries is exceeded.
func (g *Egress) SendEmissions(ctx context.Context, emissions []buckets.Emission) error {
	bo := g.backoffPolicy()
	bo.Reset()
	attempts := 0
	for {
		err := g.Sender.SendEmissions(ctx, emissions)
		if err == nil {
			return nil
		}
		attempts++
		if g.DropAfterRetries > 0 && attempts >= g.DropAfterRetries {
			cernanlog.Errorf("sink: egress: dropping %d emissions after %d retries: %v", len(emissions), attempts, err)
			return nil
		}
		cernanlog.Warnf("sink: egress: send failed (attempt %d): %v", attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Duration()):
		}
	}
}

// SendRaw retries Sender.SendRaw the same way as SendEmissions.
func (g *Egress) SendRaw(ctx context.Context, e event.Event) error {
	bo := g.backoffPolicy()
	bo.Reset()
	attempts := 0
	for {
		err := g.Sender.SendRaw(ctx, e)
		if err == nil {
			return nil
		}
		attempts++
		if g.DropAfterRetries > 0 && attempts >= g.DropAfterRetries {
			cernanlog.Errorf("sink: egress: dropping raw event after %d retries: %v", attempts, err)
			return nil
		}
		cernanlog.Warnf("sink: egress: send failed (attempt %d): %v", attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Duration()):
		}
	}
}

// Config configures a Buckets-driven sink's bin width and gauge handling.
type Config struct {
	BinWidth              int64
	Phi                   []float64
	Eps                   float64
	GaugeTTLSeconds       int64
	GaugeCardinalityLimit int
	DropAfterRetries      int
	// Raw, when set, bypasses Buckets entirely: every Telemetry and LogLine
	// Event is handed straight to the egress client as it arrives, for
	// sinks like console that want at-most-once passthrough rather than
	// windowed aggregation.
	Raw bool
}

// Run drives one sink node: merges every upstream Reader in ins via
// node.FanIn and processes deliveries single-threaded against one shared
// Buckets instance, either aggregating and flushing on TimerFlush or
// (Config.Raw) forwarding every event immediately. Each delivery's own
// Reader cursor is committed only after Egress confirms delivery of
// whatever that delivery triggered — a sink with several upstream edges
// still advances each edge's cursor independently.
func Run(ctx context.Context, name string, cfg Config, ins []*hopper.Reader, egress *Egress) error {
	var b *buckets.Buckets
	if !cfg.Raw {
		b = buckets.New(buckets.Config{
			BinWidth:        cfg.BinWidth,
			Phi:             cfg.Phi,
			Eps:             cfg.Eps,
			GaugeTTLSeconds: cfg.GaugeTTLSeconds,
		})
		if cfg.GaugeCardinalityLimit > 0 {
			b = buckets.WithCardinalityLimit(b, cfg.GaugeCardinalityLimit)
		}
	}

	for d := range node.FanIn(ctx, ins) {
		if d.Err != nil {
			return d.Err
		}
		e := d.Event

		if cfg.Raw {
			if e.Variant == event.VariantTimerFlush {
				if err := d.Reader.Commit(); err != nil {
					return err
				}
				continue
			}
			if err := egress.SendRaw(ctx, e); err != nil {
				return err
			}
			if err := d.Reader.Commit(); err != nil {
				return err
			}
			continue
		}

		if e.Variant != event.VariantTimerFlush {
			// Ingest only touches in-process bucket state; the reader's
			// cursor must not advance past this event until the bin it
			// lands in has actually been flushed and durably sent, so a
			// crash never loses data that was only ever held in memory.
			b.Ingest(e)
			continue
		}

		emissions := b.Flush(e.WindowID)
		if len(emissions) > 0 {
			start := time.Now()
			err := egress.SendEmissions(ctx, emissions)
			metrics.ObserveFlush(name, time.Since(start))
			if err != nil {
				return err
			}
		}
		metrics.SketchCardinality.WithLabelValues(name).Set(float64(b.Cardinality()))
		// Commit now covers every data event this reader contributed since
		// its last commit, since its in-memory offset already advanced
		// past them on each Next() call — Commit just persists that
		// position. Other upstream readers feeding the same bin advance
		// independently, on their own flush delivery.
		if err := d.Reader.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Node adapts a Config/Egress pair into a full node.Sink, so topology
// construction can treat every sink implementation (console, native, nats,
// graphiteline) uniformly regardless of which concrete Sender it wraps.
type Node struct {
	NodeName string
	Cfg      Config
	Egress   *Egress
}

func (n *Node) Name() string { return n.NodeName }

func (n *Node) Run(ctx context.Context, ins []*hopper.Reader) error {
	return Run(ctx, n.NodeName, n.Cfg, ins, n.Egress)
}
