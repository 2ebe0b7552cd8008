// Package topology builds a runnable graph of source, filter, and sink
// nodes from parsed configuration: validating the graph's shape, wiring
// one disk-backed hopper.Channel per edge, and instantiating the concrete
// adapter each node's proto/type selects.
package topology

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cernan/cernan/internal/config"
	"github.com/cernan/cernan/internal/filter"
	exprfilter "github.com/cernan/cernan/internal/filter/expr"
	"github.com/cernan/cernan/internal/filter/noop"
	"github.com/cernan/cernan/internal/filter/rename"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/metrics"
	"github.com/cernan/cernan/internal/node"
	"github.com/cernan/cernan/internal/pulse"
	"github.com/cernan/cernan/internal/sink"
	"github.com/cernan/cernan/internal/sink/console"
	"github.com/cernan/cernan/internal/sink/graphiteline"
	nativesink "github.com/cernan/cernan/internal/sink/native"
	natssink "github.com/cernan/cernan/internal/sink/nats"
	"github.com/cernan/cernan/internal/source/graphite"
	nativesrc "github.com/cernan/cernan/internal/source/native"
	natssrc "github.com/cernan/cernan/internal/source/nats"
	"github.com/cernan/cernan/internal/source/statsd"
	natsbus "github.com/cernan/cernan/pkg/nats"
)

// Runner is one node's supervised goroutine body, named for error logs.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Topology is a fully-built, ready-to-run graph: every channel opened,
// every adapter instantiated, every node's Runner ready to hand to an
// errgroup.
type Topology struct {
	Runners []Runner
	Pulser  *pulse.Pulser

	// Channels maps each edge's name ("producer--target") to the channel
	// backing it, for a metrics poller to report depth against.
	Channels map[string]*hopper.Channel

	// DataDirectory is the configured root every channel's directory lives
	// under, for WatchMetrics to report aggregate disk usage against.
	DataDirectory string

	channels []*hopper.Channel
}

// WatchMetrics launches background pollers (returning immediately) that
// report every channel's depth and segment file count, plus the data
// directory's total on-disk usage, once per interval until ctx is
// cancelled.
func (t *Topology) WatchMetrics(ctx context.Context, interval time.Duration) {
	reporters := make(map[string]metrics.DepthReporter, len(t.Channels))
	for name, ch := range t.Channels {
		reporters[name] = ch
	}
	go metrics.WatchChannelDepths(ctx, reporters, interval)
	if t.DataDirectory != "" {
		go metrics.WatchDataDirectory(ctx, t.DataDirectory, interval)
	}
}

// Close releases every channel this topology opened. Call it after every
// Runner and the Pulser have stopped.
func (t *Topology) Close() error {
	var first error
	for _, ch := range t.channels {
		if err := ch.Close(); first == nil && err != nil {
			first = err
		}
	}
	return first
}

type kind int

const (
	kindSource kind = iota
	kindFilter
	kindSink
)

// Build parses cfg into a Topology. See the package comment for the shape
// it validates: (a) every source/filter has at least one forward, (b)
// every forward target names a node that exists and is enabled, (c) no
// cycles (sinks are always termini, since they carry no forwards list, so
// a cycle can only form among sources/filters), (d) at most one native
// source and one native sink.
func Build(cfg *config.Config) (*Topology, error) {
	b := &builder{
		cfg:           cfg,
		nodeKind:      map[string]kind{},
		forwardsOf:    map[string][]string{},
		outsByNode:    map[string][]*hopper.Channel{},
		readersByNode: map[string][]*hopper.Reader{},
	}
	if err := b.collectNodes(); err != nil {
		return nil, err
	}
	if err := b.validateGraph(); err != nil {
		return nil, err
	}
	if err := b.openChannels(); err != nil {
		return nil, err
	}
	return b.instantiate()
}

type builder struct {
	cfg *config.Config

	nodeKind   map[string]kind
	forwardsOf map[string][]string

	outsByNode    map[string][]*hopper.Channel
	readersByNode map[string][]*hopper.Reader

	channels     []*hopper.Channel
	channelNames map[string]*hopper.Channel

	nativeSources int
	nativeSinks   int
}

func (b *builder) collectNodes() error {
	for proto, instances := range b.cfg.Sources {
		for name, sc := range instances {
			if !sc.IsEnabled() {
				continue
			}
			fq := "sources." + proto + "." + name
			b.nodeKind[fq] = kindSource
			b.forwardsOf[fq] = sc.Forwards
			if proto == "native" {
				b.nativeSources++
			}
		}
	}
	for name, fc := range b.cfg.Filters {
		if !fc.IsEnabled() {
			continue
		}
		fq := "filters." + name
		b.nodeKind[fq] = kindFilter
		b.forwardsOf[fq] = fc.Forwards
	}
	for name, sk := range b.cfg.Sinks {
		if !sk.IsEnabled() {
			continue
		}
		fq := "sinks." + name
		b.nodeKind[fq] = kindSink
		if sk.Type == "native" {
			b.nativeSinks++
		}
	}
	return nil
}

func (b *builder) validateGraph() error {
	for fq, kind := range b.nodeKind {
		if kind == kindSink {
			continue
		}
		if len(b.forwardsOf[fq]) == 0 {
			return fmt.Errorf("topology: %s has no forwards", fq)
		}
	}
	for fq, targets := range b.forwardsOf {
		for _, t := range targets {
			if _, ok := b.nodeKind[t]; !ok {
				return fmt.Errorf("topology: %s forwards to unknown or disabled node %s", fq, t)
			}
		}
	}
	if cyc := findCycle(b.forwardsOf); cyc != "" {
		return fmt.Errorf("topology: cycle detected at %s", cyc)
	}
	if b.nativeSources > 1 {
		return fmt.Errorf("topology: at most one native source is allowed, found %d", b.nativeSources)
	}
	if b.nativeSinks > 1 {
		return fmt.Errorf("topology: at most one native sink is allowed, found %d", b.nativeSinks)
	}
	return nil
}

// findCycle runs a standard three-color DFS over the forwards graph and
// returns the name of a node found mid-cycle, or "" if the graph is a DAG.
func findCycle(forwardsOf map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(n string) string
	visit = func(n string) string {
		color[n] = gray
		for _, m := range forwardsOf[n] {
			switch color[m] {
			case gray:
				return m
			case white:
				if c := visit(m); c != "" {
					return c
				}
			}
		}
		color[n] = black
		return ""
	}
	// Sorted iteration keeps cycle-detection order deterministic across
	// runs, which matters for reproducing a reported build failure.
	names := make([]string, 0, len(forwardsOf))
	for n := range forwardsOf {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white {
			if c := visit(n); c != "" {
				return c
			}
		}
	}
	return ""
}

// openChannels opens one hopper.Channel per edge (producer, target),
// giving each N-forward producer N distinct channels per the fan-out
// duplication rule, and registers each as a forward channel of its
// producer and an inbound reader of its target.
func (b *builder) openChannels() error {
	names := make([]string, 0, len(b.forwardsOf))
	for n := range b.forwardsOf {
		names = append(names, n)
	}
	sort.Strings(names)

	b.channelNames = map[string]*hopper.Channel{}
	for _, fq := range names {
		for _, target := range b.forwardsOf[fq] {
			edge := fq + "--" + target
			dir := filepath.Join(b.cfg.DataDirectory, edge)
			ch, err := hopper.Open(hopper.Config{Dir: dir})
			if err != nil {
				return fmt.Errorf("topology: open channel %s -> %s: %w", fq, target, err)
			}
			b.channels = append(b.channels, ch)
			b.channelNames[edge] = ch
			b.outsByNode[fq] = append(b.outsByNode[fq], ch)

			r, err := ch.Reader("consumer")
			if err != nil {
				return fmt.Errorf("topology: open reader for %s -> %s: %w", fq, target, err)
			}
			b.readersByNode[target] = append(b.readersByNode[target], r)
		}
	}
	return nil
}

func (b *builder) instantiate() (*Topology, error) {
	topo := &Topology{channels: b.channels, Channels: b.channelNames, DataDirectory: b.cfg.DataDirectory}

	for proto, instances := range b.cfg.Sources {
		for name, sc := range instances {
			fq := "sources." + proto + "." + name
			if _, ok := b.nodeKind[fq]; !ok {
				continue // disabled
			}
			src, err := buildSource(proto, name, sc)
			if err != nil {
				return nil, fmt.Errorf("topology: %s: %w", fq, err)
			}
			outs := b.outsByNode[fq]
			topo.Runners = append(topo.Runners, Runner{
				Name: fq,
				Run:  func(ctx context.Context) error { return src.Run(ctx, outs) },
			})
		}
	}

	for name, fc := range b.cfg.Filters {
		fq := "filters." + name
		if _, ok := b.nodeKind[fq]; !ok {
			continue
		}
		f, err := buildFilter(name, fc)
		if err != nil {
			return nil, fmt.Errorf("topology: %s: %w", fq, err)
		}
		outs := b.outsByNode[fq]
		ins := b.readersByNode[fq]
		topo.Runners = append(topo.Runners, Runner{
			Name: fq,
			Run:  func(ctx context.Context) error { return filter.Run(ctx, f, ins, outs) },
		})
	}

	for name, sk := range b.cfg.Sinks {
		fq := "sinks." + name
		if _, ok := b.nodeKind[fq]; !ok {
			continue
		}
		n, err := buildSink(fq, sk)
		if err != nil {
			return nil, fmt.Errorf("topology: %s: %w", fq, err)
		}
		ins := b.readersByNode[fq]
		topo.Runners = append(topo.Runners, Runner{
			Name: fq,
			Run:  func(ctx context.Context) error { return n.Run(ctx, ins) },
		})
	}

	topo.Pulser = pulse.New(time.Duration(b.cfg.FlushIntervalSeconds)*time.Second, b.channels)
	return topo, nil
}

func buildSource(proto, name string, sc config.SourceConfig) (node.Source, error) {
	switch proto {
	case "statsd":
		return statsd.New(name, sc.Addr), nil
	case "graphite":
		return graphite.New(name, sc.Addr), nil
	case "native":
		return nativesrc.New(name, sc.Addr), nil
	case "nats":
		if sc.NATS == nil {
			return nil, fmt.Errorf("nats source requires a nats block")
		}
		return natssrc.New(name, *sc.NATS, sc.Subject), nil
	default:
		return nil, fmt.Errorf("unknown source proto %q", proto)
	}
}

func buildFilter(name string, fc config.FilterConfig) (filter.Filter, error) {
	switch fc.Type {
	case "", "noop":
		return noop.New(name), nil
	case "rename":
		return rename.New(name, fc.Rules), nil
	case "expr":
		return exprfilter.New(name, fc.Script)
	default:
		return nil, fmt.Errorf("unknown filter type %q", fc.Type)
	}
}

func buildSink(fq string, sk config.SinkConfig) (node.Sink, error) {
	var sender sink.Sender
	switch sk.Type {
	case "console":
		sender = console.New()
	case "native":
		sender = nativesink.New(sk.Addr)
	case "nats":
		if sk.NATS == nil {
			return nil, fmt.Errorf("nats sink requires a nats block")
		}
		client, err := natsbus.NewClient(*sk.NATS)
		if err != nil {
			return nil, fmt.Errorf("connect nats sink: %w", err)
		}
		sender = natssink.New(client, sk.Subject)
	case "graphite_line":
		sender = graphiteline.New(sk.Addr)
	default:
		return nil, fmt.Errorf("unknown sink type %q", sk.Type)
	}

	egress := &sink.Egress{Sender: sender, DropAfterRetries: sk.DropAfterRetries}
	return &sink.Node{
		NodeName: fq,
		Cfg: sink.Config{
			BinWidth:              sk.BinWidth,
			Phi:                   sk.Phi,
			Eps:                   sk.Eps,
			GaugeTTLSeconds:       sk.GaugeTTLSeconds,
			GaugeCardinalityLimit: sk.GaugeCardinalityLimit,
			DropAfterRetries:      sk.DropAfterRetries,
			Raw:                   sk.IsRaw(),
		},
		Egress: egress,
	}, nil
}

