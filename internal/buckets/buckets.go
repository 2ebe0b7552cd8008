// Package buckets implements the bucketed aggregation engine: Events are
// accumulated by (name, tags, kind, bin_start) and, on receipt of a
// TimerFlush, emitted in a deterministic order with correct reset
// semantics per kind.
//
// A Buckets value is owned by exactly one sink: it is never shared across
// goroutines, which is what lets ingest and flush avoid any internal
// locking — a single writer needs no more synchronization than that.
package buckets

import (
	"sort"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/sketch"
)

// aggregate holds the in-progress value for one bucket entry. Exactly one
// of (hasValue, s) is meaningful, selected by kind.IsSketch().
type aggregate struct {
	kind     event.Kind
	value    float64
	hasValue bool
	s        *sketch.Sketch
	tagset   event.Tags
}

func (a *aggregate) tags() event.Tags { return a.tagset }

// binTable holds all bucket entries for a single bin_start, in insertion
// order: within a bin, entries emit in the order their key was first seen.
type binTable struct {
	order   []event.Key
	entries map[event.Key]*aggregate
}

func newBinTable() *binTable {
	return &binTable{entries: make(map[event.Key]*aggregate)}
}

func (bt *binTable) get(k event.Key) (*aggregate, bool) {
	a, ok := bt.entries[k]
	return a, ok
}

func (bt *binTable) getOrCreate(k event.Key, kind event.Kind, tags event.Tags, phi []float64, eps float64) *aggregate {
	a, ok := bt.entries[k]
	if ok {
		return a
	}
	a = &aggregate{kind: kind, tagset: tags}
	if kind.IsSketch() {
		a.s = sketch.New(phi, eps)
	}
	bt.entries[k] = a
	bt.order = append(bt.order, k)
	return a
}

// gaugeEntry is the persistent-gauge overlay value for one (name, tags)
// absolute gauge. Persistent gauges sustain their last value across bins
// that receive no new point.
type gaugeEntry struct {
	name       string
	tags       event.Tags
	value      float64
	lastUpdate int64
}

// Emission is one row of a flush's output: either a real bucket entry or a
// synthesized gauge-sustain row.
type Emission struct {
	BinStart    int64
	Name        string
	Tags        event.Tags
	Kind        event.Kind
	Value       float64          // meaningful for scalar kinds
	Sketch      *sketch.Emission // meaningful for timer/histogram
	Synthesized bool
}

// Config configures a Buckets instance. BinWidth and Phi/Eps apply to every
// timer/histogram sketch created by this instance.
type Config struct {
	BinWidth int64
	Phi      []float64
	Eps      float64
	// GaugeTTLSeconds expires persistent-gauge overlay entries older than
	// this many seconds. 0 means never expire (the default: sustain forever).
	GaugeTTLSeconds int64
}

// Buckets accumulates Events by (name, tags, kind, bin_start) for one sink.
type Buckets struct {
	cfg Config

	bins map[int64]*binTable

	// overlay holds the plain, unbounded persistent-gauge map. When the
	// sink opts into gauge_cardinality_limit, overlayLRU is used instead
	// and overlay stays nil.
	overlay    map[event.GaugeKey]*gaugeEntry
	overlayLRU *lruOverlay
}

// New creates a Buckets instance. Unless WithCardinalityLimit is applied
// afterwards, the overlay never evicts — gauges sustain indefinitely by
// default.
func New(cfg Config) *Buckets {
	if cfg.BinWidth <= 0 {
		cfg.BinWidth = 1
	}
	return &Buckets{
		cfg:     cfg,
		bins:    make(map[int64]*binTable),
		overlay: make(map[event.GaugeKey]*gaugeEntry),
	}
}

// Cardinality reports the total number of distinct bucket entries held
// across every live (not yet fully flushed) bin, for self-observability
// reporting.
func (b *Buckets) Cardinality() int {
	n := 0
	for _, bt := range b.bins {
		n += len(bt.entries)
	}
	return n
}

// WithCardinalityLimit switches the persistent-gauge overlay to an
// LRU-bounded cache holding at most limit entries, trading the default
// "sustain forever" guarantee for a bounded memory footprint. Must be
// called before any Ingest.
func WithCardinalityLimit(b *Buckets, limit int) *Buckets {
	if limit <= 0 {
		return b
	}
	b.overlay = nil
	b.overlayLRU = newLRUOverlay(limit)
	return b
}

// Ingest applies a non-flush Event's kind rule to the appropriate bin.
func (b *Buckets) Ingest(e event.Event) {
	if e.Variant != event.VariantTelemetry {
		return
	}

	bin := event.BinStart(e.TimestampS, b.cfg.BinWidth)
	bt, ok := b.bins[bin]
	if !ok {
		bt = newBinTable()
		b.bins[bin] = bt
	}

	k := e.Key()
	a := bt.getOrCreate(k, e.Kind, e.Tags, b.cfg.Phi, b.cfg.Eps)

	switch e.Kind {
	case event.KindCounter:
		a.value += e.AdjustedValue()
		a.hasValue = true

	case event.KindGaugeAbsolute:
		a.value = e.Value
		a.hasValue = true
		b.setGaugeOverlay(e.Name, e.Tags, e.Value, e.TimestampS)

	case event.KindGaugeDelta:
		if !a.hasValue {
			a.value = b.overlayValue(e.Name, e.Tags)
		}
		a.value += e.Value
		a.hasValue = true
		b.setGaugeOverlay(e.Name, e.Tags, a.value, e.TimestampS)

	case event.KindRaw:
		a.value = e.Value
		a.hasValue = true

	case event.KindTimer, event.KindHistogram:
		a.s.Insert(e.Value)
	}
}

func (b *Buckets) setGaugeOverlay(name string, tags event.Tags, value float64, ts int64) {
	gk := event.NewGaugeKey(name, tags)
	if b.overlayLRU != nil {
		b.overlayLRU.set(gk, &gaugeEntry{name: name, tags: tags, value: value, lastUpdate: ts})
		return
	}
	b.overlay[gk] = &gaugeEntry{name: name, tags: tags, value: value, lastUpdate: ts}
}

func (b *Buckets) overlayValue(name string, tags event.Tags) float64 {
	gk := event.NewGaugeKey(name, tags)
	if b.overlayLRU != nil {
		if ge, ok := b.overlayLRU.get(gk); ok {
			return ge.value
		}
		return 0
	}
	if ge, ok := b.overlay[gk]; ok {
		return ge.value
	}
	return 0
}

// Flush emits every bin with bin_start+bin_width <= windowID, in ascending
// bin_start order, then drops them. Calling Flush twice with the same
// windowID emits nothing on the second call, since the first call already
// removed every bin that qualified.
func (b *Buckets) Flush(windowID int64) []Emission {
	var eligible []int64
	for bin := range b.bins {
		if bin+b.cfg.BinWidth <= windowID {
			eligible = append(eligible, bin)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i] < eligible[j] })

	var out []Emission
	seenGaugeInBin := make(map[int64]map[event.GaugeKey]bool, len(eligible))

	for _, bin := range eligible {
		bt := b.bins[bin]
		seen := make(map[event.GaugeKey]bool)
		seenGaugeInBin[bin] = seen

		for _, k := range bt.order {
			a := bt.entries[k]
			em := Emission{BinStart: bin, Name: k.Name, Kind: k.Kind}
			// Tags aren't retained on Key (only its fingerprint), so the
			// emission takes them from the aggregate, which keeps the tag
			// set it was created with during ingest (see aggregate.tags).
			em.Tags = a.tags()

			if a.kind.IsSketch() {
				emission := a.s.Emit()
				em.Sketch = &emission
			} else {
				em.Value = a.value
			}
			out = append(out, em)

			if a.kind == event.KindGaugeAbsolute || a.kind == event.KindGaugeDelta {
				seen[event.NewGaugeKey(k.Name, em.Tags)] = true
			}
		}

		delete(b.bins, bin)
	}

	out = append(out, b.sustainGauges(eligible, seenGaugeInBin)...)
	b.expireGauges(windowID)

	return out
}

// sustainGauges synthesizes one emission per emitted bin for every
// persistent gauge that didn't itself receive a point in that bin.
func (b *Buckets) sustainGauges(bins []int64, seenGaugeInBin map[int64]map[event.GaugeKey]bool) []Emission {
	var out []Emission
	b.rangeOverlay(func(gk event.GaugeKey, ge *gaugeEntry) {
		for _, bin := range bins {
			if seenGaugeInBin[bin][gk] {
				continue
			}
			out = append(out, Emission{
				BinStart:    bin,
				Name:        ge.name,
				Tags:        ge.tags,
				Kind:        event.KindGaugeAbsolute,
				Value:       ge.value,
				Synthesized: true,
			})
		}
	})
	return out
}

func (b *Buckets) expireGauges(windowID int64) {
	if b.cfg.GaugeTTLSeconds <= 0 {
		return
	}
	threshold := windowID - b.cfg.GaugeTTLSeconds
	if b.overlayLRU != nil {
		b.overlayLRU.expireBefore(threshold)
		return
	}
	for gk, ge := range b.overlay {
		if ge.lastUpdate < threshold {
			delete(b.overlay, gk)
		}
	}
}

func (b *Buckets) rangeOverlay(f func(event.GaugeKey, *gaugeEntry)) {
	if b.overlayLRU != nil {
		b.overlayLRU.rangeAll(f)
		return
	}
	for gk, ge := range b.overlay {
		f(gk, ge)
	}
}
