// Package event defines cernan's uniform in-flight representation: the
// Event sum type (Telemetry, LogLine, TimerFlush) and the per-event-kind
// aggregation rules.
package event

// Kind is the closed set of telemetry aggregation kinds.
type Kind uint8

const (
	KindCounter Kind = iota
	KindGaugeAbsolute
	KindGaugeDelta
	KindTimer
	KindHistogram
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGaugeAbsolute:
		return "gauge"
	case KindGaugeDelta:
		return "gauge_delta"
	case KindTimer:
		return "timer"
	case KindHistogram:
		return "histogram"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// IsSketch reports whether this kind is aggregated via a quantile sketch
// rather than a scalar accumulator.
func (k Kind) IsSketch() bool {
	return k == KindTimer || k == KindHistogram
}

// Variant distinguishes the three Event sum-type members.
type Variant uint8

const (
	VariantTelemetry Variant = iota
	VariantLogLine
	VariantTimerFlush
)

// Event is the single unit of flow between sources, filters, and sinks. It
// is a tagged union over Variant; only the fields relevant to the active
// variant are meaningful, mirroring a tagged union of three shapes.
type Event struct {
	Variant Variant

	// Telemetry fields.
	Name       string
	Tags       Tags
	Kind       Kind
	TimestampS int64
	Value      float64
	Persist    bool
	SampleRate float64 // statsd sample rate, (0,1]; 1 if not applicable

	// LogLine fields.
	Path   string
	Fields map[string]string

	// TimerFlush fields.
	WindowID int64
}

// NewTelemetry constructs a Telemetry Event. sampleRate must be in (0,1];
// pass 1 when the source protocol has no sampling concept.
func NewTelemetry(name string, tags Tags, kind Kind, ts int64, value float64, persist bool, sampleRate float64) Event {
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	return Event{
		Variant:    VariantTelemetry,
		Name:       name,
		Tags:       tags,
		Kind:       kind,
		TimestampS: ts,
		Value:      value,
		Persist:    persist,
		SampleRate: sampleRate,
	}
}

// NewLogLine constructs a LogLine Event.
func NewLogLine(path string, value string, ts int64, tags Tags, fields map[string]string) Event {
	return Event{
		Variant:    VariantLogLine,
		Path:       path,
		TimestampS: ts,
		Tags:       tags,
		Fields:     fields,
		Name:       value,
	}
}

// NewTimerFlush constructs the synthetic flush pulse for windowID.
func NewTimerFlush(windowID int64) Event {
	return Event{Variant: VariantTimerFlush, WindowID: windowID}
}

// AdjustedValue applies the statsd sample-rate correction: only counters
// are rate-adjusted, everything else ignores the rate.
func (e Event) AdjustedValue() float64 {
	if e.Kind == KindCounter && e.SampleRate > 0 && e.SampleRate < 1 {
		return e.Value / e.SampleRate
	}
	return e.Value
}

// BinStart computes floor(ts/binWidth)*binWidth, the bucket entry key's
// time component.
func BinStart(ts, binWidth int64) int64 {
	if binWidth <= 0 {
		binWidth = 1
	}
	bin := ts / binWidth
	if ts%binWidth != 0 && ts < 0 {
		bin--
	}
	return bin * binWidth
}

// Key identifies a bucket entry: (name, tags, kind), independent of time.
// Two Events with set-equal tags produce an identical Key regardless of
// tag insertion order: tag equality is set equality, not sequence equality.
type Key struct {
	Name string
	Kind Kind
	tags string // Tags.Fingerprint(), precomputed once at ingest
}

// NewKey builds the bucket entry key for e. Computing the tag fingerprint
// once here (rather than on every map access) avoids re-walking the tag
// list on the hot ingest path.
func NewKey(name string, tags Tags, kind Kind) Key {
	return Key{Name: name, Kind: kind, tags: tags.Fingerprint()}
}

func (e Event) Key() Key {
	return NewKey(e.Name, e.Tags, e.Kind)
}

// GaugeKey identifies a persistent-gauge overlay entry: (name, tags),
// independent of kind and bin.
type GaugeKey struct {
	Name string
	tags string
}

func NewGaugeKey(name string, tags Tags) GaugeKey {
	return GaugeKey{Name: name, tags: tags.Fingerprint()}
}
