// Package sketch implements a streaming quantile estimator: a biased,
// CKMS-family sketch with bounded rank error that also tracks
// count/sum/min/max in O(1).
//
// The quantile estimation itself is delegated to
// github.com/beorn7/perks/quantile — the same biased-quantile
// implementation prometheus/client_golang's own Summary metric uses
// internally — rather than reimplementing CKMS by hand.
package sketch

import (
	"math"

	"github.com/beorn7/perks/quantile"
)

// DefaultEpsilon is the recommended rank-error bound.
const DefaultEpsilon = 0.001

// DefaultPhi is the default φ set emitted for every timer/histogram flush.
var DefaultPhi = []float64{0.02, 0.09, 0.25, 0.50, 0.75, 0.90, 0.91, 0.95, 0.98, 0.99, 0.999}

// Sketch accumulates a stream of float64 samples and answers quantile,
// count, sum, min, and max queries. It is not safe for concurrent use;
// callers (buckets) provide their own serialization, one sketch per sink
// per bucket entry.
type Sketch struct {
	stream *quantile.Stream
	phi    []float64

	count int64
	sum   float64
	min   float64
	max   float64
}

// New creates a Sketch targeting the given φ values, each with rank-error
// bound eps. If phi is empty, DefaultPhi is used. If eps <= 0,
// DefaultEpsilon is used.
func New(phi []float64, eps float64) *Sketch {
	if len(phi) == 0 {
		phi = DefaultPhi
	}
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	targets := make(map[float64]float64, len(phi))
	for _, p := range phi {
		targets[p] = eps
	}

	return &Sketch{
		stream: quantile.NewTargeted(targets),
		phi:    phi,
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Insert adds a sample to the sketch.
func (s *Sketch) Insert(v float64) {
	s.stream.Insert(v)
	s.count++
	s.sum += v
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
}

// Count returns the number of samples inserted.
func (s *Sketch) Count() int64 { return s.count }

// Sum returns the sum of all inserted samples.
func (s *Sketch) Sum() float64 { return s.sum }

// Min returns the smallest inserted sample, or 0 if none were inserted.
func (s *Sketch) Min() float64 {
	if s.count == 0 {
		return 0
	}
	return s.min
}

// Max returns the largest inserted sample, or 0 if none were inserted.
func (s *Sketch) Max() float64 {
	if s.count == 0 {
		return 0
	}
	return s.max
}

// Mean returns the arithmetic mean of all inserted samples, or 0 if none
// were inserted.
func (s *Sketch) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Query returns the estimated value at rank phi, within the configured
// error bound.
func (s *Sketch) Query(phi float64) float64 {
	return s.stream.Query(phi)
}

// Phi returns the configured φ set, for emission.
func (s *Sketch) Phi() []float64 { return s.phi }

// Emission is the flush-time summary produced for a timer/histogram bucket
// entry.
type Emission struct {
	Count      int64
	Sum        float64
	Min        float64
	Max        float64
	Mean       float64
	Quantiles  map[float64]float64
}

// Emit produces the full flush emission tuple for this sketch.
func (s *Sketch) Emit() Emission {
	qs := make(map[float64]float64, len(s.phi))
	for _, p := range s.phi {
		qs[p] = s.Query(p)
	}
	return Emission{
		Count:     s.count,
		Sum:       s.sum,
		Min:       s.Min(),
		Max:       s.Max(),
		Mean:      s.Mean(),
		Quantiles: qs,
	}
}
