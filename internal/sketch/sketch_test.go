package sketch

import (
	"math"
	"testing"
)

func TestSketchCountSumMinMax(t *testing.T) {
	s := New(nil, 0)
	for _, v := range []float64{3, 1, 4, 1, 5, 9, 2, 6} {
		s.Insert(v)
	}

	if s.Count() != 8 {
		t.Errorf("Count() = %d, want 8", s.Count())
	}
	if s.Sum() != 31 {
		t.Errorf("Sum() = %v, want 31", s.Sum())
	}
	if s.Min() != 1 {
		t.Errorf("Min() = %v, want 1", s.Min())
	}
	if s.Max() != 9 {
		t.Errorf("Max() = %v, want 9", s.Max())
	}
	if got, want := s.Mean(), 31.0/8.0; got != want {
		t.Errorf("Mean() = %v, want %v", got, want)
	}
}

func TestSketchEmptyStats(t *testing.T) {
	s := New(nil, 0)
	if s.Min() != 0 || s.Max() != 0 || s.Mean() != 0 {
		t.Errorf("empty sketch stats should be zero, got min=%v max=%v mean=%v", s.Min(), s.Max(), s.Mean())
	}
}

// TestSketchMedianWithinErrorBound inserts ten timer samples 100..1000 and
// checks φ=0.5 lands within ε·n (plus a 50 slack) of 500, the 5th order
// statistic of this sample set (the average of the 5th/6th would be 550).
func TestSketchMedianWithinErrorBound(t *testing.T) {
	eps := 0.01
	s := New([]float64{0.5}, eps)
	for i := 1; i <= 10; i++ {
		s.Insert(float64(i * 100))
	}

	got := s.Query(0.5)
	want := 500.0
	bound := eps * 10 * 100 // eps * n, scaled to the value domain
	if math.Abs(got-want) > bound+50 {
		t.Errorf("Query(0.5) = %v, want within %v of %v", got, bound+50, want)
	}
}

func TestSketchEmit(t *testing.T) {
	s := New([]float64{0.5, 0.99}, 0.01)
	for i := 1; i <= 100; i++ {
		s.Insert(float64(i))
	}

	em := s.Emit()
	if em.Count != 100 {
		t.Errorf("Emit().Count = %d, want 100", em.Count)
	}
	if em.Sum != 5050 {
		t.Errorf("Emit().Sum = %v, want 5050", em.Sum)
	}
	if _, ok := em.Quantiles[0.5]; !ok {
		t.Errorf("Emit().Quantiles missing 0.5")
	}
	if _, ok := em.Quantiles[0.99]; !ok {
		t.Errorf("Emit().Quantiles missing 0.99")
	}
}
