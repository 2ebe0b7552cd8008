// Package console implements an at-most-once sink that writes every
// emission (or, in raw mode, every event) to an io.Writer as a single
// human-readable line. It never retries: a write either succeeds or the
// line is lost, matching the "for at-most-once sinks like console, after
// write" commit rule.
package console

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/event"
)

// Sender writes to W (os.Stdout if nil).
type Sender struct {
	W io.Writer
}

// New builds a console Sender writing to os.Stdout.
func New() *Sender {
	return &Sender{W: os.Stdout}
}

func (s *Sender) writer() io.Writer {
	if s.W == nil {
		return os.Stdout
	}
	return s.W
}

// SendEmissions writes one line per emission. It never fails: a write
// error to stdout is not a condition this sink retries over.
func (s *Sender) SendEmissions(ctx context.Context, emissions []buckets.Emission) error {
	w := s.writer()
	for _, em := range emissions {
		if em.Sketch != nil {
			fmt.Fprintf(w, "%d %s%s count=%d min=%.6g max=%.6g sum=%.6g\n",
				em.BinStart, em.Name, formatTags(em.Tags), em.Sketch.Count, em.Sketch.Min, em.Sketch.Max, em.Sketch.Sum)
			for phi, v := range em.Sketch.Quantiles {
				fmt.Fprintf(w, "%d %s%s.p%g=%.6g\n", em.BinStart, em.Name, formatTags(em.Tags), phi*100, v)
			}
			continue
		}
		fmt.Fprintf(w, "%d %s%s=%.6g\n", em.BinStart, em.Name, formatTags(em.Tags), em.Value)
	}
	return nil
}

// SendRaw writes one line for a Telemetry or LogLine event.
func (s *Sender) SendRaw(ctx context.Context, e event.Event) error {
	w := s.writer()
	switch e.Variant {
	case event.VariantTelemetry:
		fmt.Fprintf(w, "%d %s%s=%.6g\n", e.TimestampS, e.Name, formatTags(e.Tags), e.Value)
	case event.VariantLogLine:
		fmt.Fprintf(w, "%d %s%s %s\n", e.TimestampS, e.Path, formatTags(e.Tags), e.Name)
	}
	return nil
}

func formatTags(t event.Tags) string {
	if t.Len() == 0 {
		return ""
	}
	s := ""
	t.Range(func(k, v string) {
		s += fmt.Sprintf(" %s=%s", k, v)
	})
	return s
}
