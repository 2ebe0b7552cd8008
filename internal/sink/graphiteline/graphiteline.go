// Package graphiteline implements a generic line-oriented TCP egress sink,
// formatting each emission as "<name> <value> <timestamp> <tag=value...>"
// — the same shape a Wavefront- or InfluxDB-style vendor client would
// accept, standing in for the vendor-specific egress clients this module
// doesn't carry.
package graphiteline

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/event"
)

// Sender dials addr lazily and keeps the connection open across sends.
type Sender struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// New builds a graphiteline Sender that writes to addr.
func New(addr string) *Sender {
	return &Sender{addr: addr}
}

func (s *Sender) connLocked() (net.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := net.Dial("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("graphiteline sink: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return conn, nil
}

// SendEmissions writes one line per scalar emission and one line per
// quantile of a sketch-backed emission.
func (s *Sender) SendEmissions(ctx context.Context, emissions []buckets.Emission) error {
	var buf bytes.Buffer
	for _, em := range emissions {
		if em.Sketch != nil {
			for phi, v := range em.Sketch.Quantiles {
				fmt.Fprintf(&buf, "%s.p%g %.6g %d%s\n", em.Name, phi*100, v, em.BinStart, formatTags(em.Tags))
			}
			continue
		}
		fmt.Fprintf(&buf, "%s %.6g %d%s\n", em.Name, em.Value, em.BinStart, formatTags(em.Tags))
	}
	return s.write(buf.Bytes())
}

// SendRaw writes one line for a Telemetry event; LogLine events are
// dropped, since this wire format has no line shape for log bodies.
func (s *Sender) SendRaw(ctx context.Context, e event.Event) error {
	if e.Variant != event.VariantTelemetry {
		return nil
	}
	line := fmt.Sprintf("%s %.6g %d%s\n", e.Name, e.Value, e.TimestampS, formatTags(e.Tags))
	return s.write([]byte(line))
}

func (s *Sender) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connLocked()
	if err != nil {
		return err
	}
	if _, err := conn.Write(b); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("graphiteline sink: write: %w", err)
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

// Close releases the underlying connection, if any.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
