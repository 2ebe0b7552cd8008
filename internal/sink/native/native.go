// Package native implements the native-protocol TCP sink: a federation
// egress client that forwards events to another cernan instance's native
// source. Unless the sink is configured raw, it receives the bucketed
// emissions of each flush and forwards their scalar values (sketch
// emissions are not forwarded); in raw mode every event is forwarded
// as it arrives. It redials with the same
// capped-backoff policy the retrying egress wrapper uses for any other
// send failure.
package native

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/native"
)

// Sender dials addr lazily and keeps the connection open across sends,
// redialing on the next send after any write failure.
type Sender struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// New builds a native Sender that forwards to addr.
func New(addr string) *Sender {
	return &Sender{addr: addr}
}

func (s *Sender) connLocked() (net.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := net.Dial("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("native sink: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return conn, nil
}

// SendRaw forwards a single event as a one-entry native frame.
func (s *Sender) SendRaw(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connLocked()
	if err != nil {
		return err
	}
	if err := native.WriteFrame(conn, []event.Event{e}); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("native sink: write: %w", err)
	}
	return nil
}

// SendEmissions re-synthesizes each scalar emission as a Telemetry event
// and forwards it in one frame; sketch-backed emissions (timers,
// histograms) are not re-derivable as a single scalar and are skipped —
// federation forwarding over the native sink is intended for raw
// passthrough ahead of re-aggregation, not post-aggregation relay.
func (s *Sender) SendEmissions(ctx context.Context, emissions []buckets.Emission) error {
	events := make([]event.Event, 0, len(emissions))
	for _, em := range emissions {
		if em.Sketch != nil {
			continue
		}
		events = append(events, event.NewTelemetry(em.Name, em.Tags, em.Kind, em.BinStart, em.Value, em.Kind == event.KindGaugeAbsolute, 1))
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connLocked()
	if err != nil {
		return err
	}
	if err := native.WriteFrame(conn, events); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("native sink: write: %w", err)
	}
	return nil
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
