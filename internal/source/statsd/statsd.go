// Package statsd implements a UDP source speaking the statsd wire format:
// name:value|type[|@rate][|#tag1:v1,tag2:v2], with type one of c, g, g+/g-
// (delta gauge), ms, h. Set lines (type s) are not supported and are
// counted as parse errors. It is a narrow adapter: wire-parser fidelity for
// any one collector's exact dialect is explicitly out of scope, so this
// parser covers the common cases and counts the rest as parse errors
// rather than trying to be exhaustive.
package statsd

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/metrics"
	"github.com/cernan/cernan/internal/node"
)

// Source listens for statsd datagrams on a UDP socket.
type Source struct {
	name       string
	addr       string
	now        func() int64
	ParseError atomic.Int64
}

// New builds a statsd Source named name, listening on addr (e.g. ":8125").
func New(name, addr string) *Source {
	return &Source{name: name, addr: addr, now: func() int64 { return time.Now().Unix() }}
}

func (s *Source) Name() string { return s.name }

// Run listens until ctx is cancelled, parsing each datagram's lines and
// emitting one Telemetry Event per successfully parsed line into every
// channel in outs, in declared order.
func (s *Source) Run(ctx context.Context, outs []*hopper.Channel) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			e, ok := s.parseLine(line)
			if !ok {
				s.ParseError.Add(1)
				metrics.ParseErrorsTotal.WithLabelValues(s.name).Inc()
				cernanlog.Warnf("statsd %s: malformed line %q", s.name, line)
				continue
			}
			for _, out := range outs {
				if err := node.Emit(out, e); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Source) parseLine(line string) (event.Event, bool) {
	nameValue, rest, ok := strings.Cut(line, ":")
	if !ok || nameValue == "" {
		return event.Event{}, false
	}

	parts := strings.Split(rest, "|")
	if len(parts) < 2 {
		return event.Event{}, false
	}

	valueStr, typeStr := parts[0], parts[1]
	rate := 1.0
	var tags event.Tags

	for _, extra := range parts[2:] {
		switch {
		case strings.HasPrefix(extra, "@"):
			if r, err := strconv.ParseFloat(extra[1:], 64); err == nil {
				rate = r
			}
		case strings.HasPrefix(extra, "#"):
			for _, kv := range strings.Split(extra[1:], ",") {
				k, v, ok := strings.Cut(kv, ":")
				if ok {
					tags.Set(k, v)
				}
			}
		}
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return event.Event{}, false
	}

	var kind event.Kind
	switch {
	case typeStr == "c":
		kind = event.KindCounter
	case typeStr == "ms":
		kind = event.KindTimer
	case typeStr == "h":
		kind = event.KindHistogram
	case typeStr == "g":
		if strings.HasPrefix(valueStr, "+") || strings.HasPrefix(valueStr, "-") {
			kind = event.KindGaugeDelta
		} else {
			kind = event.KindGaugeAbsolute
		}
	case typeStr == "s":
		// Set (unique-value cardinality) has no corresponding aggregation
		// kind in this design; treated as a parse failure rather than
		// silently misrepresenting it as a counter or gauge.
		return event.Event{}, false
	default:
		return event.Event{}, false
	}

	return event.NewTelemetry(nameValue, tags, kind, s.now(), value, kind == event.KindGaugeAbsolute, rate), true
}
