// Package nats implements the federation sink: it publishes each event as
// a native-protocol frame payload to a NATS subject, the other half of
// cernan's "federation is merely another sink" design alongside the nats
// source.
package nats

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cernan/cernan/internal/buckets"
	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/native"
	natsbus "github.com/cernan/cernan/pkg/nats"
)

// Sender publishes to Subject on a connected NATS client.
type Sender struct {
	client  *natsbus.Client
	subject string
}

// New builds a nats Sender publishing to subject on an already-connected
// client (built once by the owning sink node at startup).
func New(client *natsbus.Client, subject string) *Sender {
	return &Sender{client: client, subject: subject}
}

// SendRaw publishes a single event as a bare frame body (no length
// prefix — NATS messages are already self-delimited, so the prefix the
// TCP-oriented native protocol needs is redundant here and is re-added by
// the nats source before decoding, to share the one frame decoder).
func (s *Sender) SendRaw(ctx context.Context, e event.Event) error {
	var buf bytes.Buffer
	if err := native.WriteFrame(&buf, []event.Event{e}); err != nil {
		return err
	}
	if err := s.client.Publish(s.subject, stripLengthPrefix(buf.Bytes())); err != nil {
		return fmt.Errorf("nats sink: publish: %w", err)
	}
	return nil
}

// SendEmissions re-synthesizes each scalar emission as a Telemetry event
// and publishes them in one frame, the same limitation the native sink
// documents for sketch-backed emissions.
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

	var buf bytes.Buffer
	if err := native.WriteFrame(&buf, events); err != nil {
		return err
	}
	if err := s.client.Publish(s.subject, stripLengthPrefix(buf.Bytes())); err != nil {
		return fmt.Errorf("nats sink: publish: %w", err)
	}
	return nil
}

func stripLengthPrefix(framed []byte) []byte {
	if len(framed) < 4 {
		return framed
	}
	return framed[4:]
}
