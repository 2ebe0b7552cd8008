// Package nats implements a message-bus source: it subscribes to a NATS
// subject carrying native-protocol frame payloads and emits every decoded
// event onto its forward channels, directly reusing the shared NATS
// transport's reconnect and error handling.
package nats

import (
	"bytes"
	"context"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/native"
	"github.com/cernan/cernan/internal/node"
	natsbus "github.com/cernan/cernan/pkg/nats"
)

// Source subscribes to Subject on a NATS connection built from Config.
type Source struct {
	name    string
	cfg     natsbus.Config
	subject string
}

// New builds a nats Source named name, subscribing to subject once
// connected per cfg.
func New(name string, cfg natsbus.Config, subject string) *Source {
	return &Source{name: name, cfg: cfg, subject: subject}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Run(ctx context.Context, outs []*hopper.Channel) error {
	client, err := natsbus.NewClient(s.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	errs := make(chan error, 1)
	if err := client.Subscribe(s.subject, func(subject string, data []byte) {
		events, err := native.ReadFrame(bytes.NewReader(prependLength(data)))
		if err != nil {
			cernanlog.Warnf("nats source %s: frame decode: %v", s.name, err)
			return
		}
		for _, e := range events {
			for _, out := range outs {
				if err := node.Emit(out, e); err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
			}
		}
	}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

// prependLength re-frames a bare batch payload (as published by the nats
// sink, which omits the length prefix since NATS messages are already
// self-delimited) with the u32 length native.ReadFrame expects, so both
// sides can share the same frame decoder.
func prependLength(body []byte) []byte {
	n := len(body)
	out := make([]byte, 4+n)
	out[0] = byte(n >> 24)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	copy(out[4:], body)
	return out
}
