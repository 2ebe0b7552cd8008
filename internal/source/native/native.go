// Package native implements the native-protocol TCP source: it accepts
// connections, reads u32-length-prefixed frames, and emits every decoded
// event onto its forward channels in the order it was received.
package native

import (
	"context"
	"io"
	"net"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/hopper"
	"github.com/cernan/cernan/internal/native"
	"github.com/cernan/cernan/internal/node"
)

// Source listens for native-protocol connections on a TCP socket. A
// topology may declare at most one of these (the native singleton rule),
// enforced at build time by internal/topology, not here.
type Source struct {
	name string
	addr string
}

// New builds a native Source named name, listening on addr.
func New(name, addr string) *Source {
	return &Source{name: name, addr: addr}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Run(ctx context.Context, outs []*hopper.Channel) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn, outs)
	}
}

func (s *Source) handleConn(ctx context.Context, conn net.Conn, outs []*hopper.Channel) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		events, err := native.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				cernanlog.Warnf("native %s: frame read: %v", s.name, err)
			}
			return
		}
		for _, e := range events {
			for _, out := range outs {
				if err := node.Emit(out, e); err != nil {
					cernanlog.Errorf("native %s: enqueue: %v", s.name, err)
					return
				}
			}
		}
	}
}
