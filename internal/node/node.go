// Package node defines the narrow capability interfaces that sources,
// filters, and sinks implement to plug into a topology, and the small
// amount of shared bookkeeping (name, egress channel set) every node needs
// regardless of its role.
package node

import (
	"context"
	"sync"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/hopper"
)

// Source reads from an external protocol and writes Events to every one of
// its forward channels (one enqueue per channel per event, per the
// fan-out-duplication rule) until ctx is cancelled. A source never blocks
// forever on a malformed input: parse errors are counted and logged, never
// fatal.
type Source interface {
	Name() string
	Run(ctx context.Context, outs []*hopper.Channel) error
}

// Sink reads Events from one or more input channels (one Reader per
// upstream node that fans out to it) and delivers them to an external
// system or stdout, committing each Reader's cursor only once delivery is
// confirmed.
type Sink interface {
	Name() string
	Run(ctx context.Context, ins []*hopper.Reader) error
}

// Emit is the small helper every source uses to hand a parsed Event to its
// output channel, centralizing the wire encode step so adapters don't
// repeat it.
func Emit(out *hopper.Channel, e event.Event) error {
	buf := event.Encode(nil, e)
	return out.Enqueue(buf)
}

// Receive decodes the next Event off in, blocking until one is available
// or ctx is cancelled.
func Receive(ctx context.Context, in *hopper.Reader) (event.Event, error) {
	buf, err := in.Next(ctx)
	if err != nil {
		return event.Event{}, err
	}
	e, _, err := event.Decode(buf)
	return e, err
}

// Delivery pairs a decoded Event with the Reader it came from, so a
// multi-input node knows which cursor to advance once the event has been
// handled. Err is set, with Reader identifying the failing input, when a
// pump goroutine's Receive fails for a reason other than ctx cancellation.
type Delivery struct {
	Reader *hopper.Reader
	Event  event.Event
	Err    error
}

// FanIn merges ins into a single ordered-within-reader stream: one pump
// goroutine per Reader blocks on Receive and forwards onto the returned
// channel, which is closed once every pump has stopped (ctx cancellation or
// a terminal Receive error). A node with several upstream edges still
// processes deliveries single-threaded, by ranging over this channel in its
// own goroutine — only the blocking reads happen concurrently.
func FanIn(ctx context.Context, ins []*hopper.Reader) <-chan Delivery {
	out := make(chan Delivery)
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(in *hopper.Reader) {
			defer wg.Done()
			for {
				e, err := Receive(ctx, in)
				if err != nil {
					if ctx.Err() == nil {
						select {
						case out <- Delivery{Reader: in, Err: err}:
						case <-ctx.Done():
						}
					}
					return
				}
				select {
				case out <- Delivery{Reader: in, Event: e}:
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
