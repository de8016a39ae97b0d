// Package bridge connects the coordinator to agents running in a tab's page
// context: a duplex channel per tab, the agent itself and the injector that
// installs it on demand.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jefe-johann/grab-otp/internal/model"
)

// ErrClosed is returned by Send and Recv once either end has closed.
var ErrClosed = errors.New("bridge channel closed")

const pipeBuffer = 4

type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

// Conn is one end of a duplex channel. Envelopes cross it JSON-encoded, the
// same bytes a port message would carry. Each end has one writer and one
// reader.
type Conn struct {
	p   *pipe
	in  <-chan []byte
	out chan<- []byte
}

// Pipe returns the two connected ends of a new channel.
func Pipe() (agentEnd, coordinatorEnd *Conn) {
	toCoordinator := make(chan []byte, pipeBuffer)
	toAgent := make(chan []byte, pipeBuffer)
	p := &pipe{done: make(chan struct{})}
	return &Conn{p: p, in: toAgent, out: toCoordinator},
		&Conn{p: p, in: toCoordinator, out: toAgent}
}

// Send writes env to the other end.
func (c *Conn) Send(ctx context.Context, env model.Envelope) error {
	if !c.Alive() {
		return ErrClosed
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	select {
	case c.out <- b:
		return nil
	case <-c.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next envelope. Envelopes already queued are still
// delivered after the channel closes.
func (c *Conn) Recv(ctx context.Context) (model.Envelope, error) {
	select {
	case b := <-c.in:
		return decode(b)
	default:
	}
	select {
	case b := <-c.in:
		return decode(b)
	case <-c.p.done:
		select {
		case b := <-c.in:
			return decode(b)
		default:
			return model.Envelope{}, ErrClosed
		}
	case <-ctx.Done():
		return model.Envelope{}, ctx.Err()
	}
}

func decode(b []byte) (model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return model.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Close closes the channel for both ends. It is safe to call more than once.
func (c *Conn) Close() { c.p.close() }

// Done is closed when the channel closes.
func (c *Conn) Done() <-chan struct{} { return c.p.done }

// Alive reports whether the channel is still open.
func (c *Conn) Alive() bool {
	select {
	case <-c.p.done:
		return false
	default:
		return true
	}
}
