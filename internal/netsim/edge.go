// Package netsim models a bidirectional network channel with configurable
// one-way latency: two edges, one per direction, each a buffered Go
// channel carrying order messages between the agent-facing and
// exchange-facing legs of a backtest run. Each edge is paired with a
// tomb-supervised goroutine that owns its shutdown lifecycle and session
// identity; the goroutine never
// touches the channel itself, since the channel is always sent to and
// drained from the scheduler's single logical-clock goroutine, which
// would otherwise race a second goroutine over the same channel. The
// delay itself is carried in each Order's NetworkTime/BistTime fields,
// set by the sender before calling Send.
package netsim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"bistbt/internal/lob"
)

// ErrClosed is returned by Send once the edge has stopped.
var ErrClosed = errors.New("netsim: edge is closed")

const defaultChanSize = 256

// Edge is one direction of the simulated network channel. A backtest run
// uses two: AgentToExchange and ExchangeToAgent.
type Edge struct {
	id   uuid.UUID
	name string
	t    tomb.Tomb
	ch   chan lob.Order
	log  zerolog.Logger
}

// NewEdge starts a supervisory goroutine tied to ctx/Close and returns an
// edge backed by a buffered channel. name is used only for logging
// ("agent->exchange", "exchange->agent").
func NewEdge(ctx context.Context, name string, log zerolog.Logger) *Edge {
	e := &Edge{
		id:   uuid.New(),
		name: name,
		ch:   make(chan lob.Order, defaultChanSize),
		log:  log.With().Str("edge", name).Str("session_id", "").Logger(),
	}
	e.log = e.log.With().Str("session_id", e.id.String()).Logger()
	e.t.Go(func() error {
		return e.supervise(ctx)
	})
	return e
}

// supervise watches for shutdown and logs the edge's lifecycle. It never
// reads or writes ch: Send/Drain are called directly by the scheduler's
// own goroutine, so the channel never sees concurrent access.
func (e *Edge) supervise(ctx context.Context) error {
	e.log.Info().Msg("netsim edge starting")
	select {
	case <-ctx.Done():
		e.log.Info().Msg("netsim edge stopping: context cancelled")
		return ctx.Err()
	case <-e.t.Dying():
		e.log.Info().Msg("netsim edge stopping")
		return nil
	}
}

// Send enqueues an order for delivery. Buffered channel capacity (not
// wall-clock sleeping) is what "transports" the message; the caller
// drains the other end at the instant it cares about.
func (e *Edge) Send(order lob.Order) error {
	select {
	case <-e.t.Dying():
		return ErrClosed
	default:
	}
	select {
	case e.ch <- order:
		return nil
	case <-e.t.Dying():
		return ErrClosed
	}
}

// Drain non-blockingly collects every message currently buffered,
// preserving arrival order.
func (e *Edge) Drain() []lob.Order {
	var out []lob.Order
	for {
		select {
		case order := <-e.ch:
			out = append(out, order)
		default:
			return out
		}
	}
}

// Close stops the edge's goroutine and waits for it to exit.
func (e *Edge) Close() error {
	e.t.Kill(nil)
	return e.t.Wait()
}

// Pair bundles the two directional edges a backtest run needs.
type Pair struct {
	AgentToExchange *Edge
	ExchangeToAgent *Edge
}

// NewPair constructs both directions of the simulated channel.
func NewPair(ctx context.Context, log zerolog.Logger) *Pair {
	return &Pair{
		AgentToExchange: NewEdge(ctx, "agent->exchange", log),
		ExchangeToAgent: NewEdge(ctx, "exchange->agent", log),
	}
}

// Close tears down both edges.
func (p *Pair) Close() error {
	err1 := p.AgentToExchange.Close()
	err2 := p.ExchangeToAgent.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
