// Package backtest is the discrete-event core: it merges the historical
// order stream with the agent's two simulated network legs, drives the
// LOB engine, runs the simulated matching engine, and keeps the agent's
// balance in sync via the accountant. The scheduler's own control flow is
// single-threaded and deterministic: it never starts a
// goroutine and never blocks on one. Each netsim edge it owns does run a
// supervisory goroutine, but that goroutine only watches for shutdown —
// every Send/Drain on the edge's channel happens back to back on the
// scheduler's own goroutine, so it never races the simulated clock.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bistbt/internal/lob"
	"bistbt/internal/netsim"
)

// HistoricalSource yields historical order messages lazily, one at a
// time. Next reports ok=false once the source is exhausted; it never
// returns an error for an unparseable line — those are skipped
// internally without advancing simulated time.
type HistoricalSource interface {
	Next() (lob.Order, bool)
}

// ErrInvalidQueueMessage is returned when a message on the agent->exchange
// or exchange->agent leg carries a msg_type that leg doesn't support.
// This is always fatal: it indicates a contract violation
// between the agent and the simulated exchange.
var ErrInvalidQueueMessage = errors.New("backtest: invalid message type for queue")

// Backtest is the event scheduler: it owns the three FIFO queues, the
// LOB engine, the agent's test-order book, and drives the main loop.
type Backtest struct {
	asset   string
	hist    HistoricalSource
	agent   Agent
	latency time.Duration
	log     zerolog.Logger

	book *lob.Book
	net  *netsim.Pair

	histQueue orderQueue
	netToBist orderQueue
	bistToNet orderQueue

	testOrders     map[uint64]lob.Order
	finishedOrders map[uint64]struct{}
	testTimeline   []string

	orderSeq map[uint64]uint64
	nextSeq  uint64

	lastTimestamp time.Time
	haveTimestamp bool

	histExhausted bool
}

// New constructs a scheduler for one asset's backtest run. latency is
// clamped to zero if negative.
func New(asset string, hist HistoricalSource, agent Agent, latency time.Duration, log zerolog.Logger) *Backtest {
	if latency < 0 {
		latency = 0
	}
	return &Backtest{
		asset:          asset,
		hist:           hist,
		agent:          agent,
		latency:        latency,
		log:            log,
		book:           lob.New(asset),
		net:            netsim.NewPair(context.Background(), log),
		testOrders:     make(map[uint64]lob.Order),
		finishedOrders: make(map[uint64]struct{}),
		orderSeq:       make(map[uint64]uint64),
	}
}

// Book exposes the reconstructed LOB for export and inspection.
func (bt *Backtest) Book() *lob.Book { return bt.book }

// Close tears down the simulated network edges. Run calls this itself;
// callers that never call Run (e.g. driving the accountant directly in
// tests) may call Close to avoid leaking the edges' goroutines.
func (bt *Backtest) Close() error { return bt.net.Close() }

// sendNetToBist hands an agent order to the simulated agent->exchange
// edge and immediately drains it back into the net->bist queue. Send and
// Drain both run on the scheduler's own goroutine, so this is
// deterministic despite the edge's channel plumbing.
func (bt *Backtest) sendNetToBist(o lob.Order) {
	_ = bt.net.AgentToExchange.Send(o)
	for _, order := range bt.net.AgentToExchange.Drain() {
		bt.netToBist.push(order)
	}
}

// sendBistToNet hands a confirmation/fill to the simulated
// exchange->agent edge and immediately drains it into the bist->net
// queue; see sendNetToBist.
func (bt *Backtest) sendBistToNet(o lob.Order) {
	_ = bt.net.ExchangeToAgent.Send(o)
	for _, order := range bt.net.ExchangeToAgent.Drain() {
		bt.bistToNet.push(order)
	}
}

// Run drives the scheduler to completion: historical input exhausted and
// all three queues drained. Any error is fatal and aborts
// the run immediately.
func (bt *Backtest) Run() error {
	defer bt.Close()
	for {
		source, order, ok := bt.nextOrder()
		if !ok {
			bt.book.UpdatePriceTable()
			bt.book.CreateSnapshot()
			bt.agent.History().Record(bt.lastTimestamp, *bt.agent.Balance(), bt.book.PriceTable())
			bt.runMarketMaker()
			return nil
		}

		switch source {
		case sourceHistorical:
			if err := bt.handleHistorical(order); err != nil {
				return err
			}
		case sourceNetToBist:
			bt.testTimeline = append(bt.testTimeline, order.String())
			if err := bt.handleNetToBist(order); err != nil {
				return err
			}
		case sourceBistToNet:
			bt.testTimeline = append(bt.testTimeline, order.String())
			if err := bt.handleBistToNet(order); err != nil {
				return err
			}
		}
	}
}

type queueSource int

const (
	sourceHistorical queueSource = iota
	sourceNetToBist
	sourceBistToNet
)

// nextOrder refills hist if needed, then selects the queue with the
// minimum NetworkTime among the three, breaking ties hist < net→bist <
// bist→net. ok is false once every queue and the historical
// source are exhausted.
func (bt *Backtest) nextOrder() (queueSource, lob.Order, bool) {
	bt.refillHist()

	if bt.histQueue.empty() && bt.netToBist.empty() && bt.bistToNet.empty() {
		return 0, lob.Order{}, false
	}

	best := sourceHistorical
	bestTime := farFuture
	if o, ok := bt.histQueue.front(); ok {
		bestTime = o.NetworkTime
	}
	if o, ok := bt.netToBist.front(); ok {
		if bestTime == farFuture || o.NetworkTime.Before(bestTime) {
			best = sourceNetToBist
			bestTime = o.NetworkTime
		}
	}
	if o, ok := bt.bistToNet.front(); ok {
		if bestTime == farFuture || o.NetworkTime.Before(bestTime) {
			best = sourceBistToNet
			bestTime = o.NetworkTime
		}
	}

	var order lob.Order
	var ok bool
	switch best {
	case sourceHistorical:
		order, ok = bt.histQueue.pop()
	case sourceNetToBist:
		order, ok = bt.netToBist.pop()
	case sourceBistToNet:
		order, ok = bt.bistToNet.pop()
	}
	return best, order, ok
}

// farFuture stands in for the reference implementation's datetime.max:
// an unpopulated queue never wins the minimum-timestamp comparison.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func (bt *Backtest) refillHist() {
	if !bt.histQueue.empty() || bt.histExhausted {
		return
	}
	order, ok := bt.hist.Next()
	if !ok {
		bt.histExhausted = true
		return
	}
	bt.histQueue.push(order)
}

// handleHistorical applies one historical message: if the BIST instant
// has advanced since the last message, it first re-evaluates the public
// price table, samples history, and runs the matching engine for the
// instant that just closed. It then applies the message to the book and,
// if that produced a snapshot, runs the agent's strategy on it.
func (bt *Backtest) handleHistorical(order lob.Order) error {
	if bt.haveTimestamp && !bt.lastTimestamp.Equal(order.BistTime) {
		bt.book.UpdatePriceTable()
		bt.agent.History().Record(bt.lastTimestamp, *bt.agent.Balance(), bt.book.PriceTable())
		bt.runMarketMaker()
	}
	bt.lastTimestamp = order.BistTime
	bt.haveTimestamp = true

	snapshotCreated, err := bt.book.Process(order)
	if err != nil {
		return fmt.Errorf("processing historical order: %w", err)
	}
	if !snapshotCreated {
		return nil
	}

	snap := bt.book.LatestSnapshot()
	if snap == nil {
		return nil
	}
	orders, err := bt.runAgent(*snap)
	if err != nil {
		return fmt.Errorf("running agent strategy: %w", err)
	}
	for _, o := range orders {
		bt.sendNetToBist(o)
	}
	return nil
}

// runAgent invokes the agent's strategy and applies the per-order cost
// fee to every order in a non-empty batch, admitted or not.
func (bt *Backtest) runAgent(snap lob.Snapshot) ([]lob.Order, error) {
	orders, err := bt.agent.Strategy(snap, bt.latency)
	if err != nil {
		return nil, err
	}
	if len(orders) > 0 {
		bt.agent.Balance().Money -= bt.agent.OrderCost() * float64(len(orders))
	}
	for _, o := range orders {
		if o.MsgType == lob.Add {
			bt.nextSeq++
			bt.orderSeq[o.OrderID] = bt.nextSeq
		}
	}
	return orders, nil
}

func (bt *Backtest) handleNetToBist(order lob.Order) error {
	switch order.MsgType {
	case lob.Add:
		bt.executeAdd(order)
	case lob.Cancel:
		bt.executeCancel(order)
	default:
		return fmt.Errorf("%w: net->bist got %q", ErrInvalidQueueMessage, order.MsgType)
	}
	return nil
}

func (bt *Backtest) handleBistToNet(order lob.Order) error {
	switch order.MsgType {
	case lob.Delete:
		bt.executeDelete(order)
	case lob.Execute:
		if err := bt.executeExecute(order); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: bist->net got %q", ErrInvalidQueueMessage, order.MsgType)
	}
	return nil
}

// TestOrders exposes the agent's live resting orders, for tests and
// invariant checks. Callers must not mutate the returned map.
func (bt *Backtest) TestOrders() map[uint64]lob.Order { return bt.testOrders }

// FinishedOrders exposes the set of retired test-order ids.
func (bt *Backtest) FinishedOrders() map[uint64]struct{} { return bt.finishedOrders }

// Timeline returns the stringified test_timeline: every message the
// agent exchanged with the exchange, in processed order.
func (bt *Backtest) Timeline() []string { return bt.testTimeline }
