package backtest

import (
	"fmt"

	"bistbt/internal/lob"
)

// ErrUnknownTestOrder indicates an Execute message referenced a test
// order the accountant has no record of, which means the accountant and
// the matching engine have diverged — this is always a fatal bug, never
// a recoverable condition.
var ErrUnknownTestOrder = fmt.Errorf("backtest: execute for unknown test order")

// executeAdd admits or silently drops a new test order depending on
// whether the agent's free balance covers it. A drop has no visible
// effect and no feedback is sent to the agent, mirroring an exchange
// gateway reject with no ack.
func (bt *Backtest) executeAdd(order lob.Order) {
	bal := bt.agent.Balance()
	switch order.Side {
	case lob.Buy:
		need := order.Price * float64(order.Quantity)
		if need > bal.Money {
			return
		}
		bal.Money -= need
		bal.HeldMoney += need
	case lob.Sell:
		if int64(order.Quantity) > bal.Stock {
			return
		}
		bal.Stock -= int64(order.Quantity)
		bal.HeldStock += int64(order.Quantity)
	}
	bt.testOrders[order.OrderID] = order
}

// executeCancel turns a cancel request into a "D" confirmation addressed
// back through the exchange, unless the order has already been filled or
// cancelled, in which case it's a silent no-op.
func (bt *Backtest) executeCancel(order lob.Order) {
	cancelled, ok := bt.testOrders[order.OrderID]
	if !ok {
		return
	}
	delete(bt.testOrders, order.OrderID)

	order.MsgType = lob.Delete
	order.NetworkTime = order.BistTime.Add(bt.latency)
	order.Quantity = cancelled.Quantity
	order.Price = cancelled.Price
	bt.sendBistToNet(order)
}

// executeDelete releases the held collateral of a confirmed cancel.
func (bt *Backtest) executeDelete(order lob.Order) {
	bal := bt.agent.Balance()
	total := order.Price * float64(order.Quantity)
	switch order.Side {
	case lob.Buy:
		bal.Money += total
		bal.HeldMoney -= total
	case lob.Sell:
		bal.Stock += int64(order.Quantity)
		bal.HeldStock -= int64(order.Quantity)
	}
}

// executeExecute applies a synthetic fill against a resting test order.
func (bt *Backtest) executeExecute(order lob.Order) error {
	resting, ok := bt.testOrders[order.OrderID]
	if !ok {
		return fmt.Errorf("%w (id=%d)", ErrUnknownTestOrder, order.OrderID)
	}

	qty := min(resting.Quantity, order.Quantity)
	cash := order.Price * float64(qty)
	bal := bt.agent.Balance()

	switch order.Side {
	case lob.Buy:
		expected := resting.Price * float64(qty)
		bal.HeldMoney -= expected
		bal.Stock += int64(qty)
		bal.Money += expected - cash
	case lob.Sell:
		bal.Money += cash
		bal.HeldStock -= int64(qty)
	}

	if resting.Quantity == qty {
		bt.finishedOrders[order.OrderID] = struct{}{}
		delete(bt.testOrders, order.OrderID)
	} else {
		resting.Quantity -= qty
		bt.testOrders[order.OrderID] = resting
	}
	return nil
}
