package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bistbt/internal/lob"
)

// noopAgent never trades; it exists so tests can drive the accountant
// methods directly through a minimal Backtest without wiring a full
// strategy registry.
type noopAgent struct {
	BaseAgent
}

func (a *noopAgent) Strategy(lob.Snapshot, time.Duration) ([]lob.Order, error) {
	return nil, nil
}

func newTestBacktest(t *testing.T, initialMoney float64, initialStock int64) *Backtest {
	t.Helper()
	agent := &noopAgent{BaseAgent: NewBaseAgent(0, initialMoney, initialStock)}
	bt := New("TEST", emptyHistSource{}, agent, 0, zerolog.Nop())
	t.Cleanup(func() { bt.Close() })
	return bt
}

type emptyHistSource struct{}

func (emptyHistSource) Next() (lob.Order, bool) { return lob.Order{}, false }

func addOrder(t *testing.T, side lob.Side, price float64, qty, id uint64) lob.Order {
	t.Helper()
	o, err := lob.New(time.Time{}, time.Time{}, lob.Add, "TEST", side, price, qty, id)
	require.NoError(t, err)
	return o
}

// A buy add moves exactly price*qty into held_money and
// leaves free money reduced by the same amount.
func TestAccountant_ExecuteAdd_Buy_MovesToHeld(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	bt.executeAdd(addOrder(t, lob.Buy, 10.0, 5, 1))

	bal := bt.agent.Balance()
	assert.Equal(t, 950.0, bal.Money)
	assert.Equal(t, 50.0, bal.HeldMoney)
	_, resting := bt.testOrders[1]
	assert.True(t, resting)
}

// Insufficient funds: a buy add that exceeds free money is silently dropped.
func TestAccountant_ExecuteAdd_Buy_InsufficientFunds(t *testing.T) {
	bt := newTestBacktest(t, 10, 0)
	bt.executeAdd(addOrder(t, lob.Buy, 10.0, 5, 1))

	bal := bt.agent.Balance()
	assert.Equal(t, 10.0, bal.Money, "balance must be untouched by a rejected add")
	assert.Equal(t, 0.0, bal.HeldMoney)
	_, resting := bt.testOrders[1]
	assert.False(t, resting, "rejected order never rests")
}

// Insufficient stock: a sell add that exceeds free stock is silently dropped.
func TestAccountant_ExecuteAdd_Sell_InsufficientStock(t *testing.T) {
	bt := newTestBacktest(t, 0, 3)
	bt.executeAdd(addOrder(t, lob.Sell, 10.0, 5, 1))

	bal := bt.agent.Balance()
	assert.EqualValues(t, 3, bal.Stock)
	assert.EqualValues(t, 0, bal.HeldStock)
	_, resting := bt.testOrders[1]
	assert.False(t, resting)
}

// Cancel for unknown id is a no-op.
func TestAccountant_ExecuteCancel_UnknownID_NoOp(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	bt.executeCancel(addOrder(t, lob.Buy, 10.0, 5, 999))
	assert.Empty(t, bt.bistToNet.items)
}

// Cancel of a resting order pushes a "D" confirmation with the
// resting order's original price/quantity.
func TestAccountant_ExecuteCancel_RestingOrder(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	bt.executeAdd(addOrder(t, lob.Buy, 10.0, 5, 1))

	cancel := addOrder(t, lob.Buy, 0, 0, 1)
	cancel.MsgType = lob.Cancel
	bt.executeCancel(cancel)

	_, stillResting := bt.testOrders[1]
	assert.False(t, stillResting)

	confirmation, ok := bt.bistToNet.pop()
	require.True(t, ok)
	assert.Equal(t, lob.Delete, confirmation.MsgType)
	assert.Equal(t, 10.0, confirmation.Price)
	assert.EqualValues(t, 5, confirmation.Quantity)
}

// executeDelete releases the held collateral back to free balance.
func TestAccountant_ExecuteDelete_ReleasesCollateral(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	bt.executeAdd(addOrder(t, lob.Buy, 10.0, 5, 1))

	del := addOrder(t, lob.Buy, 10.0, 5, 1)
	del.MsgType = lob.Delete
	bt.executeDelete(del)

	bal := bt.agent.Balance()
	assert.Equal(t, 1000.0, bal.Money)
	assert.Equal(t, 0.0, bal.HeldMoney)
}

// Execute for unknown test order is fatal.
func TestAccountant_ExecuteExecute_UnknownID_Fatal(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	exec := addOrder(t, lob.Buy, 10.0, 1, 42)
	exec.MsgType = lob.Execute

	err := bt.executeExecute(exec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTestOrder)
}

// A partial buy fill at a better price than the resting limit refunds
// the price improvement to free money and moves stock in.
func TestAccountant_ExecuteExecute_Buy_PriceImprovement(t *testing.T) {
	bt := newTestBacktest(t, 1000, 0)
	bt.executeAdd(addOrder(t, lob.Buy, 10.0, 5, 1))

	fill := addOrder(t, lob.Buy, 9.0, 2, 1) // touched ask was cheaper than the limit
	fill.MsgType = lob.Execute
	require.NoError(t, bt.executeExecute(fill))

	bal := bt.agent.Balance()
	// held money released for the matched qty at the *limit* price (2*10=20),
	// cash spent at the touched price (2*9=18): refund of 2 into free money.
	assert.Equal(t, 952.0, bal.Money)
	assert.Equal(t, 30.0, bal.HeldMoney) // 50 - 20
	assert.EqualValues(t, 2, bal.Stock)

	resting, ok := bt.testOrders[1]
	require.True(t, ok, "partially filled order keeps resting")
	assert.EqualValues(t, 3, resting.Quantity)
}

// A full sell fill adds cash and releases all held stock, retiring the order.
func TestAccountant_ExecuteExecute_Sell_FullFill(t *testing.T) {
	bt := newTestBacktest(t, 0, 10)
	bt.executeAdd(addOrder(t, lob.Sell, 12.0, 4, 1))

	fill := addOrder(t, lob.Sell, 12.0, 4, 1)
	fill.MsgType = lob.Execute
	require.NoError(t, bt.executeExecute(fill))

	bal := bt.agent.Balance()
	assert.Equal(t, 48.0, bal.Money)
	assert.EqualValues(t, 0, bal.HeldStock)

	_, stillResting := bt.testOrders[1]
	assert.False(t, stillResting)
	_, finished := bt.finishedOrders[1]
	assert.True(t, finished)
}
