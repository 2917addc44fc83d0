package backtest

import (
	"time"

	"bistbt/internal/lob"
)

// Agent is the contract exposed to strategies: given a read-only book
// snapshot and the current one-way network latency, decide whether to
// place or cancel orders. Implementations must not retain or mutate the
// snapshot they're handed.
type Agent interface {
	// Strategy decides the agent's next move. Returned Add orders should
	// set NetworkTime to book.Timestamp and BistTime to
	// book.Timestamp+latency; the scheduler assigns no fields itself.
	Strategy(book lob.Snapshot, latency time.Duration) ([]lob.Order, error)

	// Balance exposes the agent's live balance sheet so the scheduler's
	// accountant can apply add/cancel/delete/execute effects to it.
	Balance() *Balance

	// OrderCost is charged once per order in a non-empty batch returned
	// by Strategy, regardless of whether the order is ultimately admitted.
	OrderCost() float64

	// History records a point-in-time sample; called once per distinct
	// BIST instant and once more at termination.
	History() *History
}

// BaseAgent implements the bookkeeping every concrete strategy needs
// (balance, order cost, sampled history) so strategies only need to
// implement Strategy: a small struct embedded by concrete types rather
// than a deep inheritance chain.
type BaseAgent struct {
	orderCost float64
	balance   Balance
	history   History
}

// NewBaseAgent constructs the shared agent state from the runner config.
func NewBaseAgent(orderCost, initialMoney float64, initialStock int64) BaseAgent {
	return BaseAgent{
		orderCost: orderCost,
		balance:   Balance{Money: initialMoney, Stock: initialStock},
	}
}

func (a *BaseAgent) Balance() *Balance  { return &a.balance }
func (a *BaseAgent) OrderCost() float64 { return a.orderCost }
func (a *BaseAgent) History() *History  { return &a.history }

// History is the parallel-array record of every sampled instant: the
// BIST timestamp, a deep copy of the balance, and a deep copy of the
// price table observed at that instant.
type History struct {
	Timestamps []time.Time
	Balances   []Balance
	Prices     []lob.PriceTable
}

// Record appends a deep-copied sample. Deep copies are required because
// both Balance and PriceTable are mutated in place by later events.
func (h *History) Record(timestamp time.Time, balance Balance, prices lob.PriceTable) {
	h.Timestamps = append(h.Timestamps, timestamp)
	h.Balances = append(h.Balances, balance.Clone())
	h.Prices = append(h.Prices, prices.Clone())
}

// BasePrice selects which observed price to mark resting stock at when
// computing mark-to-market total balance.
type BasePrice int

const (
	// MidPrice marks stock at the book's mid price.
	MidPrice BasePrice = iota
	// LastPrice marks stock at the last traded price on the relevant side.
	LastPrice
	// BestPrice marks stock at the current best bid/ask.
	BestPrice
)

// TotalBalance marks a balance to market using the given price table,
// base-price selector, and optimism (whether stock is valued at the side
// that benefits the agent most). Recovered from original_source
// Agent.calculate_total_balance, needed to report P&L from the sampled
// history.
func TotalBalance(balance Balance, prices lob.PriceTable, base BasePrice, optimistic bool) float64 {
	total := balance.Money + balance.HeldMoney
	totalStock := balance.Stock + balance.HeldStock

	var price float64
	switch base {
	case MidPrice:
		if prices.Mid != nil {
			price = *prices.Mid
		}
	case LastPrice:
		p := prices.LastBid
		if optimistic {
			p = prices.LastAsk
		}
		if p != nil {
			price = *p
		}
	case BestPrice:
		p := prices.BestBid
		if optimistic {
			p = prices.BestAsk
		}
		if p != nil {
			price = *p
		}
	}

	return total + float64(totalStock)*price
}
