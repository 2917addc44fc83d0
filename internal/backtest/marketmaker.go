package backtest

import (
	"sort"

	"bistbt/internal/lob"
)

// runMarketMaker crosses the agent's resting test orders against the
// current public book, as if the exchange had just re-evaluated the
// book at the current logical instant. It never mutates the public
// book — the resulting synthetic "E" messages only inform the
// accountant of the agent's own fills.
func (bt *Backtest) runMarketMaker() {
	bt.runBidSweep()
	bt.runAskSweep()
}

// restingTestOrders returns the agent's live orders on one side, sorted
// most-aggressive-first. Ties break by insertion order (the order in
// which executeAdd admitted them), mirroring the stable sort over an
// insertion-ordered dict in the reference implementation.
func (bt *Backtest) restingTestOrders(side lob.Side) []lob.Order {
	var out []lob.Order
	for id, o := range bt.testOrders {
		if o.Side != side {
			continue
		}
		if _, done := bt.finishedOrders[id]; done {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			if side == lob.Buy {
				return out[i].Price > out[j].Price // best bid = highest price first
			}
			return out[i].Price < out[j].Price // best ask = lowest price first
		}
		return bt.orderSeq[out[i].OrderID] < bt.orderSeq[out[j].OrderID]
	})
	return out
}

// priceLevels is a mutable working copy of one side of the public book,
// consumed worst-first (so popping the tail yields the best level).
type priceLevels []lob.PriceLevel

func (p *priceLevels) popBest() (lob.PriceLevel, bool) {
	levels := *p
	if len(levels) == 0 {
		return lob.PriceLevel{}, false
	}
	best := levels[len(levels)-1]
	*p = levels[:len(levels)-1]
	return best, true
}

func (p *priceLevels) pushBack(lvl lob.PriceLevel) {
	*p = append(*p, lvl)
}

// runBidSweep matches the agent's resting buy orders against the public
// asks, best bid first, stopping the entire sweep the first time a bid's
// limit fails to cross the best remaining ask.
func (bt *Backtest) runBidSweep() {
	bids := bt.restingTestOrders(lob.Buy)
	levels := priceLevels(bt.book.SortedAsks())

	for _, bid := range bids {
		stopped := bt.runSingleBid(bid, &levels)
		if stopped {
			break
		}
	}
}

func (bt *Backtest) runSingleBid(bid lob.Order, levels *priceLevels) (stopped bool) {
	remaining := bid.Quantity
	var cur lob.PriceLevel
	haveCur := false

	for remaining > 0 {
		if !haveCur {
			lvl, ok := levels.popBest()
			if !ok {
				break
			}
			cur = lvl
			haveCur = true
		}
		if bid.Price < cur.Price {
			stopped = true
			break
		}

		execQty := min(remaining, cur.Quantity)
		cur.Quantity -= execQty
		remaining -= execQty

		bt.sendBistToNet(lob.Order{
			NetworkTime: bt.lastTimestamp.Add(bt.latency),
			BistTime:    bt.lastTimestamp,
			MsgType:     lob.Execute,
			AssetName:   bid.AssetName,
			Side:        lob.Buy,
			Price:       cur.Price,
			Quantity:    execQty,
			OrderID:     bid.OrderID,
		})

		if cur.Quantity == 0 {
			haveCur = false
		}
	}

	if haveCur && cur.Quantity > 0 {
		levels.pushBack(cur)
	}
	if remaining == 0 {
		bt.finishedOrders[bid.OrderID] = struct{}{}
	}
	return stopped
}

// runAskSweep matches the agent's resting sell orders against the public
// bids, best ask first. The emitted execute uses the agent's own limit
// price rather than the touched bid level — an asymmetry with the bid
// sweep (which uses the touched ask level) reproduced bit-for-bit from
// the reference implementation.
func (bt *Backtest) runAskSweep() {
	asks := bt.restingTestOrders(lob.Sell)
	levels := priceLevels(bt.book.SortedBids())

	for _, ask := range asks {
		stopped := bt.runSingleAsk(ask, &levels)
		if stopped {
			break
		}
	}
}

func (bt *Backtest) runSingleAsk(ask lob.Order, levels *priceLevels) (stopped bool) {
	remaining := ask.Quantity
	var cur lob.PriceLevel
	haveCur := false

	for remaining > 0 {
		if !haveCur {
			lvl, ok := levels.popBest()
			if !ok {
				break
			}
			cur = lvl
			haveCur = true
		}
		if ask.Price > cur.Price {
			stopped = true
			break
		}

		execQty := min(remaining, cur.Quantity)
		cur.Quantity -= execQty
		remaining -= execQty

		bt.sendBistToNet(lob.Order{
			NetworkTime: bt.lastTimestamp.Add(bt.latency),
			BistTime:    bt.lastTimestamp,
			MsgType:     lob.Execute,
			AssetName:   ask.AssetName,
			Side:        lob.Sell,
			Price:       ask.Price,
			Quantity:    execQty,
			OrderID:     ask.OrderID,
		})

		if cur.Quantity == 0 {
			haveCur = false
		}
	}

	if haveCur && cur.Quantity > 0 {
		levels.pushBack(cur)
	}
	if remaining == 0 {
		bt.finishedOrders[ask.OrderID] = struct{}{}
	}
	return stopped
}
