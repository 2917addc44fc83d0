package strategy

import (
	"math"
	"time"

	"bistbt/internal/backtest"
	"bistbt/internal/lob"
)

// basicEWMAAgent tracks an exponentially-weighted moving average of the
// book's mid-price and trades against the divergence between that
// average and the instantaneous mid-price. It never cancels: once
// placed, an order rests until filled or the run ends.
type basicEWMAAgent struct {
	backtest.BaseAgent

	beta                 float64
	margin               float64
	waitTime             time.Duration
	pricing              string
	fixedQuantity        int64
	proportionalQuantity float64

	ewmaPrice     float64
	haveEWMA      bool
	lastOrderTime time.Time
	haveLastOrder bool
}

func newBasicEWMAAgent(base backtest.BaseAgent, opts Options) backtest.Agent {
	a := &basicEWMAAgent{
		BaseAgent:            base,
		beta:                 opts.float("beta", 0.9),
		margin:               opts.float("margin", 0.0),
		waitTime:             time.Duration(opts.float("wait_time", 0.0) * float64(time.Second)),
		pricing:              opts.string("pricing", "aggressive"),
		fixedQuantity:        opts.int("fixed_quantity", 0),
		proportionalQuantity: opts.float("proportional_quantity", 0),
	}
	if a.fixedQuantity == 0 && a.proportionalQuantity == 0 {
		a.proportionalQuantity = 1.0
	}
	switch a.pricing {
	case "aggressive", "conservative", "mid":
	default:
		a.pricing = "aggressive"
	}
	return a
}

func (a *basicEWMAAgent) Strategy(book lob.Snapshot, latency time.Duration) ([]lob.Order, error) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, nil
	}

	if a.haveLastOrder && a.lastOrderTime.Add(a.waitTime).After(book.Timestamp) {
		return nil, nil
	}
	a.lastOrderTime = book.Timestamp
	a.haveLastOrder = true

	bestBid := book.Bids[len(book.Bids)-1]
	bestAsk := book.Asks[len(book.Asks)-1]
	midPrice := (bestBid.Price + bestAsk.Price) / 2

	if !a.haveEWMA {
		a.ewmaPrice = midPrice
		a.haveEWMA = true
	} else {
		a.ewmaPrice = a.beta*a.ewmaPrice + (1-a.beta)*midPrice
	}

	switch {
	case a.ewmaPrice > midPrice*(1+a.margin):
		return a.buyOrder(book, latency, bestBid, bestAsk, midPrice)
	case a.ewmaPrice < midPrice*(1-a.margin):
		return a.sellOrder(book, latency, bestBid, bestAsk, midPrice)
	default:
		return nil, nil
	}
}

func (a *basicEWMAAgent) buyOrder(book lob.Snapshot, latency time.Duration, bestBid, bestAsk lob.PriceLevel, midPrice float64) ([]lob.Order, error) {
	var price float64
	switch a.pricing {
	case "aggressive":
		price = bestAsk.Price
	case "conservative":
		price = bestBid.Price
	default:
		price = midPrice
	}

	bal := a.Balance()
	if bal.Money < price {
		return nil, nil
	}

	quantity := a.fixedQuantity
	if quantity == 0 {
		quantity = int64(float64(bestAsk.Quantity) * a.proportionalQuantity)
	}
	if affordable := int64(math.Floor(bal.Money / price)); quantity > affordable {
		quantity = affordable
	}
	if quantity <= 0 {
		return nil, nil
	}

	order, err := lob.New(book.Timestamp, book.Timestamp.Add(latency), lob.Add, book.Asset, lob.Buy, price, uint64(quantity), newOrderID())
	if err != nil {
		return nil, err
	}
	return []lob.Order{order}, nil
}

func (a *basicEWMAAgent) sellOrder(book lob.Snapshot, latency time.Duration, bestBid, bestAsk lob.PriceLevel, midPrice float64) ([]lob.Order, error) {
	bal := a.Balance()
	if bal.Stock == 0 {
		return nil, nil
	}

	var price float64
	switch a.pricing {
	case "aggressive":
		price = bestBid.Price
	case "conservative":
		price = bestAsk.Price
	default:
		price = midPrice
	}

	quantity := a.fixedQuantity
	if quantity == 0 {
		quantity = int64(float64(bestBid.Quantity) * a.proportionalQuantity)
	}
	if quantity > bal.Stock {
		quantity = bal.Stock
	}
	if quantity <= 0 {
		return nil, nil
	}

	order, err := lob.New(book.Timestamp, book.Timestamp.Add(latency), lob.Add, book.Asset, lob.Sell, price, uint64(quantity), newOrderID())
	if err != nil {
		return nil, err
	}
	return []lob.Order{order}, nil
}
