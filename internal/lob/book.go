package lob

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/btree"
)

var (
	// ErrUnknownOrder is returned when a Delete/Execute message references
	// an order id that has no resting record on the book.
	ErrUnknownOrder = errors.New("lob: unknown order id")
)

// priceQty is one price-level aggregate: the sum of remaining quantity of
// every resting order at that price, on one side of the book.
type priceQty struct {
	price float64
	qty   uint64
}

// PriceLevel is a read-only view of one price level, in the direction
// described by SortedBids/SortedAsks.
type PriceLevel struct {
	Price    float64
	Quantity uint64
}

// PriceTable carries the public best/mid/last prices for one asset.
// Fields are pointers because "unset" (no data observed yet) must be
// distinguishable from a zero price.
type PriceTable struct {
	Mid     *float64
	BestBid *float64
	BestAsk *float64
	LastBid *float64
	LastAsk *float64
}

// Clone deep-copies the table so history samples cannot be mutated by
// later book updates.
func (pt PriceTable) Clone() PriceTable {
	cp := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	return PriceTable{
		Mid:     cp(pt.Mid),
		BestBid: cp(pt.BestBid),
		BestAsk: cp(pt.BestAsk),
		LastBid: cp(pt.LastBid),
		LastAsk: cp(pt.LastAsk),
	}
}

// Snapshot is the public book state at one logical instant, sorted
// worst-first/best-last on both sides, plus the mold package of every
// message processed since the previous snapshot.
type Snapshot struct {
	Timestamp   time.Time
	Asset       string
	Bids        []PriceLevel
	Asks        []PriceLevel
	MoldPackage string
}

// Book reconstructs the resting-order state and price table for a single
// asset from a trusted historical message stream.
type Book struct {
	asset string

	orders map[uint64]Order

	// bids sorted greatest-first, asks sorted least-first: both trees
	// read best-to-worst in traversal order, so SortedBids/SortedAsks
	// reverse the walk to produce the spec's worst-first/best-last form.
	bids *btree.BTreeG[priceQty]
	asks *btree.BTreeG[priceQty]

	lastTimestamp time.Time
	haveTimestamp bool
	mold          []string

	priceTable PriceTable

	// snapshots accumulates every snapshot ever produced, mirroring the
	// original implementation's self.lob; the scheduler only ever reads
	// the most recent one (LatestSnapshot), the rest exist for export
	// via Snapshots.
	snapshots []Snapshot
}

// New constructs an empty book for the given asset.
func New(asset string) *Book {
	bids := btree.NewBTreeG(func(a, b priceQty) bool { return a.price > b.price })
	asks := btree.NewBTreeG(func(a, b priceQty) bool { return a.price < b.price })
	return &Book{
		asset:  asset,
		orders: make(map[uint64]Order),
		bids:   bids,
		asks:   asks,
	}
}

func (b *Book) levels(side Side) *btree.BTreeG[priceQty] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) addQty(side Side, price float64, qty uint64) {
	levels := b.levels(side)
	cur, ok := levels.Get(priceQty{price: price})
	if !ok {
		levels.Set(priceQty{price: price, qty: qty})
		return
	}
	cur.qty += qty
	levels.Set(cur)
}

// subQty subtracts qty from the aggregate at price, dropping the entry
// when it reaches zero. Returns an error only if no level exists at
// price; subtracting as much as or more than the level holds drops the
// level without an error.
func (b *Book) subQty(side Side, price float64, qty uint64) error {
	levels := b.levels(side)
	cur, ok := levels.Get(priceQty{price: price})
	if !ok {
		return fmt.Errorf("lob: no resting quantity at price %v on side %v", price, side)
	}
	if qty >= cur.qty {
		levels.Delete(priceQty{price: price})
		return nil
	}
	cur.qty -= qty
	levels.Set(cur)
	return nil
}

// Process applies a historical message to the book and reports whether a
// snapshot of the prior state was produced (i.e. the message's network
// instant differs from the previously observed one).
func (b *Book) Process(order Order) (bool, error) {
	snapshotCreated := b.haveTimestamp && !b.lastTimestamp.Equal(order.NetworkTime)
	if snapshotCreated {
		b.CreateSnapshot()
	}
	b.lastTimestamp = order.NetworkTime
	b.haveTimestamp = true

	switch order.MsgType {
	case Add:
		b.orders[order.OrderID] = order
		b.addQty(order.Side, order.Price, order.Quantity)
	case Delete:
		resting, ok := b.orders[order.OrderID]
		if !ok {
			return snapshotCreated, fmt.Errorf("delete: %w (id=%d)", ErrUnknownOrder, order.OrderID)
		}
		delete(b.orders, order.OrderID)
		// The incoming delete's price/quantity are overwritten from the
		// resting record so downstream consumers (mold package, callers)
		// see the authoritative figures, not whatever the delete arrived
		// with.
		order.Price = resting.Price
		order.Quantity = resting.Quantity
		if err := b.subQty(order.Side, order.Price, order.Quantity); err != nil {
			return snapshotCreated, err
		}
	case Execute:
		resting, ok := b.orders[order.OrderID]
		if !ok {
			return snapshotCreated, fmt.Errorf("execute: %w (id=%d)", ErrUnknownOrder, order.OrderID)
		}
		order.Price = resting.Price
		remaining := resting.Quantity - min(resting.Quantity, order.Quantity)
		if remaining == 0 {
			delete(b.orders, order.OrderID)
		} else {
			resting.Quantity = remaining
			b.orders[order.OrderID] = resting
		}
		if err := b.subQty(order.Side, order.Price, order.Quantity); err != nil {
			return snapshotCreated, err
		}
		price := order.Price
		if order.Side == Buy {
			b.priceTable.LastBid = &price
		} else {
			b.priceTable.LastAsk = &price
		}
	default:
		return snapshotCreated, fmt.Errorf("process: %w: %q", ErrInvalidMsgType, order.MsgType)
	}

	b.mold = append(b.mold, order.String())
	return snapshotCreated, nil
}

// CreateSnapshot emits a Snapshot from the current state if any messages
// have accumulated since the previous one, and resets the mold package.
// The new snapshot (if any) becomes available via LatestSnapshot.
func (b *Book) CreateSnapshot() *Snapshot {
	if len(b.mold) == 0 {
		return nil
	}
	snap := Snapshot{
		Timestamp:   b.lastTimestamp,
		Asset:       b.asset,
		Bids:        b.SortedBids(),
		Asks:        b.SortedAsks(),
		MoldPackage: strings.Join(b.mold, ";"),
	}
	b.mold = nil
	b.snapshots = append(b.snapshots, snap)
	return &b.snapshots[len(b.snapshots)-1]
}

// LatestSnapshot returns the most recently produced snapshot, or nil if
// none has been produced yet.
func (b *Book) LatestSnapshot() *Snapshot {
	if len(b.snapshots) == 0 {
		return nil
	}
	return &b.snapshots[len(b.snapshots)-1]
}

// Snapshots returns every snapshot produced over the book's lifetime, in
// order, for export.
func (b *Book) Snapshots() []Snapshot {
	return b.snapshots
}

// UpdatePriceTable recomputes BestBid/BestAsk/Mid from the current book.
// LastBid/LastAsk are left untouched — they are sticky, advanced only by
// Execute messages.
func (b *Book) UpdatePriceTable() {
	bids := b.SortedBids()
	asks := b.SortedAsks()
	if len(bids) == 0 || len(asks) == 0 {
		return
	}
	bestBid := bids[len(bids)-1].Price
	bestAsk := asks[len(asks)-1].Price
	mid := (bestBid + bestAsk) / 2
	b.priceTable.BestBid = &bestBid
	b.priceTable.BestAsk = &bestAsk
	b.priceTable.Mid = &mid
}

// PriceTable returns the current price table as a shallow copy: its
// pointer fields are shared with the book, so callers that retain it
// across mutations must Clone it themselves.
func (b *Book) PriceTable() PriceTable {
	return b.priceTable
}

// scanReversed walks tree in its natural (less-func) order and returns the
// levels in reverse, i.e. worst-to-best becomes best-to-worst and vice versa.
func scanReversed(tree *btree.BTreeG[priceQty]) []PriceLevel {
	var natural []priceQty
	tree.Scan(func(item priceQty) bool {
		natural = append(natural, item)
		return true
	})
	out := make([]PriceLevel, len(natural))
	for i, it := range natural {
		out[len(natural)-1-i] = PriceLevel{Price: it.price, Quantity: it.qty}
	}
	return out
}

// SortedBids returns bid levels worst-first, best-last (ascending price).
// The bid tree's natural order is best(highest)-first, so we reverse it.
func (b *Book) SortedBids() []PriceLevel {
	return scanReversed(b.bids)
}

// SortedAsks returns ask levels worst-first, best-last (descending price,
// ending in the lowest/best ask). The ask tree's natural order is
// best(lowest)-first, so we reverse it.
func (b *Book) SortedAsks() []PriceLevel {
	return scanReversed(b.asks)
}

// Orders exposes the resting historical orders by id, for tests and
// invariant checks. Callers must not mutate the returned map.
func (b *Book) Orders() map[uint64]Order {
	return b.orders
}

// Asset returns the asset this book tracks.
func (b *Book) Asset() string {
	return b.asset
}
