// Package lob reconstructs a per-asset limit order book from a trusted
// historical message stream and tracks the public price table derived
// from it.
package lob

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MsgType is the kind of message carried by an Order.
type MsgType byte

const (
	// Add rests a new order on the book.
	Add MsgType = 'A'
	// Delete removes a resting order from the book.
	Delete MsgType = 'D'
	// Execute reports a fill against a resting order.
	Execute MsgType = 'E'
	// Cancel is a cancel request, only ever seen on the agent->exchange leg.
	Cancel MsgType = 'C'
)

func (t MsgType) String() string {
	return string(byte(t))
}

// Side is which side of the book an order rests on.
type Side byte

const (
	Buy  Side = 'B'
	Sell Side = 'S'
)

func (s Side) String() string {
	return string(byte(s))
}

var (
	ErrInvalidMsgType = errors.New("lob: invalid message type")
	ErrInvalidSide    = errors.New("lob: invalid side")
	ErrNegativePrice  = errors.New("lob: negative price")
)

// Order is the stable value type shared by the historical stream, the
// agent->exchange leg, and the exchange->agent leg. Identity is OrderID
// plus lifecycle; ordering is (Price, BistTime) ascending.
type Order struct {
	NetworkTime time.Time
	BistTime    time.Time
	MsgType     MsgType
	AssetName   string
	Side        Side
	Price       float64
	Quantity    uint64
	OrderID     uint64
}

// New validates and constructs an Order.
func New(networkTime, bistTime time.Time, msgType MsgType, asset string, side Side, price float64, qty uint64, orderID uint64) (Order, error) {
	switch msgType {
	case Add, Delete, Execute, Cancel:
	default:
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidMsgType, msgType)
	}
	switch side {
	case Buy, Sell:
	default:
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if price < 0 {
		return Order{}, ErrNegativePrice
	}
	return Order{
		NetworkTime: networkTime,
		BistTime:    bistTime,
		MsgType:     msgType,
		AssetName:   asset,
		Side:        side,
		Price:       price,
		Quantity:    qty,
		OrderID:     orderID,
	}, nil
}

// String is the stable on-wire mold form: "<msg_type>-<side>-<price>-<quantity>-<order_id>".
func (o Order) String() string {
	return fmt.Sprintf("%s-%s-%s-%d-%d", o.MsgType, o.Side, formatPrice(o.Price), o.Quantity, o.OrderID)
}

// formatPrice renders p the way Python's str(float) does: the shortest
// decimal that round-trips, always with at least one digit after the
// point (10.0, not 10).
func formatPrice(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Less orders two orders by price then bist timestamp, ascending.
func Less(a, b Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.BistTime.Before(b.BistTime)
}
