// Package lobcsv exports reconstructed order book snapshots to the
// flat CSV row-per-instant format consumed downstream by research
// tooling. Every row carries up to three price levels per side plus
// the mold package string for that instant.
package lobcsv

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"bistbt/internal/lob"
)

// header is the fixed column order: bid levels worst-to-best (bid3
// furthest from touch, bid1 best), then ask levels best-to-worst (ask1
// best, ask3 furthest).
var header = []string{
	"timestamp", "asset",
	"bid3qty", "bid3px", "bid2qty", "bid2px", "bid1qty", "bid1px",
	"ask1px", "ask1qty", "ask2px", "ask2qty", "ask3px", "ask3qty",
	"mold_package",
}

// Writer serializes Snapshot values to CSV, writing the header once on
// construction.
type Writer struct {
	w *csv.Writer
}

// NewWriter wraps w and writes the column header immediately.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	return &Writer{w: cw}, nil
}

// WriteSnapshot appends one row. Missing levels (fewer than three
// resting on a side) are written as 0 quantity / 0.0 price.
func (w *Writer) WriteSnapshot(s lob.Snapshot) error {
	bids := topThree(s.Bids)
	asks := topThree(s.Asks)

	row := []string{
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		s.Asset,
		levelField(bids[2], true), levelField(bids[2], false),
		levelField(bids[1], true), levelField(bids[1], false),
		levelField(bids[0], true), levelField(bids[0], false),
		levelField(asks[0], false), levelField(asks[0], true),
		levelField(asks[1], false), levelField(asks[1], true),
		levelField(asks[2], false), levelField(asks[2], true),
		s.MoldPackage,
	}
	return w.w.Write(row)
}

// Flush flushes any buffered CSV output and returns the first write error
// encountered, if any.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// topThree returns the best three levels of a worst-first/best-last
// slice, ordered [best, second-best, third-best], zero-valued where the
// side has fewer than three resting levels.
func topThree(levels []lob.PriceLevel) [3]lob.PriceLevel {
	var out [3]lob.PriceLevel
	n := len(levels)
	for i := 0; i < 3 && i < n; i++ {
		out[i] = levels[n-1-i]
	}
	return out
}

func levelField(lvl lob.PriceLevel, quantity bool) string {
	if quantity {
		return strconv.FormatUint(lvl.Quantity, 10)
	}
	s := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
