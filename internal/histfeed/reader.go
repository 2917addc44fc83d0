// Package histfeed lazily reads the historical order stream backing a
// backtest run: one comma-separated record per line, network_time and
// bist_time given as nanoseconds since the Unix epoch.
//
// Columns: network_time,bist_time,msg_type,asset_name,side,price,que_loc,quantity,order_id
// que_loc is carried by the input format but unused downstream, mirroring
// the reference parser (src/data/parser.py), which discards it the same
// way.
package histfeed

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bistbt/internal/lob"
)

// Reader implements backtest.HistoricalSource over a line-oriented CSV
// file. It behaves like a generator: Next reads and parses one line at
// a time, skipping (and logging) any line that fails to parse, exactly
// as the reference Parser.get_next_order does, rather than treating a
// bad line as fatal.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	log     zerolog.Logger
	closed  bool
}

// Open opens filepath for lazy, line-at-a-time reading. The caller must
// call Close once the reader is no longer needed.
func Open(filepath string, log zerolog.Logger) (*Reader, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		scanner: bufio.NewScanner(f),
		log:     log,
	}, nil
}

// Close releases the underlying file handle. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Next returns the next valid order in the file, skipping any number of
// unparseable lines along the way. ok is false once the file is
// exhausted (EOF) or already closed.
func (r *Reader) Next() (lob.Order, bool) {
	if r.closed {
		return lob.Order{}, false
	}
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		order, err := parseLine(line)
		if err != nil {
			r.log.Warn().Err(err).Str("line", line).Msg("skipping unparseable historical order")
			continue
		}
		return order, true
	}
	r.Close()
	return lob.Order{}, false
}

func parseLine(line string) (lob.Order, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 9 {
		return lob.Order{}, errBadFieldCount(len(fields))
	}
	if len(fields[2]) != 1 {
		return lob.Order{}, lob.ErrInvalidMsgType
	}
	if len(fields[4]) != 1 {
		return lob.Order{}, lob.ErrInvalidSide
	}

	networkTime, err := parseEpochNanos(fields[0])
	if err != nil {
		return lob.Order{}, err
	}
	bistTime, err := parseEpochNanos(fields[1])
	if err != nil {
		return lob.Order{}, err
	}
	price, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return lob.Order{}, err
	}
	qty, err := strconv.ParseUint(fields[7], 10, 64)
	if err != nil {
		return lob.Order{}, err
	}
	orderID, err := strconv.ParseUint(fields[8], 10, 64)
	if err != nil {
		return lob.Order{}, err
	}

	return lob.New(
		networkTime,
		bistTime,
		lob.MsgType(fields[2][0]),
		fields[3],
		lob.Side(fields[4][0]),
		price,
		qty,
		orderID,
	)
}

func parseEpochNanos(field string) (time.Time, error) {
	nanos, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return time.Time{}, err
	}
	secs := nanos / 1e9
	return time.Unix(0, int64(secs*1e9)).UTC(), nil
}

type errBadFieldCount int

func (e errBadFieldCount) Error() string {
	return "histfeed: expected 9 fields, got " + strconv.Itoa(int(e))
}

var _ io.Closer = (*Reader)(nil)
