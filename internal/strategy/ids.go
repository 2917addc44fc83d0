package strategy

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// newOrderID mints a unique order identifier for an order an agent is
// about to submit. The reference implementation defaults Order.order_id
// to the high 64 bits of a uuid1 when the caller doesn't supply one;
// google/uuid (already wired for netsim session identity) gives the same
// "unique, not meaningfully ordered" guarantee here.
func newOrderID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
