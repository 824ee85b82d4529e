// Package orderbooks maintains live order books from websocket snapshots and
// updates.
package orderbooks

import (
	"sort"

	"github.com/juju/errors"

	"ekiden-sdk-go/common"
)

// ErrStaleUpdate is returned when an update is older than the current book.
var ErrStaleUpdate = errors.New("update is older than the current book")

// ErrNoSnapshot is returned when an update arrives before any snapshot.
var ErrNoSnapshot = errors.New("no snapshot received yet")

// OrderBook represents a "live" order book, which is able to receive
// snapshots and updates. Bids are kept sorted by price descending, asks
// ascending.
//
// It is not thread-safe; so if you need to use it from more than one
// goroutine, apply your own synchronization.
type OrderBook struct {
	marketAddr string
	bids       []common.OrderbookLevel
	asks       []common.OrderbookLevel
	timestamp  uint64
	primed     bool
}

func NewOrderBook(marketAddr string) *OrderBook {
	return &OrderBook{marketAddr: marketAddr}
}

// MarketAddr returns the market this book belongs to.
func (ob *OrderBook) MarketAddr() string {
	return ob.marketAddr
}

// Timestamp returns the timestamp of the last applied snapshot or update.
func (ob *OrderBook) Timestamp() uint64 {
	return ob.timestamp
}

// Primed reports whether a snapshot has been applied yet.
func (ob *OrderBook) Primed() bool {
	return ob.primed
}

// Bids returns the bid levels, best (highest price) first.
func (ob *OrderBook) Bids() []common.OrderbookLevel {
	return ob.bids
}

// Asks returns the ask levels, best (lowest price) first.
func (ob *OrderBook) Asks() []common.OrderbookLevel {
	return ob.asks
}

// BestBid returns the highest bid, if any.
func (ob *OrderBook) BestBid() (common.OrderbookLevel, bool) {
	if len(ob.bids) == 0 {
		return common.OrderbookLevel{}, false
	}
	return ob.bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (ob *OrderBook) BestAsk() (common.OrderbookLevel, bool) {
	if len(ob.asks) == 0 {
		return common.OrderbookLevel{}, false
	}
	return ob.asks[0], true
}

// Spread returns the difference between the best ask and the best bid, and
// whether both sides are present.
func (ob *OrderBook) Spread() (uint64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Snapshot returns a copy of the current book as a snapshot event.
func (ob *OrderBook) Snapshot() common.OrderbookSnapshot {
	return common.OrderbookSnapshot{
		MarketAddr: ob.marketAddr,
		Bids:       append([]common.OrderbookLevel(nil), ob.bids...),
		Asks:       append([]common.OrderbookLevel(nil), ob.asks...),
		Timestamp:  ob.timestamp,
	}
}

// ApplySnapshot replaces the whole book with the snapshot.
func (ob *OrderBook) ApplySnapshot(snapshot common.OrderbookSnapshot) {
	ob.bids = sortLevels(append([]common.OrderbookLevel(nil), snapshot.Bids...), true)
	ob.asks = sortLevels(append([]common.OrderbookLevel(nil), snapshot.Asks...), false)
	ob.timestamp = snapshot.Timestamp
	ob.primed = true
}

// ApplyUpdate applies a delta to the book. A level with size zero removes
// that price. Updates older than the current book are refused with
// ErrStaleUpdate, updates before the first snapshot with ErrNoSnapshot.
func (ob *OrderBook) ApplyUpdate(update common.OrderbookUpdate) error {
	if !ob.primed {
		return ErrNoSnapshot
	}
	if update.Timestamp < ob.timestamp {
		return ErrStaleUpdate
	}

	ob.bids = levelsWithUpdate(ob.bids, update.Bids, true)
	ob.asks = levelsWithUpdate(ob.asks, update.Asks, false)
	ob.timestamp = update.Timestamp

	return nil
}

// levelsWithUpdate applies changed levels to the sorted slice and returns a
// newly allocated slice, sorted best-first accordingly to reverse.
func levelsWithUpdate(
	levels []common.OrderbookLevel, changes []common.OrderbookLevel, reverse bool,
) []common.OrderbookLevel {
	setMap := map[uint64]common.OrderbookLevel{}
	removeMap := map[uint64]struct{}{}

	for _, change := range changes {
		if change.Size == 0 {
			removeMap[change.Price] = struct{}{}
			delete(setMap, change.Price)
		} else {
			setMap[change.Price] = change
			delete(removeMap, change.Price)
		}
	}

	newLevels := make([]common.OrderbookLevel, 0, len(levels)+len(setMap))

	// Replace / remove existing levels
	for _, level := range levels {
		if _, ok := removeMap[level.Price]; ok {
			continue
		}

		if change, ok := setMap[level.Price]; ok {
			level.Size = change.Size
			delete(setMap, level.Price)
		}

		newLevels = append(newLevels, level)
	}

	// Add levels at prices the book didn't have yet
	for _, level := range setMap {
		newLevels = append(newLevels, level)
	}

	return sortLevels(newLevels, reverse)
}

func sortLevels(levels []common.OrderbookLevel, reverse bool) []common.OrderbookLevel {
	if !reverse {
		sort.Slice(levels, func(i, j int) bool {
			return levels[i].Price < levels[j].Price
		})
	} else {
		sort.Slice(levels, func(i, j int) bool {
			return levels[i].Price > levels[j].Price
		})
	}
	return levels
}
