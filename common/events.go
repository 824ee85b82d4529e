package common

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
)

// Event kind tags as they appear on the wire in the "type" field of an
// event payload.
const (
	EventKindOrderbookSnapshot = "orderbook_snapshot"
	EventKindOrderbookUpdate   = "orderbook_update"
	EventKindTrade             = "trade"
	EventKindOrderUpdate       = "order_update"
	EventKindPositionUpdate    = "position_update"
	EventKindBalanceUpdate     = "balance_update"
)

// OrderbookLevel is one price level of an orderbook side.
type OrderbookLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// OrderbookSnapshot carries the full book for a market.
type OrderbookSnapshot struct {
	MarketAddr string           `json:"market_addr"`
	Bids       []OrderbookLevel `json:"bids"`
	Asks       []OrderbookLevel `json:"asks"`
	Timestamp  uint64           `json:"timestamp"`
}

// OrderbookUpdate carries a delta to a previously received snapshot. A level
// with size zero removes that price from the book.
type OrderbookUpdate struct {
	MarketAddr string           `json:"market_addr"`
	Bids       []OrderbookLevel `json:"bids"`
	Asks       []OrderbookLevel `json:"asks"`
	Timestamp  uint64           `json:"timestamp"`
}

// TradeEvent is a single public trade print.
type TradeEvent struct {
	MarketAddr string `json:"market_addr"`
	Price      uint64 `json:"price"`
	Size       uint64 `json:"size"`
	Side       string `json:"side"`
	Timestamp  uint64 `json:"timestamp"`
}

// OrderUpdate reports a state change of one of the user's orders.
type OrderUpdate struct {
	Order Order `json:"order"`
}

// PositionUpdate reports a change to one of the user's positions.
type PositionUpdate struct {
	Position Position `json:"position"`
}

// BalanceUpdate reports a change to one of the user's vaults.
type BalanceUpdate struct {
	Vault Vault `json:"vault"`
}

// Event is a tagged union of every payload the venue pushes over a
// subscription. Exactly one of the pointer fields is non-nil; Kind reports
// which.
type Event struct {
	OrderbookSnapshot *OrderbookSnapshot
	OrderbookUpdate   *OrderbookUpdate
	Trade             *TradeEvent
	OrderUpdate       *OrderUpdate
	PositionUpdate    *PositionUpdate
	BalanceUpdate     *BalanceUpdate
}

// Kind returns the wire tag of the payload this event carries, or "" if the
// event is empty.
func (e Event) Kind() string {
	switch {
	case e.OrderbookSnapshot != nil:
		return EventKindOrderbookSnapshot
	case e.OrderbookUpdate != nil:
		return EventKindOrderbookUpdate
	case e.Trade != nil:
		return EventKindTrade
	case e.OrderUpdate != nil:
		return EventKindOrderUpdate
	case e.PositionUpdate != nil:
		return EventKindPositionUpdate
	case e.BalanceUpdate != nil:
		return EventKindBalanceUpdate
	}
	return ""
}

func (e Event) String() string {
	switch {
	case e.OrderbookSnapshot != nil:
		return fmt.Sprintf("[orderbook snapshot market:%s bids:%d asks:%d]",
			e.OrderbookSnapshot.MarketAddr, len(e.OrderbookSnapshot.Bids), len(e.OrderbookSnapshot.Asks))
	case e.OrderbookUpdate != nil:
		return fmt.Sprintf("[orderbook update market:%s bids:%d asks:%d]",
			e.OrderbookUpdate.MarketAddr, len(e.OrderbookUpdate.Bids), len(e.OrderbookUpdate.Asks))
	case e.Trade != nil:
		return fmt.Sprintf("[trade market:%s %s %d @ %d]",
			e.Trade.MarketAddr, e.Trade.Side, e.Trade.Size, e.Trade.Price)
	case e.OrderUpdate != nil:
		return fmt.Sprintf("[order update sid:%s status:%s]",
			e.OrderUpdate.Order.SID, e.OrderUpdate.Order.Status)
	case e.PositionUpdate != nil:
		return fmt.Sprintf("[position update market:%s size:%d]",
			e.PositionUpdate.Position.MarketAddr, e.PositionUpdate.Position.Size)
	case e.BalanceUpdate != nil:
		return fmt.Sprintf("[balance update vault:%s balance:%d]",
			e.BalanceUpdate.Vault.VaultAddr, e.BalanceUpdate.Vault.Balance)
	}
	return "[empty event]"
}

// MarshalJSON encodes the event as its payload object with the "type" tag
// injected alongside the payload fields.
func (e Event) MarshalJSON() ([]byte, error) {
	type tagged struct {
		Type string `json:"type"`
	}

	switch {
	case e.OrderbookSnapshot != nil:
		return json.Marshal(struct {
			tagged
			*OrderbookSnapshot
		}{tagged{EventKindOrderbookSnapshot}, e.OrderbookSnapshot})
	case e.OrderbookUpdate != nil:
		return json.Marshal(struct {
			tagged
			*OrderbookUpdate
		}{tagged{EventKindOrderbookUpdate}, e.OrderbookUpdate})
	case e.Trade != nil:
		return json.Marshal(struct {
			tagged
			*TradeEvent
		}{tagged{EventKindTrade}, e.Trade})
	case e.OrderUpdate != nil:
		return json.Marshal(struct {
			tagged
			*OrderUpdate
		}{tagged{EventKindOrderUpdate}, e.OrderUpdate})
	case e.PositionUpdate != nil:
		return json.Marshal(struct {
			tagged
			*PositionUpdate
		}{tagged{EventKindPositionUpdate}, e.PositionUpdate})
	case e.BalanceUpdate != nil:
		return json.Marshal(struct {
			tagged
			*BalanceUpdate
		}{tagged{EventKindBalanceUpdate}, e.BalanceUpdate})
	}

	return nil, errors.New("empty event")
}

// UnmarshalJSON decodes the payload selected by the "type" tag. Unknown tags
// are an error so callers can drop frames they do not understand.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return errors.Trace(err)
	}

	*e = Event{}

	switch head.Type {
	case EventKindOrderbookSnapshot:
		e.OrderbookSnapshot = &OrderbookSnapshot{}
		return errors.Trace(json.Unmarshal(data, e.OrderbookSnapshot))
	case EventKindOrderbookUpdate:
		e.OrderbookUpdate = &OrderbookUpdate{}
		return errors.Trace(json.Unmarshal(data, e.OrderbookUpdate))
	case EventKindTrade:
		e.Trade = &TradeEvent{}
		return errors.Trace(json.Unmarshal(data, e.Trade))
	case EventKindOrderUpdate:
		e.OrderUpdate = &OrderUpdate{}
		return errors.Trace(json.Unmarshal(data, e.OrderUpdate))
	case EventKindPositionUpdate:
		e.PositionUpdate = &PositionUpdate{}
		return errors.Trace(json.Unmarshal(data, e.PositionUpdate))
	case EventKindBalanceUpdate:
		e.BalanceUpdate = &BalanceUpdate{}
		return errors.Trace(json.Unmarshal(data, e.BalanceUpdate))
	}

	return errors.Errorf("unknown event type %q", head.Type)
}
