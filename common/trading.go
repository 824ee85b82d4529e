package common

// OrderSide represents the order side; e.g. "buy" or "sell".
type OrderSide int32

const (
	SellOrder OrderSide = iota
	BuyOrder
)

// OrderSideNames contains the wire names for OrderSide.
var OrderSideNames = map[OrderSide]string{
	SellOrder: "sell",
	BuyOrder:  "buy",
}

func (s OrderSide) String() string {
	return OrderSideNames[s]
}

// OrderType represents the type of order. Ekiden supports market and limit
// orders.
type OrderType int32

const (
	MarketOrder OrderType = iota
	LimitOrder
)

// OrderTypeNames contains the wire names for OrderType.
var OrderTypeNames = map[OrderType]string{
	MarketOrder: "market",
	LimitOrder:  "limit",
}

func (t OrderType) String() string {
	return OrderTypeNames[t]
}
