package websocket

// Channel name constructors. A channel name is "<topic>/<addr>", with
// candles carrying an extra interval segment.

// OrderbookChannel returns the channel carrying orderbook snapshots and
// updates for a market.
func OrderbookChannel(marketAddr string) string {
	return "orderbook/" + marketAddr
}

// TradesChannel returns the channel carrying public trades for a market.
func TradesChannel(marketAddr string) string {
	return "trades/" + marketAddr
}

// UserChannel returns the channel carrying private order, position and
// balance updates for a user. Subscribing requires prior authorization.
func UserChannel(userAddr string) string {
	return "user/" + userAddr
}

// CandlesChannel returns the channel carrying candle updates for a market at
// the given interval ("1m", "5m", "15m", "1h", "4h" or "1d").
func CandlesChannel(marketAddr, interval string) string {
	return "candles/" + marketAddr + "/" + interval
}
