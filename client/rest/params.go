package rest

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/juju/errors"

	"ekiden-sdk-go/common"
)

// MarketsParams filters the markets listing. All fields are optional.
type MarketsParams struct {
	MarketAddr string
	Symbol     string
	Pagination common.Pagination
}

func (p MarketsParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	setNonEmpty(v, "symbol", p.Symbol)
	return v
}

// OrdersParams filters the orders listing. MarketAddr is required.
type OrdersParams struct {
	MarketAddr string
	Side       string
	Pagination common.Pagination
}

func (p OrdersParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	setNonEmpty(v, "side", p.Side)
	return v
}

// FillsParams filters the fills listing. MarketAddr is required.
type FillsParams struct {
	MarketAddr string
	Pagination common.Pagination
}

func (p FillsParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	return v
}

// VaultsParams paginates the user vaults listing.
type VaultsParams struct {
	Pagination common.Pagination
}

func (p VaultsParams) QueryParams() url.Values {
	return p.Pagination.QueryParams()
}

// PositionsParams filters the user positions listing.
type PositionsParams struct {
	MarketAddr string
	Pagination common.Pagination
}

func (p PositionsParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	return v
}

// TransfersParams filters deposit and withdrawal listings. Version bounds of
// zero mean unbounded.
type TransfersParams struct {
	UserAddr     string
	VaultAddr    string
	AssetAddr    string
	StartVersion uint64
	EndVersion   uint64
	Pagination   common.Pagination
}

func (p TransfersParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "user_addr", p.UserAddr)
	setNonEmpty(v, "vault_addr", p.VaultAddr)
	setNonEmpty(v, "asset_addr", p.AssetAddr)
	setNonZero(v, "start_version", p.StartVersion)
	setNonZero(v, "end_version", p.EndVersion)
	return v
}

// CandlesParams filters the candles listing. MarketAddr and Interval are
// required; time bounds of zero mean unbounded.
type CandlesParams struct {
	MarketAddr string
	Interval   string
	StartTime  uint64
	EndTime    uint64
	Pagination common.Pagination
}

func (p CandlesParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	setNonEmpty(v, "interval", p.Interval)
	setNonZero(v, "start_time", p.StartTime)
	setNonZero(v, "end_time", p.EndTime)
	return v
}

// FundingRatesParams filters the funding rate listing. MarketAddr is
// required.
type FundingRatesParams struct {
	MarketAddr string
	StartTime  uint64
	EndTime    uint64
	Pagination common.Pagination
}

func (p FundingRatesParams) QueryParams() url.Values {
	v := p.Pagination.QueryParams()
	setNonEmpty(v, "market_addr", p.MarketAddr)
	setNonZero(v, "start_time", p.StartTime)
	setNonZero(v, "end_time", p.EndTime)
	return v
}

// IntentAction is one action inside an intent, e.g. an order placement or
// cancellation. Data is the action-specific payload.
type IntentAction struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SendIntentParams is the body of the intent endpoint: a batch of actions
// plus the user's signature over them.
type SendIntentParams struct {
	Actions   []IntentAction `json:"actions"`
	Signature string         `json:"signature"`
}

// PlaceOrderParams describes a new order for an intent action.
type PlaceOrderParams struct {
	MarketAddr string           `json:"market_addr"`
	Side       common.OrderSide `json:"-"`
	Type       common.OrderType `json:"-"`
	Size       uint64           `json:"size"`
	Price      uint64           `json:"price,omitempty"`
	Leverage   uint64           `json:"leverage,omitempty"`
}

// PlaceOrderAction builds a place_order intent action.
func PlaceOrderAction(params PlaceOrderParams) (IntentAction, error) {
	data, err := json.Marshal(struct {
		PlaceOrderParams
		Side string `json:"side"`
		Type string `json:"type"`
	}{params, params.Side.String(), params.Type.String()})
	if err != nil {
		return IntentAction{}, errors.Trace(err)
	}
	return IntentAction{Type: "place_order", Data: data}, nil
}

// CancelOrderAction builds a cancel_order intent action for the given order.
func CancelOrderAction(marketAddr, sid string) (IntentAction, error) {
	data, err := json.Marshal(struct {
		MarketAddr string `json:"market_addr"`
		SID        string `json:"sid"`
	}{marketAddr, sid})
	if err != nil {
		return IntentAction{}, errors.Trace(err)
	}
	return IntentAction{Type: "cancel_order", Data: data}, nil
}

// IntentOutput is the per-action result of an executed intent.
type IntentOutput struct {
	ActionType string          `json:"action_type"`
	Result     json.RawMessage `json:"result"`
}

// SendIntentResponse reports the outcome of an intent.
type SendIntentResponse struct {
	Seq     uint64         `json:"seq"`
	Status  string         `json:"status"`
	Outputs []IntentOutput `json:"outputs"`
}

// SetLeverageParams is the body of the leverage endpoint.
type SetLeverageParams struct {
	MarketAddr string `json:"market_addr"`
	Leverage   uint64 `json:"leverage"`
}

func setNonEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setNonZero(v url.Values, key string, value uint64) {
	if value != 0 {
		v.Set(key, strconv.FormatUint(value, 10))
	}
}
