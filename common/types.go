package common

import (
	"net/url"
	"strconv"
)

// Market describes a single perpetual market on Ekiden. Prices and sizes
// everywhere in this package are unsigned integers in the market's minor
// units; use the decimals fields to convert for display.
type Market struct {
	MarketAddr             string  `json:"market_addr"`
	Symbol                 string  `json:"symbol"`
	BaseAddr               string  `json:"base_addr"`
	BaseDecimals           uint8   `json:"base_decimals"`
	QuoteAddr              string  `json:"quote_addr"`
	QuoteDecimals          uint8   `json:"quote_decimals"`
	MinOrderSize           uint64  `json:"min_order_size"`
	MaxLeverage            uint32  `json:"max_leverage"`
	InitialMarginRatio     float64 `json:"initial_margin_ratio"`
	MaintenanceMarginRatio float64 `json:"maintenance_margin_ratio"`
	MarkPrice              uint64  `json:"mark_price"`
	OraclePrice            uint64  `json:"oracle_price"`
	OpenInterest           uint64  `json:"open_interest"`
	FundingIndex           uint64  `json:"funding_index"`
	FundingEpoch           uint64  `json:"funding_epoch"`
	Root                   string  `json:"root"`
	Epoch                  uint64  `json:"epoch"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
}

// Order is a resting or historical order as reported by the venue.
type Order struct {
	SID        string `json:"sid"`
	Side       string `json:"side"`
	Size       uint64 `json:"size"`
	Price      uint64 `json:"price"`
	Leverage   uint64 `json:"leverage"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	UserAddr   string `json:"user_addr"`
	MarketAddr string `json:"market_addr"`
	Seq        uint64 `json:"seq"`
	Timestamp  uint64 `json:"timestamp"`
}

// Fill is a single trade print: a maker and a taker order matched at a price.
type Fill struct {
	SID        string `json:"sid"`
	Price      uint64 `json:"price"`
	Size       uint64 `json:"size"`
	Side       string `json:"side"`
	TakerAddr  string `json:"taker_addr"`
	MakerAddr  string `json:"maker_addr"`
	MarketAddr string `json:"market_addr"`
	Seq        uint64 `json:"seq"`
	Timestamp  uint64 `json:"timestamp"`
}

// Vault holds a user's balance of a single collateral asset.
type Vault struct {
	VaultAddr        string `json:"vault_addr"`
	UserAddr         string `json:"user_addr"`
	AssetAddr        string `json:"asset_addr"`
	Balance          uint64 `json:"balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	AvailableBalance uint64 `json:"available_balance"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// Position is a user's open position in one market.
type Position struct {
	MarketAddr       string `json:"market_addr"`
	UserAddr         string `json:"user_addr"`
	Side             string `json:"side"`
	Size             uint64 `json:"size"`
	EntryPrice       uint64 `json:"entry_price"`
	MarkPrice        uint64 `json:"mark_price"`
	UnrealizedPnl    int64  `json:"unrealized_pnl"`
	Margin           uint64 `json:"margin"`
	Leverage         uint64 `json:"leverage"`
	LiquidationPrice uint64 `json:"liquidation_price"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// Leverage is the per-market leverage setting of a user.
type Leverage struct {
	MarketAddr string `json:"market_addr"`
	UserAddr   string `json:"user_addr"`
	Leverage   uint64 `json:"leverage"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// Portfolio aggregates a user's account: a summary plus per-market positions
// and per-asset vaults.
type Portfolio struct {
	Summary   PortfolioSummary    `json:"summary"`
	Positions []PortfolioPosition `json:"positions"`
	Vaults    []PortfolioVault    `json:"vaults"`
}

type PortfolioSummary struct {
	TotalValue       uint64 `json:"total_value"`
	AvailableBalance uint64 `json:"available_balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	UnrealizedPnl    int64  `json:"unrealized_pnl"`
	MarginUsed       uint64 `json:"margin_used"`
	MarginAvailable  uint64 `json:"margin_available"`
}

type PortfolioPosition struct {
	MarketAddr    string `json:"market_addr"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          uint64 `json:"size"`
	EntryPrice    uint64 `json:"entry_price"`
	MarkPrice     uint64 `json:"mark_price"`
	UnrealizedPnl int64  `json:"unrealized_pnl"`
	Margin        uint64 `json:"margin"`
	Leverage      uint64 `json:"leverage"`
}

type PortfolioVault struct {
	VaultAddr        string `json:"vault_addr"`
	AssetAddr        string `json:"asset_addr"`
	Symbol           string `json:"symbol"`
	Balance          uint64 `json:"balance"`
	LockedBalance    uint64 `json:"locked_balance"`
	AvailableBalance uint64 `json:"available_balance"`
	USDValue         uint64 `json:"usd_value"`
}

// Deposit is an on-chain deposit into a vault, observed by the venue.
type Deposit struct {
	UserAddr  string `json:"user_addr"`
	VaultAddr string `json:"vault_addr"`
	AssetAddr string `json:"asset_addr"`
	Amount    uint64 `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Version   uint64 `json:"version"`
	Timestamp uint64 `json:"timestamp"`
	Status    string `json:"status"`
}

// Withdrawal is an on-chain withdrawal from a vault.
type Withdrawal struct {
	UserAddr  string `json:"user_addr"`
	VaultAddr string `json:"vault_addr"`
	AssetAddr string `json:"asset_addr"`
	Amount    uint64 `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Version   uint64 `json:"version"`
	Timestamp uint64 `json:"timestamp"`
	Status    string `json:"status"`
}

// Candle is one OHLCV bar. Interval is one of "1m", "5m", "15m", "1h", "4h",
// "1d".
type Candle struct {
	MarketAddr string `json:"market_addr"`
	Timestamp  uint64 `json:"timestamp"`
	Open       uint64 `json:"open"`
	High       uint64 `json:"high"`
	Low        uint64 `json:"low"`
	Close      uint64 `json:"close"`
	Volume     uint64 `json:"volume"`
	Interval   string `json:"interval"`
}

// FundingRate is one funding observation for a market.
type FundingRate struct {
	MarketAddr      string  `json:"market_addr"`
	FundingRate     float64 `json:"funding_rate"`
	FundingIndex    uint64  `json:"funding_index"`
	FundingEpoch    uint64  `json:"funding_epoch"`
	NextFundingTime uint64  `json:"next_funding_time"`
	Timestamp       uint64  `json:"timestamp"`
}

// Pagination controls list endpoints. Limit/Offset and Page/PageSize are two
// alternative schemes; set one or the other.
type Pagination struct {
	Limit    uint32 `json:"limit,omitempty"`
	Offset   uint32 `json:"offset,omitempty"`
	Page     uint32 `json:"page,omitempty"`
	PageSize uint32 `json:"page_size,omitempty"`
}

// DefaultPagination returns the default limit/offset window.
func DefaultPagination() Pagination {
	return Pagination{Limit: 100}
}

// QueryParams encodes the pagination as URL query values.
func (p Pagination) QueryParams() url.Values {
	v := url.Values{}

	if p.Limit > 0 {
		v.Set("limit", strconv.FormatUint(uint64(p.Limit), 10))
		v.Set("offset", strconv.FormatUint(uint64(p.Offset), 10))
	}

	if p.Page > 0 {
		v.Set("page", strconv.FormatUint(uint64(p.Page), 10))
	}

	if p.PageSize > 0 {
		v.Set("page_size", strconv.FormatUint(uint64(p.PageSize), 10))
	}

	return v
}
