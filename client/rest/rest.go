/*
Package rest provides a client for the Ekiden REST API.

Public market data needs no credentials. User endpoints require an
authorization first:

	cfg := config.Production()
	a, err := auth.NewAuth().WithPrivateKey(privateKeyHex)
	if err != nil {
		log.Fatal(err)
	}

	client, err := rest.NewClient(&rest.ClientParams{Config: cfg, Auth: a})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := client.Authorize(ctx); err != nil {
		log.Fatal(err)
	}

	portfolio, err := client.GetPortfolio(ctx)
*/
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ekiden-sdk-go/auth"
	"ekiden-sdk-go/common"
	"ekiden-sdk-go/config"
	"ekiden-sdk-go/logger"
)

// defaultRateLimit caps outgoing requests when ClientParams doesn't set one.
const defaultRateLimit = rate.Limit(10)

// APIError is an error response from the venue.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "api error: " + http.StatusText(e.StatusCode)
	}
	return "api error: " + e.Message
}

// ClientParams contains options for creating a Client.
type ClientParams struct {
	// Config provides the endpoints and request settings. Required.
	Config *config.Config

	// Auth holds the key pair and token for user endpoints. If nil, an empty
	// one is created and only public endpoints are usable.
	Auth *auth.Auth

	// HTTPClient overrides the HTTP client. If nil, one is built from
	// Config.Timeout.
	HTTPClient *http.Client

	// RateLimit caps outgoing requests per second. Zero means the default of
	// 10 rps.
	RateLimit rate.Limit
}

// Client is a client of the Ekiden REST API. All methods are safe for
// concurrent use.
type Client struct {
	cfg        *config.Config
	auth       *auth.Auth
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// NewClient creates a REST client.
func NewClient(params *ClientParams) (*Client, error) {
	if params == nil || params.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	a := params.Auth
	if a == nil {
		a = auth.NewAuth()
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.Config.Timeout}
	}

	limit := params.RateLimit
	if limit == 0 {
		limit = defaultRateLimit
	}

	return &Client{
		cfg:        params.Config,
		auth:       a,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, int(limit)),
		log:        logger.WithComponent("rest"),
	}, nil
}

// Auth returns the client's auth state.
func (c *Client) Auth() *auth.Auth {
	return c.auth
}

// Authorize signs the authorization message and exchanges it for an API
// token, which is stored for subsequent user endpoint calls.
func (c *Client) Authorize(ctx context.Context) (auth.AuthorizeResponse, error) {
	params, err := c.auth.AuthorizeParams()
	if err != nil {
		return auth.AuthorizeResponse{}, errors.Trace(err)
	}

	var resp auth.AuthorizeResponse
	if err := c.do(ctx, requestOpts{
		method: http.MethodPost,
		path:   "authorize",
		body:   params,
	}, &resp); err != nil {
		return auth.AuthorizeResponse{}, errors.Trace(err)
	}

	c.auth.SetToken(resp.Token)
	c.log.Info("authorized")
	return resp, nil
}

// GetMarkets lists markets matching the params.
func (c *Client) GetMarkets(ctx context.Context, params MarketsParams) ([]common.Market, error) {
	var markets []common.Market
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "market_info",
		query:  params.QueryParams(),
	}, &markets)
	return markets, errors.Trace(err)
}

// GetMarketByAddress returns the market with the given address, or nil if it
// doesn't exist.
func (c *Client) GetMarketByAddress(ctx context.Context, marketAddr string) (*common.Market, error) {
	if err := auth.ValidateAddress(marketAddr); err != nil {
		return nil, errors.Trace(err)
	}

	markets, err := c.GetMarkets(ctx, MarketsParams{MarketAddr: marketAddr})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// GetMarketBySymbol returns the market with the given symbol, or nil if it
// doesn't exist.
func (c *Client) GetMarketBySymbol(ctx context.Context, symbol string) (*common.Market, error) {
	markets, err := c.GetMarkets(ctx, MarketsParams{Symbol: symbol})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// GetOrders lists orders on a market.
func (c *Client) GetOrders(ctx context.Context, params OrdersParams) ([]common.Order, error) {
	if err := auth.ValidateAddress(params.MarketAddr); err != nil {
		return nil, errors.Trace(err)
	}

	var orders []common.Order
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "orders",
		query:  params.QueryParams(),
	}, &orders)
	return orders, errors.Trace(err)
}

// GetFills lists fills on a market.
func (c *Client) GetFills(ctx context.Context, params FillsParams) ([]common.Fill, error) {
	if err := auth.ValidateAddress(params.MarketAddr); err != nil {
		return nil, errors.Trace(err)
	}

	var fills []common.Fill
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "fills",
		query:  params.QueryParams(),
	}, &fills)
	return fills, errors.Trace(err)
}

// GetRecentFills lists the latest fills on a market, newest first.
func (c *Client) GetRecentFills(ctx context.Context, marketAddr string, limit uint32) ([]common.Fill, error) {
	fills, err := c.GetFills(ctx, FillsParams{
		MarketAddr: marketAddr,
		Pagination: common.Pagination{Limit: limit},
	})
	return fills, errors.Trace(err)
}

// GetUserVaults lists the authorized user's vaults.
func (c *Client) GetUserVaults(ctx context.Context, params VaultsParams) ([]common.Vault, error) {
	var vaults []common.Vault
	err := c.do(ctx, requestOpts{
		method:       http.MethodGet,
		path:         "user/vaults",
		query:        params.QueryParams(),
		authRequired: true,
	}, &vaults)
	return vaults, errors.Trace(err)
}

// GetUserPositions lists the authorized user's positions.
func (c *Client) GetUserPositions(ctx context.Context, params PositionsParams) ([]common.Position, error) {
	var positions []common.Position
	err := c.do(ctx, requestOpts{
		method:       http.MethodGet,
		path:         "user/positions",
		query:        params.QueryParams(),
		authRequired: true,
	}, &positions)
	return positions, errors.Trace(err)
}

// GetUserLeverage returns the authorized user's leverage on a market.
func (c *Client) GetUserLeverage(ctx context.Context, marketAddr string) (common.Leverage, error) {
	if err := auth.ValidateAddress(marketAddr); err != nil {
		return common.Leverage{}, errors.Trace(err)
	}

	query := url.Values{}
	query.Set("market_addr", marketAddr)

	var lev common.Leverage
	err := c.do(ctx, requestOpts{
		method:       http.MethodGet,
		path:         "user/leverage",
		query:        query,
		authRequired: true,
	}, &lev)
	return lev, errors.Trace(err)
}

// maxLeverage caps leverage requests before they reach the venue; markets
// may enforce a lower limit of their own.
const maxLeverage = 100

// SetUserLeverage sets the authorized user's leverage on a market.
func (c *Client) SetUserLeverage(ctx context.Context, marketAddr string, leverage uint64) (common.Leverage, error) {
	if err := auth.ValidateAddress(marketAddr); err != nil {
		return common.Leverage{}, errors.Trace(err)
	}
	if leverage < 1 || leverage > maxLeverage {
		return common.Leverage{}, errors.Errorf("leverage must be between 1 and %d, got %d", maxLeverage, leverage)
	}

	var lev common.Leverage
	err := c.do(ctx, requestOpts{
		method:       http.MethodPost,
		path:         "user/leverage",
		body:         SetLeverageParams{MarketAddr: marketAddr, Leverage: leverage},
		authRequired: true,
	}, &lev)
	return lev, errors.Trace(err)
}

// GetPortfolio returns the authorized user's portfolio.
func (c *Client) GetPortfolio(ctx context.Context) (common.Portfolio, error) {
	var p common.Portfolio
	err := c.do(ctx, requestOpts{
		method:       http.MethodGet,
		path:         "user/portfolio",
		authRequired: true,
	}, &p)
	return p, errors.Trace(err)
}

// SendIntent submits a signed batch of trading actions.
func (c *Client) SendIntent(ctx context.Context, params SendIntentParams) (SendIntentResponse, error) {
	if len(params.Actions) == 0 {
		return SendIntentResponse{}, errors.New("intent needs at least one action")
	}

	var resp SendIntentResponse
	err := c.do(ctx, requestOpts{
		method:       http.MethodPost,
		path:         "user/intent",
		body:         params,
		authRequired: true,
	}, &resp)
	return resp, errors.Trace(err)
}

// GetDeposits lists deposits matching the params.
func (c *Client) GetDeposits(ctx context.Context, params TransfersParams) ([]common.Deposit, error) {
	var deposits []common.Deposit
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "deposits",
		query:  params.QueryParams(),
	}, &deposits)
	return deposits, errors.Trace(err)
}

// GetUserDeposits lists deposits of one user.
func (c *Client) GetUserDeposits(ctx context.Context, userAddr string) ([]common.Deposit, error) {
	if err := auth.ValidateAddress(userAddr); err != nil {
		return nil, errors.Trace(err)
	}
	return c.GetDeposits(ctx, TransfersParams{
		UserAddr:   userAddr,
		Pagination: common.DefaultPagination(),
	})
}

// GetWithdrawals lists withdrawals matching the params.
func (c *Client) GetWithdrawals(ctx context.Context, params TransfersParams) ([]common.Withdrawal, error) {
	var withdrawals []common.Withdrawal
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "withdraws",
		query:  params.QueryParams(),
	}, &withdrawals)
	return withdrawals, errors.Trace(err)
}

// GetUserWithdrawals lists withdrawals of one user.
func (c *Client) GetUserWithdrawals(ctx context.Context, userAddr string) ([]common.Withdrawal, error) {
	if err := auth.ValidateAddress(userAddr); err != nil {
		return nil, errors.Trace(err)
	}
	return c.GetWithdrawals(ctx, TransfersParams{
		UserAddr:   userAddr,
		Pagination: common.DefaultPagination(),
	})
}

// GetCandles lists candles for a market.
func (c *Client) GetCandles(ctx context.Context, params CandlesParams) ([]common.Candle, error) {
	if err := auth.ValidateAddress(params.MarketAddr); err != nil {
		return nil, errors.Trace(err)
	}
	if params.Interval == "" {
		return nil, errors.New("interval is required")
	}

	var candles []common.Candle
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "candles",
		query:  params.QueryParams(),
	}, &candles)
	return candles, errors.Trace(err)
}

// GetRecentCandles lists the latest candles for a market at one interval.
func (c *Client) GetRecentCandles(ctx context.Context, marketAddr, interval string, limit uint32) ([]common.Candle, error) {
	candles, err := c.GetCandles(ctx, CandlesParams{
		MarketAddr: marketAddr,
		Interval:   interval,
		Pagination: common.Pagination{Limit: limit},
	})
	return candles, errors.Trace(err)
}

// GetFundingRates lists funding rates for a market.
func (c *Client) GetFundingRates(ctx context.Context, params FundingRatesParams) ([]common.FundingRate, error) {
	if err := auth.ValidateAddress(params.MarketAddr); err != nil {
		return nil, errors.Trace(err)
	}

	var rates []common.FundingRate
	err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "funding_rate",
		query:  params.QueryParams(),
	}, &rates)
	return rates, errors.Trace(err)
}

// GetCurrentFundingRate returns the latest funding rate of a market, or nil
// if the market has none yet.
func (c *Client) GetCurrentFundingRate(ctx context.Context, marketAddr string) (*common.FundingRate, error) {
	rates, err := c.GetFundingRates(ctx, FundingRatesParams{
		MarketAddr: marketAddr,
		Pagination: common.Pagination{Limit: 1},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}

// requestOpts describes one API request.
type requestOpts struct {
	method       string
	path         string
	query        url.Values
	body         interface{}
	authRequired bool
}

// do performs the request and decodes the response into out, if non-nil.
func (c *Client) do(ctx context.Context, opts requestOpts, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Trace(err)
	}

	if opts.authRequired {
		if err := c.auth.EnsureAuthenticated(); err != nil {
			return errors.Trace(err)
		}
	}

	reqURL := c.cfg.APIURL(opts.path)
	if len(opts.query) > 0 {
		reqURL += "?" + opts.query.Encode()
	}

	var bodyReader io.Reader
	if opts.body != nil {
		data, err := json.Marshal(opts.body)
		if err != nil {
			return errors.Trace(err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, reqURL, bodyReader)
	if err != nil {
		return errors.Trace(err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.authRequired {
		req.Header.Set("Authorization", c.auth.BearerToken())
	}

	c.log.WithFields(logrus.Fields{
		"method":     opts.method,
		"path":       opts.path,
		"request_id": requestID,
	}).Debug("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Annotatef(err, "%s %s", opts.method, opts.path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Trace(parseAPIError(resp, requestID))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Annotatef(err, "decoding %s response", opts.path)
	}
	return nil
}

func parseAPIError(resp *http.Response, requestID string) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		} else {
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(body)
	}

	return apiErr
}
