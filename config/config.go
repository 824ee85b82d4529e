// Package config holds endpoint configuration for the Ekiden API, with
// presets for the known environments and loading from YAML files and the
// environment.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Default connection settings.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultUserAgent  = "ekiden-sdk-go/" + Version
	DefaultAPIVersion = "v1"
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"

// Config holds the endpoints and request settings of one environment.
type Config struct {
	// BaseURL is the REST API base, e.g. "https://api.ekiden.fi/api/v1".
	BaseURL string

	// WSURL is the websocket endpoint, e.g. "wss://api.ekiden.fi/ws". If
	// empty it is derived from BaseURL.
	WSURL string

	// PrivateKey is the account's ed25519 private key seed in hex. Optional;
	// only needed for authorized endpoints.
	PrivateKey string

	Timeout    time.Duration
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	APIVersion string
}

// New creates a config for the given REST base URL and derives the websocket
// URL from it.
func New(baseURL string) (*Config, error) {
	wsURL, err := deriveWSURL(baseURL)
	if err != nil {
		return nil, errors.Trace(err)
	}

	cfg := &Config{
		BaseURL: strings.TrimRight(baseURL, "/"),
		WSURL:   wsURL,
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Production returns the config for the production environment.
func Production() *Config {
	return mustNew("https://api.ekiden.fi/api/v1")
}

// Staging returns the config for the staging environment.
func Staging() *Config {
	return mustNew("https://api.staging.ekiden.fi/api/v1")
}

// Testnet returns the config for the testnet environment. Testnet currently
// shares the staging deployment.
func Testnet() *Config {
	return mustNew("https://api.staging.ekiden.fi/api/v1")
}

// Local returns the config for a locally running venue.
func Local() *Config {
	return mustNew("http://localhost:3010/api/v1")
}

func mustNew(baseURL string) *Config {
	cfg, err := New(baseURL)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ForEnvironment returns the preset for the named environment: "production",
// "staging", "testnet" or "local".
func ForEnvironment(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "production", "prod":
		return Production(), nil
	case "staging":
		return Staging(), nil
	case "testnet":
		return Testnet(), nil
	case "local", "dev":
		return Local(), nil
	}
	return nil, errors.Errorf("unknown environment %q", name)
}

// APIURL joins the base URL with the endpoint path.
func (c *Config) APIURL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Validate checks the config for the fields every client needs.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.Annotatef(err, "parsing base_url")
	}
	if c.WSURL == "" {
		return errors.New("ws_url is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
}

// deriveWSURL converts an http(s) REST base into the ws(s) endpoint: the
// scheme is swapped and the path replaced with /ws.
func deriveWSURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Annotatef(err, "parsing base URL")
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("invalid URL scheme %q, expected http or https", u.Scheme)
	}

	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
