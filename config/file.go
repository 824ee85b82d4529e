package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by Load and FromEnv.
const (
	EnvBaseURL    = "EKIDEN_BASE_URL"
	EnvWSURL      = "EKIDEN_WS_URL"
	EnvPrivateKey = "EKIDEN_PRIVATE_KEY"
	EnvName       = "EKIDEN_ENV"
)

// fileConfig is the YAML shape of a config file. Durations are strings like
// "30s".
type fileConfig struct {
	BaseURL    string `yaml:"base_url"`
	WSURL      string `yaml:"ws_url"`
	PrivateKey string `yaml:"private_key"`
	Timeout    string `yaml:"timeout"`
	UserAgent  string `yaml:"user_agent"`
	MaxRetries int    `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
	APIVersion string `yaml:"api_version"`
}

// Load reads a YAML config file and applies environment overrides on top.
// A .env file in the working directory, if present, is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Annotatef(err, "loading .env")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading config file")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Annotatef(err, "parsing config file")
	}

	cfg := &Config{
		BaseURL:    fc.BaseURL,
		WSURL:      fc.WSURL,
		PrivateKey: fc.PrivateKey,
		UserAgent:  fc.UserAgent,
		MaxRetries: fc.MaxRetries,
		APIVersion: fc.APIVersion,
	}

	if cfg.Timeout, err = parseDuration(fc.Timeout, "timeout"); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.RetryDelay, err = parseDuration(fc.RetryDelay, "retry_delay"); err != nil {
		return nil, errors.Trace(err)
	}

	applyEnvOverrides(cfg)

	if cfg.WSURL == "" && cfg.BaseURL != "" {
		if cfg.WSURL, err = deriveWSURL(cfg.BaseURL); err != nil {
			return nil, errors.Trace(err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	return cfg, nil
}

// FromEnv builds a config from environment variables alone. EKIDEN_ENV
// selects a preset; EKIDEN_BASE_URL, EKIDEN_WS_URL and EKIDEN_PRIVATE_KEY
// override individual fields. Without any of them, the local preset is used.
func FromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Annotatef(err, "loading .env")
	}

	var cfg *Config
	var err error

	if name := os.Getenv(EnvName); name != "" {
		if cfg, err = ForEnvironment(name); err != nil {
			return nil, errors.Trace(err)
		}
	} else if base := os.Getenv(EnvBaseURL); base != "" {
		if cfg, err = New(base); err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		cfg = Local()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		cfg.PrivateKey = v
	}
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Annotatef(err, "parsing %s", field)
	}
	return d, nil
}

// WriteExample writes an example config to path.
func WriteExample(path string) error {
	example := fileConfig{
		BaseURL:    "https://api.ekiden.fi/api/v1",
		WSURL:      "wss://api.ekiden.fi/ws",
		Timeout:    "30s",
		MaxRetries: 3,
		RetryDelay: "1s",
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(os.WriteFile(path, data, 0o644))
}
