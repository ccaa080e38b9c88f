// Package config loads the vault service configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// FeedConfig describes one leaf oracle feed.
type FeedConfig struct {
	Name               string `toml:"Name"`
	Endpoint           string `toml:"Endpoint"`
	APIKey             string `toml:"APIKey"`
	MaxQuoteAgeSeconds int64  `toml:"MaxQuoteAgeSeconds"`
}

// Window returns the configured staleness window as a duration.
func (f FeedConfig) Window() time.Duration {
	if f.MaxQuoteAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(f.MaxQuoteAgeSeconds) * time.Second
}

// Config is the top level vaultd configuration.
type Config struct {
	ListenAddress      string     `toml:"ListenAddress"`
	DataDir            string     `toml:"DataDir"`
	CustodyAddress     string     `toml:"CustodyAddress"`
	RateLimitPerMinute float64    `toml:"RateLimitPerMinute"`
	RateLimitBurst     int        `toml:"RateLimitBurst"`
	BaseFeed           FeedConfig `toml:"base"`
	QuoteFeed          FeedConfig `toml:"quote"`
}

// Load reads the configuration from the given path. A missing file yields
// the normalised defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	normalized := cfg.Normalise()
	if err := normalized.Validate(); err != nil {
		return nil, err
	}
	return &normalized, nil
}

// Normalise applies defaults and canonical casing to the configuration
// values.
func (c Config) Normalise() Config {
	cfg := c
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.CustodyAddress) == "" {
		cfg.CustodyAddress = "0x0000000000000000000000000000000000001001"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 600
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	cfg.BaseFeed = cfg.BaseFeed.normalise("base")
	cfg.QuoteFeed = cfg.QuoteFeed.normalise("quote")
	return cfg
}

func (f FeedConfig) normalise(fallbackName string) FeedConfig {
	feed := f
	if strings.TrimSpace(feed.Name) == "" {
		feed.Name = fallbackName
	}
	feed.Name = strings.ToLower(strings.TrimSpace(feed.Name))
	feed.Endpoint = strings.TrimSpace(feed.Endpoint)
	feed.APIKey = strings.TrimSpace(feed.APIKey)
	if feed.MaxQuoteAgeSeconds <= 0 {
		feed.MaxQuoteAgeSeconds = 120
	}
	return feed
}

// Validate rejects configurations that cannot be wired.
func (c Config) Validate() error {
	if !ethcommon.IsHexAddress(strings.TrimSpace(c.CustodyAddress)) {
		return fmt.Errorf("config: invalid custody address %q", c.CustodyAddress)
	}
	return nil
}

// Custody parses the configured custody address.
func (c Config) Custody() ethcommon.Address {
	return ethcommon.HexToAddress(strings.TrimSpace(c.CustodyAddress))
}
