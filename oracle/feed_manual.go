package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// ManualFeed is an in-memory feed used for tests and manual overrides during
// incident response.
type ManualFeed struct {
	mu         sync.RWMutex
	value      *big.Int
	decimals   uint8
	observedAt time.Time
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied value, precision and observation timestamp.
func (m *ManualFeed) Set(value *big.Int, decimals uint8, observedAt time.Time) {
	if m == nil || value == nil {
		return
	}
	m.mu.Lock()
	m.value = new(big.Int).Set(value)
	m.decimals = decimals
	m.observedAt = observedAt
	m.mu.Unlock()
}

// SetDecimal parses a decimal integer string and stores it alongside the
// precision and timestamp.
func (m *ManualFeed) SetDecimal(value string, decimals uint8, observedAt time.Time) error {
	if m == nil {
		return fmt.Errorf("manual feed not configured")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("manual feed: value required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return fmt.Errorf("manual feed: invalid value %q", value)
	}
	if parsed.Sign() <= 0 {
		return fmt.Errorf("manual feed: value must be positive")
	}
	m.Set(parsed, decimals, observedAt)
	return nil
}

// FetchRate returns the stored observation.
func (m *ManualFeed) FetchRate() (*big.Int, uint8, time.Time, error) {
	if m == nil {
		return nil, 0, time.Time{}, fmt.Errorf("manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.value == nil {
		return nil, 0, time.Time{}, fmt.Errorf("manual feed: no observation recorded")
	}
	return new(big.Int).Set(m.value), m.decimals, m.observedAt, nil
}
