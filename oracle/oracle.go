// Package oracle resolves the exchange rate between the reserve asset and
// vault shares. Leaf oracles wrap a single external feed and normalise its
// reported precision to the canonical 18-decimal scale; the composed oracle
// derives a cross rate from two independent leaves.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ratevault/fixedpoint"
)

var (
	// ErrStaleData indicates a quote exceeded its validity window and must
	// not be used.
	ErrStaleData = errors.New("oracle: quote outside validity window")
	// ErrInvalidRate indicates the upstream feed reported a missing,
	// zero or negative value.
	ErrInvalidRate = errors.New("oracle: rate must be positive")
	// ErrDecimalRange indicates the feed reported more decimals than the
	// canonical scale supports.
	ErrDecimalRange = errors.New("oracle: feed decimals exceed fixed scale")
)

// Quote captures a single oracle observation. The rate is expressed at the
// canonical 1e18 scale as shares per unit of asset. Quotes are created on
// each read, used within a single vault operation and then discarded; they
// are never persisted.
type Quote struct {
	Rate       *big.Int
	ObservedAt time.Time
	Window     time.Duration
	Source     string
}

// Clone returns a deep copy of the quote to prevent accidental mutation of
// the rate by callers.
func (q Quote) Clone() Quote {
	clone := Quote{ObservedAt: q.ObservedAt, Window: q.Window, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Int).Set(q.Rate)
	}
	return clone
}

// Fresh reports whether the quote is still inside its validity window at the
// supplied instant. A non-positive window disables the check.
func (q Quote) Fresh(now time.Time) bool {
	if q.Window <= 0 {
		return true
	}
	if q.ObservedAt.IsZero() {
		return false
	}
	if q.ObservedAt.After(now) {
		return true
	}
	return now.Sub(q.ObservedAt) <= q.Window
}

// Source is the capability consumed by the vault: a single synchronous quote
// read. Implementations must return ErrStaleData (possibly wrapped) when the
// observation falls outside the validity window.
type Source interface {
	Quote(now time.Time) (Quote, error)
}

// Feed abstracts the external rate provider backing a leaf oracle. The
// reported value may be expressed at an arbitrary decimal precision.
type Feed interface {
	FetchRate() (value *big.Int, decimals uint8, observedAt time.Time, err error)
}

// FeedOracle wraps a single external feed, normalising the reported value up
// to the canonical scale and enforcing the configured staleness window.
type FeedOracle struct {
	name   string
	feed   Feed
	window time.Duration
}

// NewFeedOracle constructs a leaf oracle over the supplied feed. The window
// bounds the maximum age a feed observation may have before quotes are
// rejected.
func NewFeedOracle(name string, feed Feed, window time.Duration) *FeedOracle {
	return &FeedOracle{name: strings.ToLower(strings.TrimSpace(name)), feed: feed, window: window}
}

// Name returns the oracle identifier used in quote attribution.
func (o *FeedOracle) Name() string {
	if o == nil {
		return ""
	}
	return o.name
}

// Decimals reports the precision quotes are normalised to. Every leaf quote
// is scaled to the canonical precision so composed oracles can combine
// interchangeable sources without further adjustment.
func (o *FeedOracle) Decimals() uint8 {
	return fixedpoint.Decimals
}

// Window returns the configured staleness window.
func (o *FeedOracle) Window() time.Duration {
	if o == nil {
		return 0
	}
	return o.window
}

// Quote fetches the current feed value, normalises it to the canonical scale
// and validates freshness against the supplied clock reading.
func (o *FeedOracle) Quote(now time.Time) (Quote, error) {
	if o == nil || o.feed == nil {
		return Quote{}, fmt.Errorf("oracle: feed not configured")
	}
	value, decimals, observedAt, err := o.feed.FetchRate()
	if err != nil {
		return Quote{}, fmt.Errorf("oracle %s: %w", o.name, err)
	}
	rate, err := Normalize(value, decimals)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle %s: %w", o.name, err)
	}
	quote := Quote{Rate: rate, ObservedAt: observedAt, Window: o.window, Source: o.name}
	if !quote.Fresh(now) {
		return Quote{}, fmt.Errorf("oracle %s: %w", o.name, ErrStaleData)
	}
	return quote, nil
}

// Normalize scales a feed value reported at the supplied decimal precision
// up to the canonical 18-decimal scale.
func Normalize(value *big.Int, decimals uint8) (*big.Int, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	if decimals > fixedpoint.Decimals {
		return nil, ErrDecimalRange
	}
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fixedpoint.Decimals-decimals)), nil)
	return new(big.Int).Mul(value, shift), nil
}

// ComposedOracle derives a cross rate from two independent leaf oracles:
// rate = base/quote, expressing how many quote-asset units one base-asset
// unit buys. Staleness is not independently overridable at the composed
// level; a quote is rejected whenever either constituent is outside its own
// window, so the tightest constituent window governs.
type ComposedOracle struct {
	name  string
	base  Source
	quote Source
}

// NewComposedOracle constructs a composed oracle over the supplied base and
// quote sources.
func NewComposedOracle(name string, base, quote Source) *ComposedOracle {
	return &ComposedOracle{name: strings.ToLower(strings.TrimSpace(name)), base: base, quote: quote}
}

// Quote reads both constituents and derives the cross rate. The composed
// observation timestamp is the earlier of the two constituent timestamps so
// the derived quote's freshness never outlives its least fresh input.
func (c *ComposedOracle) Quote(now time.Time) (Quote, error) {
	if c == nil || c.base == nil || c.quote == nil {
		return Quote{}, fmt.Errorf("oracle: composed sources not configured")
	}
	baseQuote, err := c.base.Quote(now)
	if err != nil {
		return Quote{}, err
	}
	quoteQuote, err := c.quote.Quote(now)
	if err != nil {
		return Quote{}, err
	}
	rate, err := fixedpoint.Div(baseQuote.Rate, quoteQuote.Rate)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle %s: %w", c.name, err)
	}
	if rate.Sign() <= 0 {
		return Quote{}, fmt.Errorf("oracle %s: %w", c.name, ErrInvalidRate)
	}
	observedAt := baseQuote.ObservedAt
	if quoteQuote.ObservedAt.Before(observedAt) {
		observedAt = quoteQuote.ObservedAt
	}
	window := baseQuote.Window
	if quoteQuote.Window > 0 && (window <= 0 || quoteQuote.Window < window) {
		window = quoteQuote.Window
	}
	return Quote{Rate: rate, ObservedAt: observedAt, Window: window, Source: c.name}, nil
}
