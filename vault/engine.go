// Package vault implements the dual-token accounting core. Deposits convert
// reserve asset units to fungible shares at the oracle rate current at the
// moment of the call and mint a matching amount of semi-fungible receipt
// units whose id equals that rate. Withdrawals and redemptions burn shares
// and receipt units together, so shares minted at one price can never be
// redeemed with the credentials of a different price: each rate is accounted
// as an independent pool inside one shared vault.
package vault

import (
	"errors"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"ratevault/fixedpoint"
	"ratevault/observability/metrics"
	"ratevault/oracle"
)

// ShareLedger is the fungible claim token collaborator.
type ShareLedger interface {
	Mint(holder ethcommon.Address, amount *big.Int) error
	Burn(holder ethcommon.Address, amount *big.Int) error
	BalanceOf(holder ethcommon.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
}

// ReceiptLedger is the semi-fungible claim token collaborator, keyed by the
// rate the receipt units were minted at.
type ReceiptLedger interface {
	Mint(holder ethcommon.Address, id, amount *big.Int) error
	Burn(holder ethcommon.Address, id, amount *big.Int) error
	BalanceOf(holder ethcommon.Address, id *big.Int) (*big.Int, error)
	TotalSupply(id *big.Int) (*big.Int, error)
	IsApprovedForAll(owner, operator ethcommon.Address) (bool, error)
}

// AssetLedger is the reserve asset collaborator holding vault custody.
type AssetLedger interface {
	Transfer(from, to ethcommon.Address, amount *big.Int) error
	BalanceOf(holder ethcommon.Address) (*big.Int, error)
}

// Engine orchestrates deposit, withdraw and redeem against the injected
// ledgers and oracle. A single mutex serialises every mutation on the vault
// instance: each call runs to completion before the next is observed, which
// yields the apply-or-revert atomicity the accounting invariants rely on.
type Engine struct {
	mu       sync.Mutex
	custody  ethcommon.Address
	source   oracle.Source
	shares   ShareLedger
	receipts ReceiptLedger
	reserve  AssetLedger
	clock    func() time.Time
	metrics  *metrics.VaultMetrics
}

// NewEngine constructs a vault engine. The custody address is the account
// the reserve ledger attributes vault holdings to; the oracle and ledgers
// are explicit dependencies owned by the composition root.
func NewEngine(custody ethcommon.Address, source oracle.Source, shares ShareLedger, receipts ReceiptLedger, reserve AssetLedger) *Engine {
	return &Engine{
		custody:  custody,
		source:   source,
		shares:   shares,
		receipts: receipts,
		reserve:  reserve,
		clock:    time.Now,
	}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetMetrics wires the engine to the vault metrics registry. A nil registry
// disables recording.
func (e *Engine) SetMetrics(m *metrics.VaultMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// Custody returns the reserve account the vault holds deposits under.
func (e *Engine) Custody() ethcommon.Address {
	if e == nil {
		return ethcommon.Address{}
	}
	return e.custody
}

func (e *Engine) configured() error {
	if e == nil || e.source == nil || e.shares == nil || e.receipts == nil || e.reserve == nil {
		return ErrNotConfigured
	}
	return nil
}

// CurrentQuote reads the composed oracle without mutating vault state.
func (e *Engine) CurrentQuote() (oracle.Quote, error) {
	if err := e.configured(); err != nil {
		return oracle.Quote{}, err
	}
	quote, err := e.source.Quote(e.clock())
	if err != nil {
		if errors.Is(err, oracle.ErrStaleData) {
			e.metrics.StaleQuoteObserved()
		}
		return oracle.Quote{}, err
	}
	return quote, nil
}

// Deposit converts assetAmount reserve units to shares at the current
// oracle rate, accepting any positive rate. This is the intentionally weaker
// convenience overload: callers who care about slippage should use
// DepositMinRate.
func (e *Engine) Deposit(caller ethcommon.Address, assetAmount *big.Int, receiver ethcommon.Address) (*big.Int, error) {
	return e.deposit(caller, assetAmount, receiver, nil)
}

// DepositMinRate converts assetAmount reserve units to shares, failing with
// ErrMinShareRatioNotMet when the live oracle rate is below minRate.
func (e *Engine) DepositMinRate(caller ethcommon.Address, assetAmount *big.Int, receiver ethcommon.Address, minRate *big.Int) (*big.Int, error) {
	return e.deposit(caller, assetAmount, receiver, minRate)
}

func (e *Engine) deposit(caller ethcommon.Address, assetAmount *big.Int, receiver ethcommon.Address, minRate *big.Int) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if assetAmount == nil || assetAmount.Sign() <= 0 {
		e.metrics.OperationRejected("zero_assets")
		return nil, ErrZeroAssets
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	quote, err := e.source.Quote(e.clock())
	if err != nil {
		if errors.Is(err, oracle.ErrStaleData) {
			e.metrics.StaleQuoteObserved()
		}
		return nil, err
	}
	if quote.Rate == nil || quote.Rate.Sign() <= 0 {
		return nil, oracle.ErrInvalidRate
	}
	if minRate != nil && quote.Rate.Cmp(minRate) < 0 {
		e.metrics.OperationRejected("min_rate")
		return nil, ErrMinShareRatioNotMet
	}

	shareAmount, err := fixedpoint.Mul(quote.Rate, assetAmount)
	if err != nil {
		return nil, err
	}

	callerBalance, err := e.reserve.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if callerBalance.Cmp(assetAmount) < 0 {
		e.metrics.OperationRejected("insufficient_balance")
		return nil, ErrInsufficientBalance
	}

	// All preconditions hold; apply the transition.
	if err := e.reserve.Transfer(caller, e.custody, assetAmount); err != nil {
		return nil, err
	}
	if err := e.shares.Mint(receiver, shareAmount); err != nil {
		return nil, err
	}
	if err := e.receipts.Mint(receiver, quote.Rate, shareAmount); err != nil {
		return nil, err
	}

	e.metrics.DepositObserved()
	e.recordGauges()
	return shareAmount, nil
}

// Withdraw burns the shares corresponding to assetAmount at the supplied
// rate and releases assetAmount reserve units to the receiver. The rate is
// caller-chosen but must match a receipt id the owner actually holds in
// sufficient quantity; it is a partition key, so deposits made at an
// identical rate pool together. Returns the burned share amount.
func (e *Engine) Withdraw(caller ethcommon.Address, assetAmount *big.Int, receiver, owner ethcommon.Address, rate *big.Int) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if assetAmount == nil || assetAmount.Sign() <= 0 {
		e.metrics.OperationRejected("zero_assets")
		return nil, ErrZeroAssets
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rate == nil || rate.Sign() <= 0 {
		e.metrics.OperationRejected("insufficient_balance")
		return nil, ErrInsufficientBalance
	}
	shareAmount, err := fixedpoint.Mul(rate, assetAmount)
	if err != nil {
		return nil, err
	}
	if err := e.burn(caller, owner, receiver, rate, shareAmount, assetAmount); err != nil {
		return nil, err
	}

	e.metrics.WithdrawObserved()
	e.recordGauges()
	return shareAmount, nil
}

// Redeem burns shareAmount shares together with the matching receipt units
// at the supplied rate and releases the corresponding reserve units to the
// receiver. Returns the released asset amount.
func (e *Engine) Redeem(caller ethcommon.Address, shareAmount *big.Int, receiver, owner ethcommon.Address, rate *big.Int) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		e.metrics.OperationRejected("zero_assets")
		return nil, ErrZeroAssets
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A non-positive rate can never correspond to a minted receipt, so it
	// is rejected before reaching the arithmetic layer.
	if rate == nil || rate.Sign() <= 0 {
		e.metrics.OperationRejected("insufficient_balance")
		return nil, ErrInsufficientBalance
	}
	assetAmount, err := fixedpoint.Div(shareAmount, rate)
	if err != nil {
		return nil, err
	}
	if err := e.burn(caller, owner, receiver, rate, shareAmount, assetAmount); err != nil {
		return nil, err
	}

	e.metrics.RedeemObserved()
	e.recordGauges()
	return assetAmount, nil
}

// burn applies the shared withdraw/redeem transition: both ledgers are
// checked before either is touched, so a failure leaves no partial state.
func (e *Engine) burn(caller, owner, receiver ethcommon.Address, rate, shareAmount, assetAmount *big.Int) error {
	if caller != owner {
		approved, err := e.receipts.IsApprovedForAll(owner, caller)
		if err != nil {
			return err
		}
		if !approved {
			e.metrics.OperationRejected("not_authorized")
			return ErrNotAuthorized
		}
	}

	shareBalance, err := e.shares.BalanceOf(owner)
	if err != nil {
		return err
	}
	receiptBalance, err := e.receipts.BalanceOf(owner, rate)
	if err != nil {
		return err
	}
	if shareBalance.Cmp(shareAmount) < 0 || receiptBalance.Cmp(shareAmount) < 0 {
		e.metrics.OperationRejected("insufficient_balance")
		return ErrInsufficientBalance
	}

	custodyBalance, err := e.reserve.BalanceOf(e.custody)
	if err != nil {
		return err
	}
	if custodyBalance.Cmp(assetAmount) < 0 {
		e.metrics.OperationRejected("insufficient_balance")
		return ErrInsufficientBalance
	}

	if err := e.shares.Burn(owner, shareAmount); err != nil {
		return err
	}
	if err := e.receipts.Burn(owner, rate, shareAmount); err != nil {
		return err
	}
	return e.reserve.Transfer(e.custody, receiver, assetAmount)
}

// BalanceOf returns the holder's fungible share balance.
func (e *Engine) BalanceOf(holder ethcommon.Address) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	return e.shares.BalanceOf(holder)
}

// ReceiptBalanceOf returns the holder's receipt balance at the given rate.
func (e *Engine) ReceiptBalanceOf(holder ethcommon.Address, rate *big.Int) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	return e.receipts.BalanceOf(holder, rate)
}

// TotalShares returns the aggregate issued share amount.
func (e *Engine) TotalShares() (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	return e.shares.TotalSupply()
}

// ReceiptSupply returns the outstanding receipt units at the given rate.
func (e *Engine) ReceiptSupply(rate *big.Int) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	return e.receipts.TotalSupply(rate)
}

// Reserve returns the reserve units currently held in vault custody.
func (e *Engine) Reserve() (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	return e.reserve.BalanceOf(e.custody)
}

func (e *Engine) recordGauges() {
	if e.metrics == nil {
		return
	}
	if total, err := e.shares.TotalSupply(); err == nil {
		e.metrics.SetSharesOutstanding(total)
	}
	if reserve, err := e.reserve.BalanceOf(e.custody); err == nil {
		e.metrics.SetReserveUnits(reserve)
	}
}
