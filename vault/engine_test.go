package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"ratevault/fixedpoint"
	"ratevault/oracle"
	"ratevault/storage"
	"ratevault/token"
)

var (
	custody   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	depositor = ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	second    = ethcommon.HexToAddress("0x00000000000000000000000000000000000000dd")
)

type fixture struct {
	engine   *Engine
	shares   *token.Ledger
	receipts *token.ReceiptLedger
	reserve  *token.Ledger
	baseFeed *oracle.ManualFeed
	quoteFed *oracle.ManualFeed
	now      time.Time
}

func mustBig(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer constant %q", value)
	}
	return v
}

// newFixture wires a vault over in-memory ledgers with a composed oracle
// whose legs report 2228.25 and 1767.15 at 8 decimals, giving a cross rate
// of roughly 1.26093e18.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Unix(1_700_000_000, 0).UTC()
	db := storage.NewMemDB()

	baseFeed := oracle.NewManualFeed()
	baseFeed.Set(mustBig(t, "222825000000"), 8, now)
	quoteFeed := oracle.NewManualFeed()
	quoteFeed.Set(mustBig(t, "176715000000"), 8, now)
	composed := newComposedSource(baseFeed, quoteFeed)

	shares := token.NewLedger(db, "share")
	receipts := token.NewReceiptLedger(db)
	reserve := token.NewLedger(db, "reserve")
	if err := reserve.Mint(depositor, big.NewInt(10_000)); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	engine := NewEngine(custody, composed, shares, receipts, reserve)
	engine.SetClock(func() time.Time { return now })

	return &fixture{
		engine:   engine,
		shares:   shares,
		receipts: receipts,
		reserve:  reserve,
		baseFeed: baseFeed,
		quoteFed: quoteFeed,
		now:      now,
	}
}

// newComposedSource builds the composed oracle topology over two feeds.
func newComposedSource(base, quote oracle.Feed) oracle.Source {
	return oracle.NewComposedOracle("cross",
		oracle.NewFeedOracle("base", base, time.Minute),
		oracle.NewFeedOracle("quote", quote, time.Minute),
	)
}

// setFixedRate overrides both legs so the composed rate is exactly the
// supplied 1e18-scaled value.
func (f *fixture) setFixedRate(t *testing.T, rate *big.Int) {
	t.Helper()
	f.baseFeed.Set(rate, fixedpoint.Decimals, f.now)
	f.quoteFed.Set(fixedpoint.Scale(), fixedpoint.Decimals, f.now)
}

func (f *fixture) currentRate(t *testing.T) *big.Int {
	t.Helper()
	quote, err := f.engine.CurrentQuote()
	if err != nil {
		t.Fatalf("current quote: %v", err)
	}
	return quote.Rate
}

func TestDepositMintsSharesAndReceipts(t *testing.T) {
	f := newFixture(t)
	rate := f.currentRate(t)

	shareAmount, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	expected, err := fixedpoint.Mul(rate, big.NewInt(5000))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if shareAmount.Cmp(expected) != 0 {
		t.Fatalf("expected %s shares, got %s", expected, shareAmount)
	}

	shareBalance, _ := f.engine.BalanceOf(depositor)
	if shareBalance.Cmp(expected) != 0 {
		t.Fatalf("expected share balance %s, got %s", expected, shareBalance)
	}
	receiptBalance, _ := f.engine.ReceiptBalanceOf(depositor, rate)
	if receiptBalance.Cmp(expected) != 0 {
		t.Fatalf("expected receipt balance %s at rate id, got %s", expected, receiptBalance)
	}

	reserveHeld, _ := f.engine.Reserve()
	if reserveHeld.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected 5000 reserve units in custody, got %s", reserveHeld)
	}
}

func TestDepositZeroAssetsFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Deposit(depositor, big.NewInt(0), depositor); !errors.Is(err, ErrZeroAssets) {
		t.Fatalf("expected ErrZeroAssets, got %v", err)
	}
	if _, err := f.engine.Deposit(depositor, nil, depositor); !errors.Is(err, ErrZeroAssets) {
		t.Fatalf("expected ErrZeroAssets for nil amount, got %v", err)
	}
}

func TestDepositMinRateGuard(t *testing.T) {
	f := newFixture(t)
	rate := f.currentRate(t)

	floor := new(big.Int).Add(rate, big.NewInt(1))
	if _, err := f.engine.DepositMinRate(depositor, big.NewInt(100), depositor, floor); !errors.Is(err, ErrMinShareRatioNotMet) {
		t.Fatalf("expected ErrMinShareRatioNotMet, got %v", err)
	}
	// A rejected deposit leaves no state change.
	if balance, _ := f.engine.BalanceOf(depositor); balance.Sign() != 0 {
		t.Fatalf("expected no shares after rejection, got %s", balance)
	}
	if held, _ := f.engine.Reserve(); held.Sign() != 0 {
		t.Fatalf("expected no custody change after rejection, got %s", held)
	}

	// A floor at or below the live rate succeeds.
	if _, err := f.engine.DepositMinRate(depositor, big.NewInt(100), depositor, rate); err != nil {
		t.Fatalf("deposit at exact floor: %v", err)
	}
	if _, err := f.engine.DepositMinRate(depositor, big.NewInt(100), depositor, big.NewInt(1)); err != nil {
		t.Fatalf("deposit below floor: %v", err)
	}
}

func TestDepositStaleOracleFails(t *testing.T) {
	f := newFixture(t)
	f.baseFeed.Set(mustBig(t, "222825000000"), 8, f.now.Add(-2*time.Minute))
	if _, err := f.engine.Deposit(depositor, big.NewInt(100), depositor); !errors.Is(err, oracle.ErrStaleData) {
		t.Fatalf("expected ErrStaleData, got %v", err)
	}
}

func TestRoundTripRestoresDepositorBalance(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000") // 1.26
	f.setFixedRate(t, rate)

	shareAmount, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shareAmount.Cmp(big.NewInt(6300)) != 0 {
		t.Fatalf("expected floor(1.26*5000)=6300 shares, got %s", shareAmount)
	}

	assetAmount, err := f.engine.Redeem(depositor, shareAmount, depositor, depositor, rate)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if assetAmount.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected floor(6300/1.26)=5000 assets, got %s", assetAmount)
	}

	balance, _ := f.reserve.BalanceOf(depositor)
	if balance.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected original reserve balance restored, got %s", balance)
	}
	if shareBalance, _ := f.engine.BalanceOf(depositor); shareBalance.Sign() != 0 {
		t.Fatalf("expected all shares burned, got %s", shareBalance)
	}
	if receiptBalance, _ := f.engine.ReceiptBalanceOf(depositor, rate); receiptBalance.Sign() != 0 {
		t.Fatalf("expected all receipts burned, got %s", receiptBalance)
	}
}

func TestWithdrawIsAssetDenominatedDual(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000")
	f.setFixedRate(t, rate)

	if _, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	shareAmount, err := f.engine.Withdraw(depositor, big.NewInt(1000), depositor, depositor, rate)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if shareAmount.Cmp(big.NewInt(1260)) != 0 {
		t.Fatalf("expected 1260 shares burned, got %s", shareAmount)
	}
	balance, _ := f.reserve.BalanceOf(depositor)
	if balance.Cmp(big.NewInt(6000)) != 0 {
		t.Fatalf("expected reserve balance 6000, got %s", balance)
	}
}

func TestRedeemWrongRateFails(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000")
	f.setFixedRate(t, rate)

	shareAmount, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The fungible balance covers the amount, but the caller holds no
	// receipts at the claimed rate.
	otherRate := mustBig(t, "1310000000000000000")
	if _, err := f.engine.Redeem(depositor, shareAmount, depositor, depositor, otherRate); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unheld rate, got %v", err)
	}

	// Nothing was burned by the failed attempt.
	if balance, _ := f.engine.BalanceOf(depositor); balance.Cmp(shareAmount) != 0 {
		t.Fatalf("failed redeem mutated share balance: %s", balance)
	}
	if balance, _ := f.engine.ReceiptBalanceOf(depositor, rate); balance.Cmp(shareAmount) != 0 {
		t.Fatalf("failed redeem mutated receipt balance: %s", balance)
	}
}

func TestSharesWithoutReceiptsCannotRedeem(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000")
	f.setFixedRate(t, rate)

	shareAmount, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Transfer only the fungible shares; the receipts stay behind.
	if err := f.shares.Transfer(depositor, second, shareAmount); err != nil {
		t.Fatalf("transfer shares: %v", err)
	}
	if _, err := f.engine.Redeem(second, shareAmount, second, second, rate); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance without receipts, got %v", err)
	}

	// The original depositor kept the receipts but no longer has shares.
	if _, err := f.engine.Redeem(depositor, shareAmount, depositor, depositor, rate); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance without shares, got %v", err)
	}
}

func TestSameRateDepositsPoolTogether(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000")
	f.setFixedRate(t, rate)

	first, err := f.engine.Deposit(depositor, big.NewInt(2000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	secondAmount, err := f.engine.Deposit(depositor, big.NewInt(3000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	total := new(big.Int).Add(first, secondAmount)

	// The rate is a partition key, not a deposit identity: both deposits
	// redeem through the one pooled receipt balance.
	assetAmount, err := f.engine.Redeem(depositor, total, depositor, depositor, rate)
	if err != nil {
		t.Fatalf("redeem pooled: %v", err)
	}
	if assetAmount.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected pooled redemption of 5000, got %s", assetAmount)
	}
}

func TestOperatorAuthorization(t *testing.T) {
	f := newFixture(t)
	rate := mustBig(t, "1260000000000000000")
	f.setFixedRate(t, rate)

	shareAmount, err := f.engine.Deposit(depositor, big.NewInt(5000), depositor)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := f.engine.Redeem(second, shareAmount, second, depositor, rate); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	if err := f.receipts.SetApprovalForAll(depositor, second, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	assetAmount, err := f.engine.Redeem(second, shareAmount, second, depositor, rate)
	if err != nil {
		t.Fatalf("operator redeem: %v", err)
	}
	balance, _ := f.reserve.BalanceOf(second)
	if balance.Cmp(assetAmount) != 0 {
		t.Fatalf("expected receiver credited %s, got %s", assetAmount, balance)
	}
}

func TestShareAndReceiptSuppliesStayEqual(t *testing.T) {
	f := newFixture(t)
	rateA := mustBig(t, "1260000000000000000")
	rateB := mustBig(t, "1310000000000000000")

	f.setFixedRate(t, rateA)
	if _, err := f.engine.Deposit(depositor, big.NewInt(3000), depositor); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.setFixedRate(t, rateB)
	if _, err := f.engine.Deposit(depositor, big.NewInt(2000), depositor); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	totalShares, _ := f.engine.TotalShares()
	supplyA, _ := f.engine.ReceiptSupply(rateA)
	supplyB, _ := f.engine.ReceiptSupply(rateB)
	totalReceipts := new(big.Int).Add(supplyA, supplyB)
	if totalShares.Cmp(totalReceipts) != 0 {
		t.Fatalf("share supply %s diverged from receipt supply %s", totalShares, totalReceipts)
	}

	// Burn from one tier and re-check.
	if _, err := f.engine.Withdraw(depositor, big.NewInt(1000), depositor, depositor, rateA); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	totalShares, _ = f.engine.TotalShares()
	supplyA, _ = f.engine.ReceiptSupply(rateA)
	supplyB, _ = f.engine.ReceiptSupply(rateB)
	totalReceipts = new(big.Int).Add(supplyA, supplyB)
	if totalShares.Cmp(totalReceipts) != 0 {
		t.Fatalf("share supply %s diverged from receipt supply %s after burn", totalShares, totalReceipts)
	}
}

func TestDepositInsufficientReserveFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Deposit(depositor, big.NewInt(20_000), depositor); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if held, _ := f.engine.Reserve(); held.Sign() != 0 {
		t.Fatalf("failed deposit moved custody: %s", held)
	}
}
