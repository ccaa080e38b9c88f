// Package token implements the fungible and semi-fungible ledgers consumed
// by the vault. Balances are persisted through the storage.Database
// abstraction and RLP encoded, so the same ledgers back the in-memory test
// configuration and the LevelDB daemon.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"ratevault/storage"
)

var (
	// ErrInsufficientBalance indicates a burn or transfer exceeded the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInvalidAmount indicates a nil or negative amount reached the
	// ledger.
	ErrInvalidAmount = errors.New("token: amount must not be negative")
	// ErrNotApproved indicates the operator lacks approval over the owner's
	// holdings.
	ErrNotApproved = errors.New("token: operator not approved")
)

// Ledger is a fungible token ledger with mint, burn and transfer semantics.
type Ledger struct {
	mu     sync.RWMutex
	db     storage.Database
	symbol string
}

// NewLedger constructs a fungible ledger. The symbol namespaces all keys so
// multiple ledgers can share one database.
func NewLedger(db storage.Database, symbol string) *Ledger {
	return &Ledger{db: db, symbol: strings.ToLower(strings.TrimSpace(symbol))}
}

// Symbol returns the ledger's key namespace.
func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

func (l *Ledger) balanceKey(holder ethcommon.Address) []byte {
	return []byte(l.symbol + "/balance/" + strings.ToLower(holder.Hex()))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(l.symbol + "/supply")
}

// BalanceOf returns the holder's balance. Unknown holders report zero.
func (l *Ledger) BalanceOf(holder ethcommon.Address) (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return readAmount(l.db, l.balanceKey(holder))
}

// TotalSupply returns the aggregate minted amount.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return readAmount(l.db, l.supplyKey())
}

// Mint credits the holder and grows total supply.
func (l *Ledger) Mint(holder ethcommon.Address, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := readAmount(l.db, l.balanceKey(holder))
	if err != nil {
		return err
	}
	supply, err := readAmount(l.db, l.supplyKey())
	if err != nil {
		return err
	}
	if err := writeAmount(l.db, l.balanceKey(holder), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, l.supplyKey(), new(big.Int).Add(supply, amount))
}

// Burn debits the holder and shrinks total supply.
func (l *Ledger) Burn(holder ethcommon.Address, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := readAmount(l.db, l.balanceKey(holder))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := readAmount(l.db, l.supplyKey())
	if err != nil {
		return err
	}
	if err := writeAmount(l.db, l.balanceKey(holder), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, l.supplyKey(), new(big.Int).Sub(supply, amount))
}

// Transfer moves balance between holders without affecting supply.
func (l *Ledger) Transfer(from, to ethcommon.Address, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := readAmount(l.db, l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := readAmount(l.db, l.balanceKey(to))
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := writeAmount(l.db, l.balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, l.balanceKey(to), new(big.Int).Add(toBalance, amount))
}

func readAmount(db storage.Database, key []byte) (*big.Int, error) {
	raw, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("token: decode amount: %w", err)
	}
	return amount, nil
}

func writeAmount(db storage.Database, key []byte, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("token: encode amount: %w", err)
	}
	return db.Put(key, encoded)
}
