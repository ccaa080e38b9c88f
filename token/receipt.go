package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"ratevault/storage"
)

// ErrInvalidTokenID indicates a nil, negative or oversized receipt
// identifier reached the ledger.
var ErrInvalidTokenID = errors.New("token: invalid receipt id")

// ReceiptLedger is a semi-fungible ledger keyed by a 256-bit token id. The
// vault mints receipt units whose id equals the exchange rate used at
// deposit time; the id is permanently bound to that rate and never
// reassigned.
type ReceiptLedger struct {
	mu sync.RWMutex
	db storage.Database
}

// NewReceiptLedger constructs a receipt ledger over the supplied database.
func NewReceiptLedger(db storage.Database) *ReceiptLedger {
	return &ReceiptLedger{db: db}
}

func receiptIDKey(id *big.Int) (string, error) {
	if id == nil || id.Sign() < 0 || id.BitLen() > 256 {
		return "", ErrInvalidTokenID
	}
	return ethcommon.BigToHash(id).Hex(), nil
}

func receiptBalanceKey(holder ethcommon.Address, idKey string) []byte {
	return []byte("receipt/balance/" + strings.ToLower(holder.Hex()) + "/" + idKey)
}

func receiptSupplyKey(idKey string) []byte {
	return []byte("receipt/supply/" + idKey)
}

func receiptOperatorKey(owner, operator ethcommon.Address) []byte {
	return []byte("receipt/operator/" + strings.ToLower(owner.Hex()) + "/" + strings.ToLower(operator.Hex()))
}

// BalanceOf returns the holder's balance for the given id. Unknown pairs
// report zero.
func (l *ReceiptLedger) BalanceOf(holder ethcommon.Address, id *big.Int) (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("receipt ledger not initialised")
	}
	idKey, err := receiptIDKey(id)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return readAmount(l.db, receiptBalanceKey(holder, idKey))
}

// TotalSupply returns the outstanding units for the given id.
func (l *ReceiptLedger) TotalSupply(id *big.Int) (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("receipt ledger not initialised")
	}
	idKey, err := receiptIDKey(id)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return readAmount(l.db, receiptSupplyKey(idKey))
}

// Mint credits units of the given id to the holder.
func (l *ReceiptLedger) Mint(holder ethcommon.Address, id, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("receipt ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	idKey, err := receiptIDKey(id)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := readAmount(l.db, receiptBalanceKey(holder, idKey))
	if err != nil {
		return err
	}
	supply, err := readAmount(l.db, receiptSupplyKey(idKey))
	if err != nil {
		return err
	}
	if err := writeAmount(l.db, receiptBalanceKey(holder, idKey), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, receiptSupplyKey(idKey), new(big.Int).Add(supply, amount))
}

// Burn debits units of the given id from the holder.
func (l *ReceiptLedger) Burn(holder ethcommon.Address, id, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("receipt ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	idKey, err := receiptIDKey(id)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := readAmount(l.db, receiptBalanceKey(holder, idKey))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := readAmount(l.db, receiptSupplyKey(idKey))
	if err != nil {
		return err
	}
	if err := writeAmount(l.db, receiptBalanceKey(holder, idKey), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, receiptSupplyKey(idKey), new(big.Int).Sub(supply, amount))
}

// SafeTransferFrom moves units between holders. The operator must be the
// owner or hold blanket approval over the owner's receipts.
func (l *ReceiptLedger) SafeTransferFrom(operator, from, to ethcommon.Address, id, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("receipt ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	idKey, err := receiptIDKey(id)
	if err != nil {
		return err
	}
	if operator != from {
		approved, err := l.IsApprovedForAll(from, operator)
		if err != nil {
			return err
		}
		if !approved {
			return ErrNotApproved
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := readAmount(l.db, receiptBalanceKey(from, idKey))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := readAmount(l.db, receiptBalanceKey(to, idKey))
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := writeAmount(l.db, receiptBalanceKey(from, idKey), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return writeAmount(l.db, receiptBalanceKey(to, idKey), new(big.Int).Add(toBalance, amount))
}

// SetApprovalForAll grants or revokes operator rights over all of the
// owner's receipt ids.
func (l *ReceiptLedger) SetApprovalForAll(owner, operator ethcommon.Address, approved bool) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("receipt ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !approved {
		return l.db.Delete(receiptOperatorKey(owner, operator))
	}
	return l.db.Put(receiptOperatorKey(owner, operator), []byte{1})
}

// IsApprovedForAll reports whether the operator may act on the owner's
// receipts.
func (l *ReceiptLedger) IsApprovedForAll(owner, operator ethcommon.Address) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("receipt ledger not initialised")
	}
	raw, err := l.db.Get(receiptOperatorKey(owner, operator))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}
