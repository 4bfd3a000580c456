package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
	ErrInvalidAmount     = errors.New("bank: amount must be a non-negative 256-bit value")
	errNilStore          = errors.New("bank: balance store not configured")
)

// BalanceStore persists native-currency balances keyed by account address.
// Missing accounts report a zero balance.
type BalanceStore interface {
	BalanceGet(addr [20]byte) (*uint256.Int, error)
	BalancePut(addr [20]byte, balance *uint256.Int) error
}

// Ledger moves native currency between accounts held in a BalanceStore. It
// performs no locking; callers run it inside their own transaction.
type Ledger struct {
	store BalanceStore
}

func NewLedger(store BalanceStore) *Ledger {
	return &Ledger{store: store}
}

// ToUint256 converts a big integer amount, rejecting negative values and
// values wider than 256 bits.
func ToUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return value, nil
}

func (l *Ledger) load(addr [20]byte) (*uint256.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	balance, err := l.store.BalanceGet(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return balance.Clone(), nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	balance, err := l.load(addr)
	if err != nil {
		return nil, err
	}
	return balance.ToBig(), nil
}

// Credit adds amount to addr.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	value, err := ToUint256(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	balance, err := l.load(addr)
	if err != nil {
		return err
	}
	if _, overflow := balance.AddOverflow(balance, value); overflow {
		return fmt.Errorf("%w: crediting %s", ErrBalanceOverflow, amount)
	}
	return l.store.BalancePut(addr, balance)
}

// Debit subtracts amount from addr.
func (l *Ledger) Debit(addr [20]byte, amount *big.Int) error {
	value, err := ToUint256(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	balance, err := l.load(addr)
	if err != nil {
		return err
	}
	if balance.Lt(value) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, balance.Dec(), value.Dec())
	}
	balance.Sub(balance, value)
	return l.store.BalancePut(addr, balance)
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if from == to {
		_, err := ToUint256(amount)
		return err
	}
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	return l.Credit(to, amount)
}
