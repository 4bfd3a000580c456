package bank

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type memBalances map[[20]byte]*uint256.Int

func (m memBalances) BalanceGet(addr [20]byte) (*uint256.Int, error) {
	if bal, ok := m[addr]; ok {
		return bal.Clone(), nil
	}
	return nil, nil
}

func (m memBalances) BalancePut(addr [20]byte, balance *uint256.Int) error {
	m[addr] = balance.Clone()
	return nil
}

func TestLedgerTransfer(t *testing.T) {
	alice, bob := [20]byte{1}, [20]byte{2}
	ledger := NewLedger(memBalances{})

	require.NoError(t, ledger.Credit(alice, big.NewInt(100)))
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(40)))

	balance, err := ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, "60", balance.String())
	balance, err = ledger.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, "40", balance.String())
}

func TestLedgerInsufficientFunds(t *testing.T) {
	alice, bob := [20]byte{1}, [20]byte{2}
	ledger := NewLedger(memBalances{})
	require.NoError(t, ledger.Credit(alice, big.NewInt(5)))

	err := ledger.Transfer(alice, bob, big.NewInt(6))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, "5", balance.String())
}

func TestLedgerOverflow(t *testing.T) {
	alice := [20]byte{1}
	ledger := NewLedger(memBalances{})
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, ledger.Credit(alice, max))
	require.ErrorIs(t, ledger.Credit(alice, big.NewInt(1)), ErrBalanceOverflow)
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	ledger := NewLedger(memBalances{})
	require.ErrorIs(t, ledger.Credit([20]byte{1}, big.NewInt(-1)), ErrInvalidAmount)
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, ledger.Debit([20]byte{1}, tooWide), ErrInvalidAmount)
}

func TestLedgerRequiresStore(t *testing.T) {
	var ledger *Ledger
	_, err := ledger.Balance([20]byte{1})
	require.Error(t, err)
}
