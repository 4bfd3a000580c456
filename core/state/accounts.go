package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"nftmarket/native/bank"
)

// BalanceGet returns the native balance of addr; missing accounts hold zero.
func (tx *Tx) BalanceGet(addr [20]byte) (*uint256.Int, error) {
	data, ok, err := tx.get(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if len(data) > 32 {
		return nil, fmt.Errorf("state: balance record has %d bytes", len(data))
	}
	return new(uint256.Int).SetBytes(data), nil
}

// BalancePut stores the balance as minimal big-endian bytes. Zero balances
// are deleted.
func (tx *Tx) BalancePut(addr [20]byte, balance *uint256.Int) error {
	if balance == nil || balance.IsZero() {
		return tx.del(balanceKey(addr))
	}
	return tx.put(balanceKey(addr), balance.Bytes())
}

// ApplyGenesis credits the configured balances exactly once per database.
// It reports whether the allocation was applied by this call.
func (m *Manager) ApplyGenesis(alloc map[[20]byte]*big.Int) (bool, error) {
	tx := m.begin()
	defer tx.Discard()
	if _, done, err := tx.get(genesisKey); err != nil {
		return false, err
	} else if done {
		return false, nil
	}
	ledger := bank.NewLedger(tx)
	for addr, amount := range alloc {
		if err := ledger.Credit(addr, amount); err != nil {
			return false, fmt.Errorf("state: genesis credit %x: %w", addr, err)
		}
	}
	if err := tx.put(genesisKey, []byte{1}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Credit adds amount to addr outside of any engine operation. The dev daemon
// uses it as a faucet.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	tx := m.begin()
	defer tx.Discard()
	if err := bank.NewLedger(tx).Credit(addr, amount); err != nil {
		return err
	}
	return tx.Commit()
}
