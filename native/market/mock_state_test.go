package market

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"nftmarket/native/fees"
)

var errCommitFailed = errors.New("commit failed")

type mockStore struct {
	orders     map[[32]byte]*Order
	flags      map[[20]byte]TokenFlags
	disabled   bool
	schedule   *fees.Schedule
	admin      [20]byte
	balances   map[[20]byte]*uint256.Int
	failCommit bool
	commits    int
}

func newMockStore() *mockStore {
	return &mockStore{
		orders:   make(map[[32]byte]*Order),
		flags:    make(map[[20]byte]TokenFlags),
		balances: make(map[[20]byte]*uint256.Int),
	}
}

func (m *mockStore) Begin() (StateTx, error) {
	tx := &mockTx{
		store:    m,
		orders:   make(map[[32]byte]*Order, len(m.orders)),
		flags:    make(map[[20]byte]TokenFlags, len(m.flags)),
		disabled: m.disabled,
		admin:    m.admin,
		balances: make(map[[20]byte]*uint256.Int, len(m.balances)),
	}
	for k, v := range m.orders {
		tx.orders[k] = v.Clone()
	}
	for k, v := range m.flags {
		tx.flags[k] = v
	}
	for k, v := range m.balances {
		tx.balances[k] = v.Clone()
	}
	if m.schedule != nil {
		copySchedule := *m.schedule
		tx.schedule = &copySchedule
	}
	return tx, nil
}

func (m *mockStore) setBalance(addr [20]byte, amount int64) {
	m.balances[addr] = uint256.NewInt(uint64(amount))
}

func (m *mockStore) balance(addr [20]byte) *big.Int {
	v, ok := m.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return v.ToBig()
}

type mockTx struct {
	store    *mockStore
	orders   map[[32]byte]*Order
	flags    map[[20]byte]TokenFlags
	disabled bool
	schedule *fees.Schedule
	admin    [20]byte
	balances map[[20]byte]*uint256.Int
}

func (t *mockTx) OrderGet(contract [20]byte, tokenID *big.Int) (*Order, bool, error) {
	order, ok := t.orders[OrderID(contract, tokenID)]
	if !ok {
		return nil, false, nil
	}
	return order.Clone(), true, nil
}

func (t *mockTx) OrderPut(order *Order) error {
	t.orders[order.ID] = order.Clone()
	return nil
}

func (t *mockTx) OrderDelete(contract [20]byte, tokenID *big.Int) error {
	delete(t.orders, OrderID(contract, tokenID))
	return nil
}

func (t *mockTx) OrderList() ([]*Order, error) {
	out := make([]*Order, 0, len(t.orders))
	for _, order := range t.orders {
		out = append(out, order.Clone())
	}
	return out, nil
}

func (t *mockTx) TokenFlagsGet(contract [20]byte) (TokenFlags, error) {
	return t.flags[contract], nil
}

func (t *mockTx) TokenFlagsPut(contract [20]byte, flags TokenFlags) error {
	t.flags[contract] = flags
	return nil
}

func (t *mockTx) OrdersDisabledGet() (bool, error) { return t.disabled, nil }

func (t *mockTx) OrdersDisabledPut(disabled bool) error {
	t.disabled = disabled
	return nil
}

func (t *mockTx) FeeScheduleGet() (fees.Schedule, bool, error) {
	if t.schedule == nil {
		return fees.Schedule{}, false, nil
	}
	return *t.schedule, true, nil
}

func (t *mockTx) FeeSchedulePut(schedule fees.Schedule) error {
	t.schedule = &schedule
	return nil
}

func (t *mockTx) AdminGet() ([20]byte, error) { return t.admin, nil }

func (t *mockTx) AdminPut(admin [20]byte) error {
	t.admin = admin
	return nil
}

func (t *mockTx) BalanceGet(addr [20]byte) (*uint256.Int, error) {
	v, ok := t.balances[addr]
	if !ok {
		return new(uint256.Int), nil
	}
	return v.Clone(), nil
}

func (t *mockTx) BalancePut(addr [20]byte, balance *uint256.Int) error {
	t.balances[addr] = balance.Clone()
	return nil
}

func (t *mockTx) Commit() error {
	if t.store.failCommit {
		return errCommitFailed
	}
	t.store.orders = t.orders
	t.store.flags = t.flags
	t.store.disabled = t.disabled
	t.store.schedule = t.schedule
	t.store.admin = t.admin
	t.store.balances = t.balances
	t.store.commits++
	return nil
}

func (t *mockTx) Discard() {}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}
