package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"nftmarket/native/market"
	"nftmarket/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

// Manager provides transactional access to marketplace state kept in a
// storage.Database. Transactions buffer their writes in memory and apply
// them with a single atomic batch on commit. Only one transaction is open at
// a time; Begin blocks until the previous one is committed or discarded.
type Manager struct {
	db   storage.Database
	txMu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a new transaction.
func (m *Manager) Begin() (market.StateTx, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	return m.begin(), nil
}

func (m *Manager) begin() *Tx {
	m.txMu.Lock()
	return &Tx{
		manager: m,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Tx is an overlay over the database. Reads observe the transaction's own
// pending writes.
type Tx struct {
	manager *Manager
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, errTxClosed
	}
	k := string(key)
	if _, deleted := tx.deletes[k]; deleted {
		return nil, false, nil
	}
	if value, ok := tx.writes[k]; ok {
		return value, true, nil
	}
	value, err := tx.manager.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Tx) put(key, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

func (tx *Tx) del(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}

// scan returns every value stored under prefix as seen by the transaction,
// in ascending key order.
func (tx *Tx) scan(prefix []byte) ([][]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	merged := make(map[string][]byte)
	err := tx.manager.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = append([]byte(nil), value...)
		return true
	})
	if err != nil {
		return nil, err
	}
	p := string(prefix)
	for k := range tx.deletes {
		delete(merged, k)
	}
	for k, v := range tx.writes {
		if len(k) >= len(p) && k[:len(p)] == p {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}

// Commit applies every pending write atomically and closes the transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	defer tx.close()
	if len(tx.writes) == 0 && len(tx.deletes) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for k := range tx.deletes {
		batch.Delete([]byte(k))
	}
	for k, v := range tx.writes {
		batch.Put([]byte(k), v)
	}
	if err := tx.manager.db.Write(batch); err != nil {
		return fmt.Errorf("state: write batch: %w", err)
	}
	return nil
}

// Discard drops every pending write. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.close()
}

func (tx *Tx) close() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.writes = nil
	tx.deletes = nil
	tx.manager.txMu.Unlock()
}
