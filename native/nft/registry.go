package nft

import (
	"fmt"
	"sort"
	"sync"

	"nftmarket/storage"
)

// Registry holds every deployed collection keyed by contract address.
type Registry struct {
	mu          sync.RWMutex
	db          storage.Database
	collections map[[20]byte]*Collection
}

// NewRegistry returns a registry whose collections live in memory only.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[[20]byte]*Collection)}
}

// NewPersistentRegistry returns a registry that keeps collections, ownership
// and approvals in db so they survive restarts alongside marketplace state.
func NewPersistentRegistry(db storage.Database) *Registry {
	return &Registry{db: db, collections: make(map[[20]byte]*Collection)}
}

// Deploy creates a collection at address. On a persistent registry the
// collection picks up any ownership already recorded for address.
func (r *Registry) Deploy(address [20]byte, name string) (*Collection, error) {
	if address == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collections[address]; exists {
		return nil, fmt.Errorf("nft: collection %x already deployed", address)
	}
	collection := NewCollection(address, name)
	if r.db != nil {
		if err := r.db.Put(collectionKey(address), []byte(collection.name)); err != nil {
			return nil, fmt.Errorf("nft: persist collection %x: %w", address, err)
		}
		collection.db = r.db
		if err := collection.load(); err != nil {
			return nil, err
		}
	}
	r.collections[address] = collection
	return collection, nil
}

// Lookup returns the collection deployed at address.
func (r *Registry) Lookup(address [20]byte) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	collection, ok := r.collections[address]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownCollection, address)
	}
	return collection, nil
}

// Addresses lists deployed collection addresses in byte order.
func (r *Registry) Addresses() [][20]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][20]byte, 0, len(r.collections))
	for addr := range r.collections {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 20; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
