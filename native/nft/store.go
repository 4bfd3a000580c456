package nft

import "fmt"

var (
	collectionPrefix = []byte("nft/collection/")
	ownerPrefix      = []byte("nft/owner/")
	operatorPrefix   = []byte("nft/operator/")
)

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func collectionKey(address [20]byte) []byte { return join(collectionPrefix, address[:]) }

func ownerKey(address [20]byte, token string) []byte {
	return join(ownerPrefix, address[:], []byte(token))
}

func operatorKey(address, owner, operator [20]byte) []byte {
	return join(operatorPrefix, address[:], owner[:], operator[:])
}

// load replaces the in-memory view with the records persisted for the
// collection.
func (c *Collection) load() error {
	owners := make(map[string][20]byte)
	balances := make(map[[20]byte]uint64)
	operators := make(map[[20]byte]map[[20]byte]bool)

	prefix := join(ownerPrefix, c.address[:])
	var bad error
	err := c.db.Iterate(prefix, func(key, value []byte) bool {
		if len(value) != 20 {
			bad = fmt.Errorf("nft: corrupt owner record %x", key)
			return false
		}
		var owner [20]byte
		copy(owner[:], value)
		owners[string(key[len(prefix):])] = owner
		balances[owner]++
		return true
	})
	if err != nil {
		return err
	}
	if bad != nil {
		return bad
	}

	prefix = join(operatorPrefix, c.address[:])
	err = c.db.Iterate(prefix, func(key, _ []byte) bool {
		rest := key[len(prefix):]
		if len(rest) != 40 {
			bad = fmt.Errorf("nft: corrupt operator record %x", key)
			return false
		}
		var owner, operator [20]byte
		copy(owner[:], rest[:20])
		copy(operator[:], rest[20:])
		ops, ok := operators[owner]
		if !ok {
			ops = make(map[[20]byte]bool)
			operators[owner] = ops
		}
		ops[operator] = true
		return true
	})
	if err != nil {
		return err
	}
	if bad != nil {
		return bad
	}

	c.mu.Lock()
	c.owners, c.balances, c.operators = owners, balances, operators
	c.mu.Unlock()
	return nil
}

func (c *Collection) persistOwner(token string, owner [20]byte) error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Put(ownerKey(c.address, token), owner[:]); err != nil {
		return fmt.Errorf("nft: persist owner of %s: %w", token, err)
	}
	return nil
}

func (c *Collection) persistOperator(owner, operator [20]byte, approved bool) error {
	if c.db == nil {
		return nil
	}
	key := operatorKey(c.address, owner, operator)
	var err error
	if approved {
		err = c.db.Put(key, []byte{1})
	} else {
		err = c.db.Delete(key)
	}
	if err != nil {
		return fmt.Errorf("nft: persist approval: %w", err)
	}
	return nil
}

// Restore deploys every collection recorded in the registry's database and
// loads its ownership and approvals. It returns the number of collections
// restored.
func (r *Registry) Restore() (int, error) {
	if r.db == nil {
		return 0, nil
	}
	type record struct {
		address [20]byte
		name    string
	}
	var records []record
	err := r.db.Iterate(collectionPrefix, func(key, value []byte) bool {
		if len(key) != len(collectionPrefix)+20 {
			return true
		}
		var rec record
		copy(rec.address[:], key[len(collectionPrefix):])
		rec.name = string(value)
		records = append(records, rec)
		return true
	})
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, rec := range records {
		if _, err := r.Lookup(rec.address); err == nil {
			continue
		}
		if _, err := r.Deploy(rec.address, rec.name); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

