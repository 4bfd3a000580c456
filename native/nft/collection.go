package nft

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"nftmarket/storage"
)

var (
	ErrTokenNotFound     = errors.New("nft: token does not exist")
	ErrTokenExists       = errors.New("nft: token already minted")
	ErrNotOwner          = errors.New("nft: from is not the token owner")
	ErrNotAuthorized     = errors.New("nft: operator not approved")
	ErrZeroAddress       = errors.New("nft: zero address")
	ErrUnknownCollection = errors.New("nft: unknown collection")
	ErrInvalidTokenID    = errors.New("nft: token id must be a non-negative 256-bit value")
)

// Collection is an ERC-721 style token contract. Ownership moves only
// through TransferFrom, which requires the operator to be the owner or an
// operator the owner approved for all of its tokens. Collections deployed by
// a persistent Registry write every change through to its database.
type Collection struct {
	mu        sync.RWMutex
	db        storage.Database
	address   [20]byte
	name      string
	owners    map[string][20]byte
	balances  map[[20]byte]uint64
	operators map[[20]byte]map[[20]byte]bool
}

func NewCollection(address [20]byte, name string) *Collection {
	return &Collection{
		address:   address,
		name:      strings.TrimSpace(name),
		owners:    make(map[string][20]byte),
		balances:  make(map[[20]byte]uint64),
		operators: make(map[[20]byte]map[[20]byte]bool),
	}
}

func tokenKey(tokenID *big.Int) (string, error) {
	if tokenID == nil || tokenID.Sign() < 0 || tokenID.BitLen() > 256 {
		return "", ErrInvalidTokenID
	}
	return tokenID.String(), nil
}

// Address returns the contract address of the collection.
func (c *Collection) Address() [20]byte { return c.address }

// Name returns the display name of the collection.
func (c *Collection) Name() string { return c.name }

// Mint creates tokenID owned by to.
func (c *Collection) Mint(to [20]byte, tokenID *big.Int) error {
	key, err := tokenKey(tokenID)
	if err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.owners[key]; exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, key)
	}
	if err := c.persistOwner(key, to); err != nil {
		return err
	}
	c.owners[key] = to
	c.balances[to]++
	return nil
}

// OwnerOf returns the current owner of tokenID.
func (c *Collection) OwnerOf(tokenID *big.Int) ([20]byte, error) {
	key, err := tokenKey(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[key]
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: %s", ErrTokenNotFound, key)
	}
	return owner, nil
}

// BalanceOf returns the number of tokens held by owner.
func (c *Collection) BalanceOf(owner [20]byte) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[owner]
}

// TokensOf lists the token ids held by owner in ascending order.
func (c *Collection) TokensOf(owner [20]byte) []*big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]*big.Int, 0, c.balances[owner])
	for key, holder := range c.owners {
		if holder != owner {
			continue
		}
		id, _ := new(big.Int).SetString(key, 10)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

// SetApprovalForAll grants or revokes operator's right to move every token of
// owner.
func (c *Collection) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if operator == ([20]byte{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persistOperator(owner, operator, approved); err != nil {
		return err
	}
	ops, ok := c.operators[owner]
	if !ok {
		ops = make(map[[20]byte]bool)
		c.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
	return nil
}

// IsApprovedForAll reports whether operator may manage every token of owner.
func (c *Collection) IsApprovedForAll(owner, operator [20]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operators[owner][operator]
}

// TransferFrom moves tokenID from -> to on behalf of operator.
func (c *Collection) TransferFrom(operator, from, to [20]byte, tokenID *big.Int) error {
	key, err := tokenKey(tokenID)
	if err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, key)
	}
	if owner != from {
		return fmt.Errorf("%w: token %s", ErrNotOwner, key)
	}
	if operator != from && !c.operators[from][operator] {
		return fmt.Errorf("%w: token %s", ErrNotAuthorized, key)
	}
	if err := c.persistOwner(key, to); err != nil {
		return err
	}
	c.owners[key] = to
	c.balances[from]--
	c.balances[to]++
	return nil
}
