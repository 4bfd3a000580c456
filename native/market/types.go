package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status represents the lifecycle state of an order. Only StatusListed is
// ever persisted; the terminal states are reported by events and results
// while the stored record is removed so the key can be listed again.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusListed
	StatusCancelled
	StatusSold
	StatusUnsold
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusListed:
		return "listed"
	case StatusCancelled:
		return "cancelled"
	case StatusSold:
		return "sold"
	case StatusUnsold:
		return "unsold"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MinAuctionDuration is the minimum distance in seconds between the listing
// (or update) time and the auction end time.
const MinAuctionDuration int64 = 60 * 60

var (
	maxPrice   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxEndTime = new(big.Int).SetUint64(^uint64(0))
)

// Order is the marketplace record of one escrowed token.
type Order struct {
	ID            [32]byte
	Contract      [20]byte
	TokenID       *big.Int
	Owner         [20]byte
	Seller        [20]byte
	BuyPrice      *big.Int
	StartPrice    *big.Int
	EndTime       uint64
	HighestBidder [20]byte
	HighestBid    *big.Int
	Status        Status
	CreatedAt     uint64
	UpdatedAt     uint64
}

// IsAuction reports whether the order has an auction end time.
func (o *Order) IsAuction() bool {
	return o != nil && o.EndTime != 0
}

// HasBid reports whether a refundable bid is currently held for the order.
func (o *Order) HasBid() bool {
	return o != nil && o.HighestBid != nil && o.HighestBid.Sign() > 0
}

// Clone returns a deep copy of the order so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.TokenID = cloneBigInt(o.TokenID)
	clone.BuyPrice = cloneBigInt(o.BuyPrice)
	clone.StartPrice = cloneBigInt(o.StartPrice)
	clone.HighestBid = cloneBigInt(o.HighestBid)
	return &clone
}

// TokenFlags describes the registry status of a token contract. The zero value
// is an unregistered contract.
type TokenFlags struct {
	Registered    bool
	OrdersEnabled bool
}

// TokenIDBytes encodes a token id as a 32-byte big-endian word.
func TokenIDBytes(tokenID *big.Int) [32]byte {
	var out [32]byte
	if tokenID != nil {
		tokenID.FillBytes(out[:])
	}
	return out
}

// OrderID derives the deterministic identifier of the (contract, tokenID)
// order slot.
func OrderID(contract [20]byte, tokenID *big.Int) [32]byte {
	word := TokenIDBytes(tokenID)
	return ethcrypto.Keccak256Hash(contract[:], word[:])
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func validTokenID(tokenID *big.Int) bool {
	return tokenID != nil && tokenID.Sign() >= 0 && tokenID.BitLen() <= 256
}

// EscrowAddress is the default account that takes custody of listed tokens
// and holds bid currency.
var EscrowAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("nftmarket/escrow"))[12:])
	return addr
}()
