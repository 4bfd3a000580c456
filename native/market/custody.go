package market

import (
	"log/slog"
	"math/big"

	"nftmarket/native/nft"
)

// RegistryResolver resolves contracts deployed in an nft.Registry.
func RegistryResolver(registry *nft.Registry) TokenResolver {
	return ResolverFunc(func(addr [20]byte) (TokenContract, error) {
		collection, err := registry.Lookup(addr)
		if err != nil {
			return nil, err
		}
		return collection, nil
	})
}

// custodyMove is a staged token transfer. Inbound moves bring a token into
// escrow and can be undone by the marketplace itself.
type custodyMove struct {
	token    TokenContract
	contract [20]byte
	tokenID  *big.Int
	from     [20]byte
	to       [20]byte
	inbound  bool
}

func (c *opContext) token(contract [20]byte) (TokenContract, error) {
	if c.engine.tokens == nil {
		return nil, errNilTokens
	}
	token, err := c.engine.tokens.Contract(contract)
	if err != nil {
		return nil, wrapError(ErrRegistry, c.op, err, "contract %s unavailable", formatContract(contract))
	}
	if token == nil {
		return nil, newError(ErrRegistry, c.op, "contract %s unavailable", formatContract(contract))
	}
	return token, nil
}

// orderedMoves returns the staged moves with inbound transfers first.
func (c *opContext) orderedMoves() []custodyMove {
	ordered := make([]custodyMove, 0, len(c.moves))
	for _, move := range c.moves {
		if move.inbound {
			ordered = append(ordered, move)
		}
	}
	for _, move := range c.moves {
		if !move.inbound {
			ordered = append(ordered, move)
		}
	}
	return ordered
}

// checkMoves verifies every staged transfer against current ownership before
// any token moves. Outbound moves must start from the escrow account and
// inbound moves need the holder's approval of the marketplace.
func (c *opContext) checkMoves(ordered []custodyMove) error {
	holders := make(map[string][20]byte, len(ordered))
	for _, move := range ordered {
		key := string(move.contract[:]) + move.tokenID.String()
		holder, seen := holders[key]
		if !seen {
			owner, err := move.token.OwnerOf(move.tokenID)
			if err != nil {
				return wrapError(ErrState, c.op, err, "token %s of %s unavailable", move.tokenID, formatContract(move.contract))
			}
			holder = owner
		}
		if holder != move.from {
			if !move.inbound {
				return newError(ErrState, c.op, "token %s of %s is not held in escrow", move.tokenID, formatContract(move.contract))
			}
			return newError(ErrState, c.op, "token %s of %s is no longer held by %s", move.tokenID, formatContract(move.contract), formatAccount(move.from))
		}
		if move.from != c.engine.address && !move.token.IsApprovedForAll(move.from, c.engine.address) {
			return newError(ErrAuthorization, c.op, "market not approved for token %s of %s", move.tokenID, formatContract(move.contract))
		}
		holders[key] = move.to
	}
	return nil
}

// applyMoves performs the staged transfers, inbound first. A failure undoes
// every transfer that already happened.
func (c *opContext) applyMoves() error {
	ordered := c.orderedMoves()
	if err := c.checkMoves(ordered); err != nil {
		return err
	}
	for _, move := range ordered {
		if err := move.token.TransferFrom(c.engine.address, move.from, move.to, move.tokenID); err != nil {
			c.revertMoves()
			return wrapError(ErrState, c.op, err, "transfer token %s of %s", move.tokenID, formatContract(move.contract))
		}
		c.applied = append(c.applied, move)
	}
	return nil
}

// revertMoves sends applied transfers back in reverse order. Tokens released
// from escrow come back through the recipient's approval of the marketplace;
// sellers hold that approval from listing, other recipients may not.
func (c *opContext) revertMoves() {
	for i := len(c.applied) - 1; i >= 0; i-- {
		move := c.applied[i]
		if err := move.token.TransferFrom(c.engine.address, move.to, move.from, move.tokenID); err != nil {
			c.engine.logger.Error("market: revert token transfer failed",
				slog.String("op", c.op),
				slog.String("contract", formatContract(move.contract)),
				slog.String("tokenId", move.tokenID.String()),
				slog.String("holder", formatAccount(move.to)),
				slog.Bool("inbound", move.inbound),
				slog.Any("error", err))
		}
	}
	c.applied = nil
}
