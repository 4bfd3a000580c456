package market

import (
	"bytes"
	"math/big"
	"sort"

	"nftmarket/native/bank"
)

// terms are validated listing parameters.
type terms struct {
	buyPrice   *big.Int
	startPrice *big.Int
	endTime    uint64
}

func (c *opContext) validateTerms(tokenID, buyPrice, startPrice, endTime *big.Int) (terms, error) {
	if !validTokenID(tokenID) {
		return terms{}, newError(ErrValidation, c.op, "invalid token id")
	}
	if buyPrice == nil || buyPrice.Sign() <= 0 {
		return terms{}, newError(ErrValidation, c.op, "buy price must be positive")
	}
	if buyPrice.Cmp(maxPrice) > 0 {
		return terms{}, newError(ErrValidation, c.op, "buy price exceeds 128 bits")
	}
	start := cloneBigInt(startPrice)
	if start.Sign() < 0 {
		return terms{}, newError(ErrValidation, c.op, "start price must not be negative")
	}
	if start.Cmp(maxPrice) > 0 {
		return terms{}, newError(ErrValidation, c.op, "start price exceeds 128 bits")
	}
	if start.Cmp(buyPrice) > 0 {
		return terms{}, newError(ErrValidation, c.op, "start price %s above buy price %s", start, buyPrice)
	}
	end := cloneBigInt(endTime)
	if end.Sign() < 0 {
		return terms{}, newError(ErrValidation, c.op, "end time must not be negative")
	}
	if end.Cmp(maxEndTime) > 0 {
		return terms{}, newError(ErrValidation, c.op, "end time exceeds 64 bits")
	}
	if end.Sign() == 0 {
		if start.Sign() != 0 {
			return terms{}, newError(ErrValidation, c.op, "fixed-price order cannot carry a start price")
		}
	} else {
		earliest := new(big.Int).Add(big.NewInt(c.now), big.NewInt(MinAuctionDuration))
		if end.Cmp(earliest) < 0 {
			return terms{}, newError(ErrValidation, c.op, "auction must end at least %ds from now", MinAuctionDuration)
		}
	}
	return terms{buyPrice: new(big.Int).Set(buyPrice), startPrice: start, endTime: end.Uint64()}, nil
}

func (c *opContext) loadOrder(contract [20]byte, tokenID *big.Int) (*Order, error) {
	if !validTokenID(tokenID) {
		return nil, newError(ErrValidation, c.op, "invalid token id")
	}
	order, ok, err := c.tx.OrderGet(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || order == nil || order.Status != StatusListed {
		return nil, newError(ErrState, c.op, "token %s of %s is not listed", tokenID, formatContract(contract))
	}
	return order, nil
}

// authorizeOwner accepts the recorded owner or an operator the owner still
// approves for all tokens of the contract.
func (c *opContext) authorizeOwner(order *Order, caller [20]byte) error {
	if caller == order.Owner {
		return nil
	}
	token, err := c.token(order.Contract)
	if err != nil {
		return err
	}
	if token.IsApprovedForAll(order.Owner, caller) {
		return nil
	}
	return newError(ErrAuthorization, c.op, "caller %s is neither owner nor approved", formatAccount(caller))
}

// authorizeSeller accepts the recorded owner, or the seller that listed the
// order while the owner still approves it for all tokens of the contract.
func (c *opContext) authorizeSeller(order *Order, caller [20]byte) error {
	if caller == order.Owner {
		return nil
	}
	if caller != order.Seller {
		return newError(ErrAuthorization, c.op, "caller %s is neither owner nor seller", formatAccount(caller))
	}
	token, err := c.token(order.Contract)
	if err != nil {
		return err
	}
	if !token.IsApprovedForAll(order.Owner, caller) {
		return newError(ErrAuthorization, c.op, "seller %s no longer approved by owner", formatAccount(caller))
	}
	return nil
}

// requireMutable rejects changes to orders that already hold a bid or whose
// auction has ended.
func (c *opContext) requireMutable(order *Order) error {
	if order.HasBid() {
		return newError(ErrState, c.op, "order has a bid")
	}
	if order.IsAuction() && uint64(c.now) >= order.EndTime {
		return newError(ErrState, c.op, "auction ended")
	}
	return nil
}

// Create lists tokenID of contract and takes custody of the token. A zero
// endTime creates a fixed-price order; otherwise the order is an auction
// with buyPrice acting as the buy-now ceiling.
func (e *Engine) Create(caller, contract [20]byte, tokenID, buyPrice, startPrice, endTime *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("create", 1, func(c *opContext) error {
		order, err := c.create(caller, contract, tokenID, buyPrice, startPrice, endTime)
		if err != nil {
			return err
		}
		out = order.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *opContext) create(caller, contract [20]byte, tokenID, buyPrice, startPrice, endTime *big.Int) (*Order, error) {
	t, err := c.validateTerms(tokenID, buyPrice, startPrice, endTime)
	if err != nil {
		return nil, err
	}
	flags, err := c.tx.TokenFlagsGet(contract)
	if err != nil {
		return nil, err
	}
	if !flags.Registered {
		return nil, newError(ErrRegistry, c.op, "contract %s not registered", formatContract(contract))
	}
	disabled, err := c.tx.OrdersDisabledGet()
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, newError(ErrState, c.op, "orders disabled")
	}
	if !flags.OrdersEnabled {
		return nil, newError(ErrState, c.op, "orders disabled for %s", formatContract(contract))
	}
	if _, exists, err := c.tx.OrderGet(contract, tokenID); err != nil {
		return nil, err
	} else if exists {
		return nil, newError(ErrState, c.op, "token %s of %s already listed", tokenID, formatContract(contract))
	}
	token, err := c.token(contract)
	if err != nil {
		return nil, err
	}
	owner, err := token.OwnerOf(tokenID)
	if err != nil {
		return nil, wrapError(ErrValidation, c.op, err, "owner of token %s", tokenID)
	}
	if owner == c.engine.address {
		return nil, newError(ErrState, c.op, "token %s already held by the marketplace", tokenID)
	}
	if caller != owner && !token.IsApprovedForAll(owner, caller) {
		return nil, newError(ErrAuthorization, c.op, "caller %s is neither owner nor approved", formatAccount(caller))
	}
	if !token.IsApprovedForAll(owner, c.engine.address) {
		return nil, newError(ErrAuthorization, c.op, "marketplace not approved by owner %s", formatAccount(owner))
	}
	order := &Order{
		ID:         OrderID(contract, tokenID),
		Contract:   contract,
		TokenID:    new(big.Int).Set(tokenID),
		Owner:      owner,
		Seller:     caller,
		BuyPrice:   t.buyPrice,
		StartPrice: t.startPrice,
		EndTime:    t.endTime,
		HighestBid: big.NewInt(0),
		Status:     StatusListed,
		CreatedAt:  uint64(c.now),
		UpdatedAt:  uint64(c.now),
	}
	if err := c.tx.OrderPut(order); err != nil {
		return nil, err
	}
	c.stage(custodyMove{token: token, contract: contract, tokenID: order.TokenID, from: owner, to: c.engine.address, inbound: true})
	c.emit(NewOrderCreatedEvent(order))
	return order, nil
}

// Update replaces the price and time terms of an order that has no bid.
func (e *Engine) Update(caller, contract [20]byte, tokenID, buyPrice, startPrice, endTime *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("update", 1, func(c *opContext) error {
		order, err := c.update(caller, contract, tokenID, buyPrice, startPrice, endTime)
		if err != nil {
			return err
		}
		out = order.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *opContext) update(caller, contract [20]byte, tokenID, buyPrice, startPrice, endTime *big.Int) (*Order, error) {
	order, err := c.loadOrder(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if err := c.requireMutable(order); err != nil {
		return nil, err
	}
	if err := c.authorizeSeller(order, caller); err != nil {
		return nil, err
	}
	t, err := c.validateTerms(tokenID, buyPrice, startPrice, endTime)
	if err != nil {
		return nil, err
	}
	order.BuyPrice = t.buyPrice
	order.StartPrice = t.startPrice
	order.EndTime = t.endTime
	order.UpdatedAt = uint64(c.now)
	if err := c.tx.OrderPut(order); err != nil {
		return nil, err
	}
	c.emit(NewOrderUpdatedEvent(order))
	return order, nil
}

// Cancel withdraws an order without bids and returns the token to its owner.
func (e *Engine) Cancel(caller, contract [20]byte, tokenID *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("cancel", 1, func(c *opContext) error {
		order, err := c.cancel(caller, contract, tokenID)
		if err != nil {
			return err
		}
		out = order.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *opContext) cancel(caller, contract [20]byte, tokenID *big.Int) (*Order, error) {
	order, err := c.loadOrder(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if err := c.requireMutable(order); err != nil {
		return nil, err
	}
	if err := c.authorizeOwner(order, caller); err != nil {
		return nil, err
	}
	if err := c.release(order, order.Owner); err != nil {
		return nil, err
	}
	order.Status = StatusCancelled
	order.UpdatedAt = uint64(c.now)
	c.emit(NewOrderCancelledEvent(order, caller))
	return order, nil
}

// release deletes the order and stages the token leaving escrow for to.
func (c *opContext) release(order *Order, to [20]byte) error {
	token, err := c.token(order.Contract)
	if err != nil {
		return err
	}
	if err := c.tx.OrderDelete(order.Contract, order.TokenID); err != nil {
		return err
	}
	c.stage(custodyMove{token: token, contract: order.Contract, tokenID: order.TokenID, from: c.engine.address, to: to})
	return nil
}

// GetOrderInfo returns the open order for the token. ok is false when the
// token is not listed.
func (e *Engine) GetOrderInfo(contract [20]byte, tokenID *big.Int) (*Order, bool, error) {
	if !validTokenID(tokenID) {
		return nil, false, newError(ErrValidation, "get_order", "invalid token id")
	}
	var (
		order *Order
		ok    bool
	)
	err := e.view(func(tx StateTx) error {
		var err error
		order, ok, err = tx.OrderGet(contract, tokenID)
		return err
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return order.Clone(), true, nil
}

// TokenIsListed reports whether the token currently has an open order.
func (e *Engine) TokenIsListed(contract [20]byte, tokenID *big.Int) (bool, error) {
	_, ok, err := e.GetOrderInfo(contract, tokenID)
	return ok, err
}

// Orders returns every open order sorted by contract and token id.
func (e *Engine) Orders() ([]*Order, error) {
	var orders []*Order
	err := e.view(func(tx StateTx) error {
		var err error
		orders, err = tx.OrderList()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := bytes.Compare(out[i].Contract[:], out[j].Contract[:]); cmp != 0 {
			return cmp < 0
		}
		return out[i].TokenID.Cmp(out[j].TokenID) < 0
	})
	return out, nil
}

// Balance returns the native currency balance of addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := e.view(func(tx StateTx) error {
		var err error
		balance, err = bank.NewLedger(tx).Balance(addr)
		return err
	})
	return balance, err
}
