package market

import (
	"log/slog"
	"math/big"
)

// Bid places value as the new leading bid on an auction. The displaced bid
// is refunded in the same call and a bid equal to the buy price settles the
// sale immediately.
func (e *Engine) Bid(caller, contract [20]byte, tokenID, value *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("bid", 1, func(c *opContext) error {
		order, err := c.bid(caller, contract, tokenID, value)
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

// bid only accepts auctions: a fixed-price order (EndTime 0) has no bidding
// window and is taken with Buy at exactly its buy price.
func (c *opContext) bid(caller, contract [20]byte, tokenID, amount *big.Int) (*Order, error) {
	order, err := c.loadOrder(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if !order.IsAuction() {
		return nil, newError(ErrState, c.op, "fixed-price order accepts buy only")
	}
	if uint64(c.now) >= order.EndTime {
		return nil, newError(ErrState, c.op, "auction ended")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, newError(ErrPayment, c.op, "bid must be positive")
	}
	if amount.Cmp(order.StartPrice) < 0 {
		return nil, newError(ErrPayment, c.op, "bid %s below start price %s", amount, order.StartPrice)
	}
	if amount.Cmp(order.BuyPrice) > 0 {
		return nil, newError(ErrPayment, c.op, "bid %s above buy price %s", amount, order.BuyPrice)
	}
	if order.HasBid() && amount.Cmp(order.HighestBid) <= 0 {
		return nil, newError(ErrPayment, c.op, "bid %s does not exceed highest bid %s", amount, order.HighestBid)
	}
	if err := c.pay(caller, c.engine.address, amount, "collect bid"); err != nil {
		return nil, err
	}
	if order.HasBid() {
		prevBidder, prevBid := order.HighestBidder, order.HighestBid
		if err := c.pay(c.engine.address, prevBidder, prevBid, "refund previous bid"); err != nil {
			return nil, err
		}
		c.emit(NewBidRefundedEvent(order, prevBidder, prevBid))
		c.engine.logger.Debug("market: bid refunded",
			slog.String("orderId", orderIDString(order)),
			slog.String("bidder", formatAccount(prevBidder)),
			slog.String("amount", prevBid.String()))
	}
	order.HighestBidder = caller
	order.HighestBid = new(big.Int).Set(amount)
	order.UpdatedAt = uint64(c.now)
	c.emit(NewBidPlacedEvent(order, caller, amount))
	if amount.Cmp(order.BuyPrice) == 0 {
		return c.settle(order, caller, amount)
	}
	if err := c.tx.OrderPut(order); err != nil {
		return nil, err
	}
	return order, nil
}

// Buy purchases a fixed-price order. value must equal the buy price exactly.
func (e *Engine) Buy(caller, contract [20]byte, tokenID, value *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("buy", 1, func(c *opContext) error {
		order, err := c.buy(caller, contract, tokenID, value)
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

func (c *opContext) buy(caller, contract [20]byte, tokenID, amount *big.Int) (*Order, error) {
	order, err := c.loadOrder(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if order.IsAuction() {
		return nil, newError(ErrState, c.op, "auction order accepts bids only")
	}
	if amount == nil || amount.Cmp(order.BuyPrice) != 0 {
		return nil, newError(ErrPayment, c.op, "payment %s does not match buy price %s", formatAmount(amount), order.BuyPrice)
	}
	if err := c.pay(caller, c.engine.address, amount, "collect payment"); err != nil {
		return nil, err
	}
	return c.settle(order, caller, amount)
}

// Complete closes an auction whose end time has passed. The leading bid, if
// any, buys the token; otherwise the token returns to its owner unsold.
// Anyone may call it.
func (e *Engine) Complete(caller, contract [20]byte, tokenID *big.Int) (*Order, error) {
	var out *Order
	err := e.execute("complete", 1, func(c *opContext) error {
		order, err := c.complete(contract, tokenID)
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

func (c *opContext) complete(contract [20]byte, tokenID *big.Int) (*Order, error) {
	order, err := c.loadOrder(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if !order.IsAuction() {
		return nil, newError(ErrState, c.op, "fixed-price order cannot be completed")
	}
	if uint64(c.now) < order.EndTime {
		return nil, newError(ErrState, c.op, "auction still running")
	}
	if order.HasBid() {
		return c.settle(order, order.HighestBidder, order.HighestBid)
	}
	if err := c.release(order, order.Owner); err != nil {
		return nil, err
	}
	order.Status = StatusUnsold
	order.UpdatedAt = uint64(c.now)
	c.settled = append(c.settled, settlement{order: orderIDString(order), status: StatusUnsold, price: big.NewInt(0), fee: big.NewInt(0)})
	c.emit(NewTokenUnsoldEvent(order))
	return order, nil
}

// settle pays out price, already held in escrow, and hands the token to buyer.
func (c *opContext) settle(order *Order, buyer [20]byte, price *big.Int) (*Order, error) {
	schedule, err := c.feeSchedule()
	if err != nil {
		return nil, err
	}
	fee, ownerDue := schedule.Split(price)
	if err := c.pay(c.engine.address, schedule.Collector, fee, "pay fee"); err != nil {
		return nil, err
	}
	if err := c.pay(c.engine.address, order.Owner, ownerDue, "pay owner"); err != nil {
		return nil, err
	}
	if err := c.release(order, buyer); err != nil {
		return nil, err
	}
	order.HighestBidder = buyer
	order.HighestBid = new(big.Int).Set(price)
	order.Status = StatusSold
	order.UpdatedAt = uint64(c.now)
	c.settled = append(c.settled, settlement{order: orderIDString(order), status: StatusSold, price: new(big.Int).Set(price), fee: fee})
	c.emit(NewTokenSoldEvent(order, buyer, price, fee, ownerDue))
	return order, nil
}
