package market

import (
	"math/big"
)

// checkBatch requires parallel inputs of equal, nonzero length.
func checkBatch(op string, lengths ...int) (int, error) {
	if len(lengths) == 0 || lengths[0] == 0 {
		return 0, newError(ErrValidation, op, "empty batch")
	}
	for _, n := range lengths[1:] {
		if n != lengths[0] {
			return 0, newError(ErrValidation, op, "batch inputs have mismatched lengths %v", lengths)
		}
	}
	return lengths[0], nil
}

// runBatch applies fn to every item inside one transaction. The first failing
// item aborts the whole batch.
func (e *Engine) runBatch(op string, n int, fn func(c *opContext, i int) (*Order, error)) ([]*Order, error) {
	out := make([]*Order, 0, n)
	err := e.execute(op, n, func(c *opContext) error {
		orders := make([]*Order, 0, n)
		for i := 0; i < n; i++ {
			order, err := fn(c, i)
			if err != nil {
				return itemError(i, err)
			}
			orders = append(orders, order)
		}
		if op == "create_many" {
			c.emit(NewOrdersCreatedEvent(orders))
		}
		for _, order := range orders {
			out = append(out, order.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMany lists several tokens atomically.
func (e *Engine) CreateMany(caller [20]byte, contracts [][20]byte, tokenIDs, buyPrices, startPrices, endTimes []*big.Int) ([]*Order, error) {
	n, err := checkBatch("create_many", len(contracts), len(tokenIDs), len(buyPrices), len(startPrices), len(endTimes))
	if err != nil {
		return nil, err
	}
	return e.runBatch("create_many", n, func(c *opContext, i int) (*Order, error) {
		return c.create(caller, contracts[i], tokenIDs[i], buyPrices[i], startPrices[i], endTimes[i])
	})
}

// UpdateMany updates several orders atomically.
func (e *Engine) UpdateMany(caller [20]byte, contracts [][20]byte, tokenIDs, buyPrices, startPrices, endTimes []*big.Int) ([]*Order, error) {
	n, err := checkBatch("update_many", len(contracts), len(tokenIDs), len(buyPrices), len(startPrices), len(endTimes))
	if err != nil {
		return nil, err
	}
	return e.runBatch("update_many", n, func(c *opContext, i int) (*Order, error) {
		return c.update(caller, contracts[i], tokenIDs[i], buyPrices[i], startPrices[i], endTimes[i])
	})
}

// CancelMany cancels several orders atomically.
func (e *Engine) CancelMany(caller [20]byte, contracts [][20]byte, tokenIDs []*big.Int) ([]*Order, error) {
	n, err := checkBatch("cancel_many", len(contracts), len(tokenIDs))
	if err != nil {
		return nil, err
	}
	return e.runBatch("cancel_many", n, func(c *opContext, i int) (*Order, error) {
		return c.cancel(caller, contracts[i], tokenIDs[i])
	})
}

// BidMany places several bids atomically. value is the total attached
// payment and must equal the sum of amounts.
func (e *Engine) BidMany(caller [20]byte, contracts [][20]byte, tokenIDs, amounts []*big.Int, value *big.Int) ([]*Order, error) {
	n, err := checkBatch("bid_many", len(contracts), len(tokenIDs), len(amounts))
	if err != nil {
		return nil, err
	}
	if err := checkTotal("bid_many", amounts, value); err != nil {
		return nil, err
	}
	return e.runBatch("bid_many", n, func(c *opContext, i int) (*Order, error) {
		return c.bid(caller, contracts[i], tokenIDs[i], amounts[i])
	})
}

// BuyMany buys several fixed-price orders atomically. value is the total
// attached payment and must equal the sum of amounts.
func (e *Engine) BuyMany(caller [20]byte, contracts [][20]byte, tokenIDs, amounts []*big.Int, value *big.Int) ([]*Order, error) {
	n, err := checkBatch("buy_many", len(contracts), len(tokenIDs), len(amounts))
	if err != nil {
		return nil, err
	}
	if err := checkTotal("buy_many", amounts, value); err != nil {
		return nil, err
	}
	return e.runBatch("buy_many", n, func(c *opContext, i int) (*Order, error) {
		return c.buy(caller, contracts[i], tokenIDs[i], amounts[i])
	})
}

// CompleteMany completes several ended auctions atomically.
func (e *Engine) CompleteMany(caller [20]byte, contracts [][20]byte, tokenIDs []*big.Int) ([]*Order, error) {
	n, err := checkBatch("complete_many", len(contracts), len(tokenIDs))
	if err != nil {
		return nil, err
	}
	return e.runBatch("complete_many", n, func(c *opContext, i int) (*Order, error) {
		return c.complete(contracts[i], tokenIDs[i])
	})
}

func checkTotal(op string, amounts []*big.Int, value *big.Int) error {
	total := new(big.Int)
	for i, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return itemError(i, newError(ErrPayment, op, "amount must be positive"))
		}
		total.Add(total, amount)
	}
	if value == nil || value.Cmp(total) != 0 {
		return newError(ErrPayment, op, "attached value %s does not match total %s", formatAmount(value), total)
	}
	return nil
}
