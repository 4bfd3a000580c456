package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/native/fees"
	"nftmarket/native/market"
)

type orderRecord struct {
	Contract      [20]byte
	TokenID       *big.Int
	Owner         [20]byte
	Seller        [20]byte
	BuyPrice      *big.Int
	StartPrice    *big.Int
	EndTime       uint64
	HighestBidder [20]byte
	HighestBid    *big.Int
	Status        uint8
	CreatedAt     uint64
	UpdatedAt     uint64
}

type tokenFlagsRecord struct {
	Registered    bool
	OrdersEnabled bool
}

type feeScheduleRecord struct {
	Numerator   uint64
	Denominator uint64
	Collector   [20]byte
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func encodeOrder(o *market.Order) ([]byte, error) {
	return rlp.EncodeToBytes(&orderRecord{
		Contract:      o.Contract,
		TokenID:       nonNil(o.TokenID),
		Owner:         o.Owner,
		Seller:        o.Seller,
		BuyPrice:      nonNil(o.BuyPrice),
		StartPrice:    nonNil(o.StartPrice),
		EndTime:       o.EndTime,
		HighestBidder: o.HighestBidder,
		HighestBid:    nonNil(o.HighestBid),
		Status:        uint8(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	})
}

func decodeOrder(data []byte) (*market.Order, error) {
	var rec orderRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, fmt.Errorf("state: decode order: %w", err)
	}
	return &market.Order{
		ID:            market.OrderID(rec.Contract, rec.TokenID),
		Contract:      rec.Contract,
		TokenID:       nonNil(rec.TokenID),
		Owner:         rec.Owner,
		Seller:        rec.Seller,
		BuyPrice:      nonNil(rec.BuyPrice),
		StartPrice:    nonNil(rec.StartPrice),
		EndTime:       rec.EndTime,
		HighestBidder: rec.HighestBidder,
		HighestBid:    nonNil(rec.HighestBid),
		Status:        market.Status(rec.Status),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

// OrderGet loads the open order for the token, if any.
func (tx *Tx) OrderGet(contract [20]byte, tokenID *big.Int) (*market.Order, bool, error) {
	data, ok, err := tx.get(orderKey(market.OrderID(contract, tokenID)))
	if err != nil || !ok {
		return nil, false, err
	}
	order, err := decodeOrder(data)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// OrderPut stores the order under its deterministic id.
func (tx *Tx) OrderPut(order *market.Order) error {
	if order == nil {
		return fmt.Errorf("state: nil order")
	}
	data, err := encodeOrder(order)
	if err != nil {
		return fmt.Errorf("state: encode order: %w", err)
	}
	return tx.put(orderKey(market.OrderID(order.Contract, order.TokenID)), data)
}

// OrderDelete removes the order record, freeing the key for a new listing.
func (tx *Tx) OrderDelete(contract [20]byte, tokenID *big.Int) error {
	return tx.del(orderKey(market.OrderID(contract, tokenID)))
}

// OrderList returns every stored order ordered by id.
func (tx *Tx) OrderList() ([]*market.Order, error) {
	values, err := tx.scan(orderPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*market.Order, 0, len(values))
	for _, data := range values {
		order, err := decodeOrder(data)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

// TokenFlagsGet returns the registry flags of contract. Unknown contracts
// report the zero value.
func (tx *Tx) TokenFlagsGet(contract [20]byte) (market.TokenFlags, error) {
	data, ok, err := tx.get(tokenFlagsKey(contract))
	if err != nil || !ok {
		return market.TokenFlags{}, err
	}
	var rec tokenFlagsRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return market.TokenFlags{}, fmt.Errorf("state: decode token flags: %w", err)
	}
	return market.TokenFlags{Registered: rec.Registered, OrdersEnabled: rec.OrdersEnabled}, nil
}

func (tx *Tx) TokenFlagsPut(contract [20]byte, flags market.TokenFlags) error {
	data, err := rlp.EncodeToBytes(&tokenFlagsRecord{Registered: flags.Registered, OrdersEnabled: flags.OrdersEnabled})
	if err != nil {
		return err
	}
	return tx.put(tokenFlagsKey(contract), data)
}

// OrdersDisabledGet reports the global kill switch. Absence means enabled.
func (tx *Tx) OrdersDisabledGet() (bool, error) {
	_, ok, err := tx.get(ordersDisabledKey)
	return ok, err
}

func (tx *Tx) OrdersDisabledPut(disabled bool) error {
	if disabled {
		return tx.put(ordersDisabledKey, []byte{1})
	}
	return tx.del(ordersDisabledKey)
}

func (tx *Tx) FeeScheduleGet() (fees.Schedule, bool, error) {
	data, ok, err := tx.get(feeScheduleKey)
	if err != nil || !ok {
		return fees.Schedule{}, false, err
	}
	var rec feeScheduleRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return fees.Schedule{}, false, fmt.Errorf("state: decode fee schedule: %w", err)
	}
	return fees.Schedule{Numerator: rec.Numerator, Denominator: rec.Denominator, Collector: rec.Collector}, true, nil
}

func (tx *Tx) FeeSchedulePut(schedule fees.Schedule) error {
	data, err := rlp.EncodeToBytes(&feeScheduleRecord{
		Numerator:   schedule.Numerator,
		Denominator: schedule.Denominator,
		Collector:   schedule.Collector,
	})
	if err != nil {
		return err
	}
	return tx.put(feeScheduleKey, data)
}

func (tx *Tx) AdminGet() ([20]byte, error) {
	var admin [20]byte
	data, ok, err := tx.get(adminKey)
	if err != nil || !ok {
		return admin, err
	}
	if len(data) != len(admin) {
		return admin, fmt.Errorf("state: admin record has %d bytes", len(data))
	}
	copy(admin[:], data)
	return admin, nil
}

func (tx *Tx) AdminPut(admin [20]byte) error {
	return tx.put(adminKey, admin[:])
}
