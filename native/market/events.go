package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftmarket/core/types"
	"nftmarket/crypto"
)

const (
	EventTypeTokenRegistered     = "market.token_registered"
	EventTypeOrdersEnabled       = "market.orders_enabled"
	EventTypeOrdersDisabled      = "market.orders_disabled"
	EventTypeTokenOrdersEnabled  = "market.token_orders_enabled"
	EventTypeTokenOrdersDisabled = "market.token_orders_disabled"
	EventTypeOrderCreated        = "market.order_created"
	EventTypeOrdersCreated       = "market.orders_created"
	EventTypeOrderUpdated        = "market.order_updated"
	EventTypeOrderCancelled      = "market.order_cancelled"
	EventTypeBidPlaced           = "market.bid_placed"
	EventTypeBidRefunded         = "market.bid_refunded"
	EventTypeTokenSold           = "market.token_sold"
	EventTypeTokenUnsold         = "market.token_unsold"
	EventTypeFeeChanged          = "market.fee_changed"
	EventTypeFeeCollectorChanged = "market.fee_collector_changed"
	EventTypeAdminChanged        = "market.admin_changed"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func formatAccount(addr [20]byte) string {
	return crypto.FormatAddress(crypto.MarketPrefix, addr)
}

func formatContract(addr [20]byte) string {
	return crypto.FormatAddress(crypto.ContractPrefix, addr)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newContractEvent(eventType string, contract [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{"contract": formatContract(contract)}}
}

// NewTokenRegisteredEvent is emitted when the admin allows a contract to list.
func NewTokenRegisteredEvent(contract [20]byte) *types.Event {
	return newContractEvent(EventTypeTokenRegistered, contract)
}

// NewTokenOrdersToggledEvent is emitted when order creation is switched for a
// single contract.
func NewTokenOrdersToggledEvent(contract [20]byte, enabled bool) *types.Event {
	if enabled {
		return newContractEvent(EventTypeTokenOrdersEnabled, contract)
	}
	return newContractEvent(EventTypeTokenOrdersDisabled, contract)
}

// NewOrdersToggledEvent is emitted when order creation is switched globally.
func NewOrdersToggledEvent(enabled bool) *types.Event {
	if enabled {
		return &types.Event{Type: EventTypeOrdersEnabled, Attributes: map[string]string{}}
	}
	return &types.Event{Type: EventTypeOrdersDisabled, Attributes: map[string]string{}}
}

func orderAttributes(o *Order) map[string]string {
	attrs := make(map[string]string)
	if o == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(o.ID[:])
	attrs["contract"] = formatContract(o.Contract)
	attrs["tokenId"] = formatAmount(o.TokenID)
	attrs["owner"] = formatAccount(o.Owner)
	attrs["seller"] = formatAccount(o.Seller)
	attrs["buyPrice"] = formatAmount(o.BuyPrice)
	attrs["startPrice"] = formatAmount(o.StartPrice)
	attrs["endTime"] = strconv.FormatUint(o.EndTime, 10)
	return attrs
}

// NewOrderCreatedEvent carries the listing terms of a new order.
func NewOrderCreatedEvent(o *Order) *types.Event {
	return &types.Event{Type: EventTypeOrderCreated, Attributes: orderAttributes(o)}
}

// NewOrdersCreatedEvent summarises a batch listing.
func NewOrdersCreatedEvent(orders []*Order) *types.Event {
	ids := make([]byte, 0, len(orders)*65)
	for i, o := range orders {
		if i > 0 {
			ids = append(ids, ',')
		}
		ids = append(ids, hex.EncodeToString(o.ID[:])...)
	}
	attrs := map[string]string{
		"count": strconv.Itoa(len(orders)),
		"ids":   string(ids),
	}
	if len(orders) > 0 {
		attrs["seller"] = formatAccount(orders[0].Seller)
	}
	return &types.Event{Type: EventTypeOrdersCreated, Attributes: attrs}
}

// NewOrderUpdatedEvent carries the new terms of an updated order.
func NewOrderUpdatedEvent(o *Order) *types.Event {
	return &types.Event{Type: EventTypeOrderUpdated, Attributes: orderAttributes(o)}
}

// NewOrderCancelledEvent is emitted when a listing is withdrawn.
func NewOrderCancelledEvent(o *Order, caller [20]byte) *types.Event {
	attrs := orderAttributes(o)
	attrs["caller"] = formatAccount(caller)
	return &types.Event{Type: EventTypeOrderCancelled, Attributes: attrs}
}

// NewBidPlacedEvent is emitted for every accepted bid.
func NewBidPlacedEvent(o *Order, bidder [20]byte, amount *big.Int) *types.Event {
	attrs := orderAttributes(o)
	attrs["bidder"] = formatAccount(bidder)
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypeBidPlaced, Attributes: attrs}
}

// NewBidRefundedEvent is emitted when a superseded bid is returned.
func NewBidRefundedEvent(o *Order, bidder [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeBidRefunded, Attributes: map[string]string{
		"id":       hex.EncodeToString(o.ID[:]),
		"contract": formatContract(o.Contract),
		"tokenId":  formatAmount(o.TokenID),
		"bidder":   formatAccount(bidder),
		"amount":   formatAmount(amount),
	}}
}

// NewTokenSoldEvent describes a settled sale and its proceeds split.
func NewTokenSoldEvent(o *Order, buyer [20]byte, price, fee, ownerDue *big.Int) *types.Event {
	attrs := orderAttributes(o)
	attrs["buyer"] = formatAccount(buyer)
	attrs["price"] = formatAmount(price)
	attrs["fee"] = formatAmount(fee)
	attrs["ownerDue"] = formatAmount(ownerDue)
	return &types.Event{Type: EventTypeTokenSold, Attributes: attrs}
}

// NewTokenUnsoldEvent is emitted when an auction closes without bids and the
// token returns to its owner.
func NewTokenUnsoldEvent(o *Order) *types.Event {
	return &types.Event{Type: EventTypeTokenUnsold, Attributes: orderAttributes(o)}
}

// NewFeeChangedEvent is emitted when the platform fee fraction changes.
func NewFeeChangedEvent(numerator, denominator uint64) *types.Event {
	return &types.Event{Type: EventTypeFeeChanged, Attributes: map[string]string{
		"numerator":   strconv.FormatUint(numerator, 10),
		"denominator": strconv.FormatUint(denominator, 10),
	}}
}

// NewFeeCollectorChangedEvent is emitted when fee payments are rerouted.
func NewFeeCollectorChangedEvent(collector [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeeCollectorChanged, Attributes: map[string]string{
		"collector": formatAccount(collector),
	}}
}

// NewAdminChangedEvent is emitted on admin handover.
func NewAdminChangedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeAdminChanged, Attributes: map[string]string{
		"previous": formatAccount(previous),
		"admin":    formatAccount(next),
	}}
}

func orderIDString(o *Order) string {
	return hex.EncodeToString(o.ID[:])
}
