package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"nftmarket/crypto"
	"nftmarket/gateway/middleware"
	"nftmarket/native/fees"
	"nftmarket/native/market"
	"nftmarket/storage/eventlog"
)

// OrderResult is the JSON rendering of an order.
type OrderResult struct {
	ID            string `json:"id"`
	Contract      string `json:"contract"`
	TokenID       string `json:"tokenId"`
	Owner         string `json:"owner,omitempty"`
	Seller        string `json:"seller,omitempty"`
	BuyPrice      string `json:"buyPrice"`
	StartPrice    string `json:"startPrice"`
	EndTime       uint64 `json:"endTime"`
	HighestBidder string `json:"highestBidder,omitempty"`
	HighestBid    string `json:"highestBid"`
	Status        string `json:"status"`
	CreatedAt     uint64 `json:"createdAt,omitempty"`
	UpdatedAt     uint64 `json:"updatedAt,omitempty"`
}

type TokenFlagsResult struct {
	Contract      string `json:"contract"`
	Registered    bool   `json:"registered"`
	OrdersEnabled bool   `json:"ordersEnabled"`
}

type FeeResult struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
	Collector   string `json:"collector"`
	Rate        string `json:"rate"`
}

type StatusResult struct {
	Admin         string    `json:"admin"`
	Market        string    `json:"market"`
	OrdersEnabled bool      `json:"ordersEnabled"`
	Fee           FeeResult `json:"fee"`
}

type EventResult struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

type orderTermsParams struct {
	Caller     string `json:"caller,omitempty"`
	Contract   string `json:"contract"`
	TokenID    string `json:"tokenId"`
	BuyPrice   string `json:"buyPrice"`
	StartPrice string `json:"startPrice,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
}

type orderRefParams struct {
	Caller   string `json:"caller,omitempty"`
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
}

type paymentParams struct {
	Caller   string `json:"caller,omitempty"`
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Value    string `json:"value"`
}

type termsItem struct {
	Contract   string `json:"contract"`
	TokenID    string `json:"tokenId"`
	BuyPrice   string `json:"buyPrice"`
	StartPrice string `json:"startPrice,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
}

type refItem struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
}

type amountItem struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Amount   string `json:"amount"`
}

type batchTermsParams struct {
	Caller string      `json:"caller,omitempty"`
	Items  []termsItem `json:"items"`
}

type batchRefParams struct {
	Caller string    `json:"caller,omitempty"`
	Items  []refItem `json:"items"`
}

type batchPaymentParams struct {
	Caller string       `json:"caller,omitempty"`
	Items  []amountItem `json:"items"`
	Value  string       `json:"value"`
}

type contractParams struct {
	Caller   string `json:"caller,omitempty"`
	Contract string `json:"contract"`
}

type callerParams struct {
	Caller string `json:"caller,omitempty"`
}

type feeParams struct {
	Caller string `json:"caller,omitempty"`
	// Rate accepts "25/1000" or "2.5%".
	Rate string `json:"rate"`
}

type addressParams struct {
	Caller  string `json:"caller,omitempty"`
	Address string `json:"address"`
}

type listOrdersParams struct {
	Contract string `json:"contract,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

type listEventsParams struct {
	Type     string `json:"type,omitempty"`
	Contract string `json:"contract,omitempty"`
	OrderID  string `json:"orderId,omitempty"`
	After    uint64 `json:"after,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func parseAccount(field, raw string) ([20]byte, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, invalidParams("%s required", field)
	}
	addr, err := crypto.ParseAddress(crypto.MarketPrefix, trimmed)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s", field), Data: err.Error()}
	}
	return addr, nil
}

func parseContract(field, raw string) ([20]byte, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, invalidParams("%s required", field)
	}
	addr, err := crypto.ParseAddress(crypto.ContractPrefix, trimmed)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s", field), Data: err.Error()}
	}
	return addr, nil
}

// parseAmount decodes a non-negative decimal or 0x-prefixed integer. Empty
// input is an error unless optional is set, in which case it reads as zero.
func parseAmount(field, raw string, optional bool) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if optional {
			return big.NewInt(0), nil
		}
		return nil, invalidParams("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 0)
	if !ok {
		return nil, invalidParams("invalid %s %q", field, raw)
	}
	if value.Sign() < 0 {
		return nil, invalidParams("%s must not be negative", field)
	}
	return value, nil
}

// resolveCaller binds the acting account. An authenticated subject always
// wins; a conflicting caller parameter is rejected.
func (s *Server) resolveCaller(r *http.Request, raw string) ([20]byte, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	authed, ok := middleware.CallerFromContext(requestContext(r))
	if ok {
		if trimmed != "" {
			claimed, rpcErr := parseAccount("caller", trimmed)
			if rpcErr != nil {
				return [20]byte{}, rpcErr
			}
			if claimed != authed {
				return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "caller does not match bearer token"}
			}
		}
		return authed, nil
	}
	if s.requireAuth {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	return parseAccount("caller", trimmed)
}

func formatAccount(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.FormatAddress(crypto.MarketPrefix, addr)
}

func formatContract(addr [20]byte) string {
	return crypto.FormatAddress(crypto.ContractPrefix, addr)
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newOrderResult(o *market.Order) OrderResult {
	return OrderResult{
		ID:            "0x" + hex.EncodeToString(o.ID[:]),
		Contract:      formatContract(o.Contract),
		TokenID:       formatBig(o.TokenID),
		Owner:         formatAccount(o.Owner),
		Seller:        formatAccount(o.Seller),
		BuyPrice:      formatBig(o.BuyPrice),
		StartPrice:    formatBig(o.StartPrice),
		EndTime:       o.EndTime,
		HighestBidder: formatAccount(o.HighestBidder),
		HighestBid:    formatBig(o.HighestBid),
		Status:        o.Status.String(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newOrderResults(orders []*market.Order) []OrderResult {
	out := make([]OrderResult, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResult(o))
	}
	return out
}

// unknownOrderResult renders an empty order slot.
func unknownOrderResult(contract [20]byte, tokenID *big.Int) OrderResult {
	id := market.OrderID(contract, tokenID)
	return OrderResult{
		ID:         "0x" + hex.EncodeToString(id[:]),
		Contract:   formatContract(contract),
		TokenID:    formatBig(tokenID),
		BuyPrice:   "0",
		StartPrice: "0",
		HighestBid: "0",
		Status:     market.StatusUnknown.String(),
	}
}

func newFeeResult(schedule fees.Schedule) FeeResult {
	return FeeResult{
		Numerator:   schedule.Numerator,
		Denominator: schedule.Denominator,
		Collector:   formatAccount(schedule.Collector),
		Rate:        schedule.Rate(),
	}
}

func newEventResult(record eventlog.Record) (EventResult, error) {
	evt, err := record.Event()
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{
		ID:         record.ID.String(),
		Sequence:   record.Sequence,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		CreatedAt:  record.CreatedAt.Unix(),
	}, nil
}
