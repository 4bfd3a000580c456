package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"nftmarket/crypto"
	"nftmarket/storage/eventlog"
)

func (s *Server) writeTokenFlags(w http.ResponseWriter, id interface{}, contract [20]byte) {
	flags, err := s.engine.GetTokenFlags(contract)
	if err != nil {
		writeMarketError(w, id, err)
		return
	}
	writeResult(w, id, TokenFlagsResult{
		Contract:      formatContract(contract),
		Registered:    flags.Registered,
		OrdersEnabled: flags.OrdersEnabled,
	})
}

func (s *Server) writeFee(w http.ResponseWriter, id interface{}) {
	schedule, err := s.engine.FeeSchedule()
	if err != nil {
		writeMarketError(w, id, err)
		return
	}
	writeResult(w, id, newFeeResult(schedule))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params refItem
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, tokenID, rpcErr := parseRef(params)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	order, ok, err := s.engine.GetOrderInfo(contract, tokenID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, unknownOrderResult(contract, tokenID))
		return
	}
	writeResult(w, req.ID, newOrderResult(order))
}

func (s *Server) handleTokenIsListed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params refItem
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, tokenID, rpcErr := parseRef(params)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	listed, err := s.engine.TokenIsListed(contract, tokenID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, listed)
}

// decodeString reads a positional string parameter.
func decodeString(req *RPCRequest, field string) (string, *RPCError) {
	if len(req.Params) != 1 {
		return "", invalidParams("expected %s", field)
	}
	var value string
	if err := json.Unmarshal(req.Params[0], &value); err != nil {
		return "", &RPCError{Code: codeInvalidParams, Message: "invalid " + field, Data: err.Error()}
	}
	return value, nil
}

func (s *Server) handleGetTokenFlags(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, rpcErr := decodeString(req, "contract")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, rpcErr := parseContract("contract", raw)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	s.writeTokenFlags(w, req.ID, contract)
}

func (s *Server) handleGetFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	s.writeFee(w, req.ID)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	admin, err := s.engine.Admin()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	enabled, err := s.engine.OrdersEnabled()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	schedule, err := s.engine.FeeSchedule()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, StatusResult{
		Admin:         formatAccount(admin),
		Market:        formatAccount(s.engine.Address()),
		OrdersEnabled: enabled,
		Fee:           newFeeResult(schedule),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, rpcErr := decodeString(req, "address")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	addr, rpcErr := parseAccount("address", raw)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": formatAccount(addr),
		"balance": formatBig(balance),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listOrdersParams
	if len(req.Params) > 0 {
		if rpcErr := decodeObject(req, &params); rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
	}
	var (
		contract, owner     [20]byte
		byContract, byOwner bool
		rpcErr              *RPCError
	)
	if strings.TrimSpace(params.Contract) != "" {
		if contract, rpcErr = parseContract("contract", params.Contract); rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		byContract = true
	}
	if strings.TrimSpace(params.Owner) != "" {
		if owner, rpcErr = parseAccount("owner", params.Owner); rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		byOwner = true
	}
	orders, err := s.engine.Orders()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	out := make([]OrderResult, 0, len(orders))
	for _, order := range orders {
		if byContract && order.Contract != contract {
			continue
		}
		if byOwner && order.Owner != owner {
			continue
		}
		out = append(out, newOrderResult(order))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event journal unavailable", nil)
		return
	}
	var params listEventsParams
	if len(req.Params) > 0 {
		if rpcErr := decodeObject(req, &params); rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
	}
	if params.Limit < 0 || params.Limit > eventlog.MaxLimit {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit out of range", eventlog.MaxLimit)
		return
	}
	filter := eventlog.Filter{
		Type:    strings.TrimSpace(params.Type),
		OrderID: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(params.OrderID)), "0x"),
		After:   params.After,
		Limit:   params.Limit,
	}
	if strings.TrimSpace(params.Contract) != "" {
		contract, rpcErr := parseContract("contract", params.Contract)
		if rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		filter.Contract = crypto.FormatAddress(crypto.ContractPrefix, contract)
	}
	records, err := s.journal.List(requestContext(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list events", err.Error())
		return
	}
	out := make([]EventResult, 0, len(records))
	for _, record := range records {
		result, err := newEventResult(record)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to decode event", err.Error())
			return
		}
		out = append(out, result)
	}
	writeResult(w, req.ID, out)
}
