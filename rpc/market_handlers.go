package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"nftmarket/native/fees"
	"nftmarket/native/market"
)

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params contractParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, rpcErr := parseContract("contract", params.Contract)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if err := s.engine.RegisterToken(caller, contract); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	s.writeTokenFlags(w, req.ID, contract)
}

func (s *Server) handleToggleTokenOrders(enable bool) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		var params contractParams
		if rpcErr := decodeObject(req, &params); rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		caller, rpcErr := s.resolveCaller(r, params.Caller)
		if rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		contract, rpcErr := parseContract("contract", params.Contract)
		if rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		var err error
		if enable {
			err = s.engine.EnableTokenOrders(caller, contract)
		} else {
			err = s.engine.DisableTokenOrders(caller, contract)
		}
		if err != nil {
			writeMarketError(w, req.ID, err)
			return
		}
		s.writeTokenFlags(w, req.ID, contract)
	}
}

func (s *Server) handleToggleOrders(enable bool) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		var params callerParams
		if len(req.Params) > 0 {
			if rpcErr := decodeObject(req, &params); rpcErr != nil {
				writeRPCError(w, req.ID, rpcErr)
				return
			}
		}
		caller, rpcErr := s.resolveCaller(r, params.Caller)
		if rpcErr != nil {
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		var err error
		if enable {
			err = s.engine.EnableOrders(caller)
		} else {
			err = s.engine.DisableOrders(caller)
		}
		if err != nil {
			writeMarketError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, map[string]bool{"ordersEnabled": enable})
	}
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params feeParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	numerator, denominator, err := fees.ParseRate(params.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", err.Error())
		return
	}
	if err := s.engine.SetMarketFee(caller, numerator, denominator); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	s.writeFee(w, req.ID)
}

func (s *Server) handleSetFeeCollector(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	collector, rpcErr := parseAccount("address", params.Address)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if err := s.engine.SetMarketFeeCollector(caller, collector); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	s.writeFee(w, req.ID)
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	next, rpcErr := parseAccount("address", params.Address)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if err := s.engine.SetAdmin(caller, next); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"admin": formatAccount(next)})
}

type orderTerms struct {
	contract   [20]byte
	tokenID    *big.Int
	buyPrice   *big.Int
	startPrice *big.Int
	endTime    *big.Int
}

func parseTerms(item termsItem) (orderTerms, *RPCError) {
	var (
		terms  orderTerms
		rpcErr *RPCError
	)
	if terms.contract, rpcErr = parseContract("contract", item.Contract); rpcErr != nil {
		return terms, rpcErr
	}
	if terms.tokenID, rpcErr = parseAmount("tokenId", item.TokenID, false); rpcErr != nil {
		return terms, rpcErr
	}
	if terms.buyPrice, rpcErr = parseAmount("buyPrice", item.BuyPrice, false); rpcErr != nil {
		return terms, rpcErr
	}
	if terms.startPrice, rpcErr = parseAmount("startPrice", item.StartPrice, true); rpcErr != nil {
		return terms, rpcErr
	}
	if terms.endTime, rpcErr = parseAmount("endTime", item.EndTime, true); rpcErr != nil {
		return terms, rpcErr
	}
	return terms, nil
}

func parseRef(item refItem) ([20]byte, *big.Int, *RPCError) {
	contract, rpcErr := parseContract("contract", item.Contract)
	if rpcErr != nil {
		return [20]byte{}, nil, rpcErr
	}
	tokenID, rpcErr := parseAmount("tokenId", item.TokenID, false)
	if rpcErr != nil {
		return [20]byte{}, nil, rpcErr
	}
	return contract, tokenID, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTerms(w, r, req, s.engine.Create)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTerms(w, r, req, s.engine.Update)
}

type termsOp func(caller, contract [20]byte, tokenID, buyPrice, startPrice, endTime *big.Int) (*market.Order, error)

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request, req *RPCRequest, op termsOp) {
	var params orderTermsParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	terms, rpcErr := parseTerms(termsItem{
		Contract:   params.Contract,
		TokenID:    params.TokenID,
		BuyPrice:   params.BuyPrice,
		StartPrice: params.StartPrice,
		EndTime:    params.EndTime,
	})
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	order, err := op(caller, terms.contract, terms.tokenID, terms.buyPrice, terms.startPrice, terms.endTime)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResult(order))
}

func (s *Server) handleCreateMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTermsMany(w, r, req, s.engine.CreateMany)
}

func (s *Server) handleUpdateMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTermsMany(w, r, req, s.engine.UpdateMany)
}

type termsManyOp func(caller [20]byte, contracts [][20]byte, tokenIDs, buyPrices, startPrices, endTimes []*big.Int) ([]*market.Order, error)

func (s *Server) handleTermsMany(w http.ResponseWriter, r *http.Request, req *RPCRequest, op termsManyOp) {
	var params batchTermsParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	n := len(params.Items)
	contracts := make([][20]byte, n)
	tokenIDs := make([]*big.Int, n)
	buyPrices := make([]*big.Int, n)
	startPrices := make([]*big.Int, n)
	endTimes := make([]*big.Int, n)
	for i, item := range params.Items {
		terms, rpcErr := parseTerms(item)
		if rpcErr != nil {
			rpcErr.Message = fmt.Sprintf("item %d: %s", i, rpcErr.Message)
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		contracts[i], tokenIDs[i] = terms.contract, terms.tokenID
		buyPrices[i], startPrices[i], endTimes[i] = terms.buyPrice, terms.startPrice, terms.endTime
	}
	orders, err := op(caller, contracts, tokenIDs, buyPrices, startPrices, endTimes)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResults(orders))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleRef(w, r, req, s.engine.Cancel)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleRef(w, r, req, s.engine.Complete)
}

type refOp func(caller, contract [20]byte, tokenID *big.Int) (*market.Order, error)

func (s *Server) handleRef(w http.ResponseWriter, r *http.Request, req *RPCRequest, op refOp) {
	var params orderRefParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, tokenID, rpcErr := parseRef(refItem{Contract: params.Contract, TokenID: params.TokenID})
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	order, err := op(caller, contract, tokenID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResult(order))
}

func (s *Server) handleCancelMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleRefMany(w, r, req, s.engine.CancelMany)
}

func (s *Server) handleCompleteMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleRefMany(w, r, req, s.engine.CompleteMany)
}

type refManyOp func(caller [20]byte, contracts [][20]byte, tokenIDs []*big.Int) ([]*market.Order, error)

func (s *Server) handleRefMany(w http.ResponseWriter, r *http.Request, req *RPCRequest, op refManyOp) {
	var params batchRefParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contracts := make([][20]byte, len(params.Items))
	tokenIDs := make([]*big.Int, len(params.Items))
	for i, item := range params.Items {
		contract, tokenID, rpcErr := parseRef(item)
		if rpcErr != nil {
			rpcErr.Message = fmt.Sprintf("item %d: %s", i, rpcErr.Message)
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		contracts[i], tokenIDs[i] = contract, tokenID
	}
	orders, err := op(caller, contracts, tokenIDs)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResults(orders))
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handlePayment(w, r, req, s.engine.Bid)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handlePayment(w, r, req, s.engine.Buy)
}

type paymentOp func(caller, contract [20]byte, tokenID, value *big.Int) (*market.Order, error)

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request, req *RPCRequest, op paymentOp) {
	var params paymentParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	contract, tokenID, rpcErr := parseRef(refItem{Contract: params.Contract, TokenID: params.TokenID})
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	value, rpcErr := parseAmount("value", params.Value, false)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	order, err := op(caller, contract, tokenID, value)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResult(order))
}

func (s *Server) handleBidMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handlePaymentMany(w, r, req, s.engine.BidMany)
}

func (s *Server) handleBuyMany(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handlePaymentMany(w, r, req, s.engine.BuyMany)
}

type paymentManyOp func(caller [20]byte, contracts [][20]byte, tokenIDs, amounts []*big.Int, value *big.Int) ([]*market.Order, error)

func (s *Server) handlePaymentMany(w http.ResponseWriter, r *http.Request, req *RPCRequest, op paymentManyOp) {
	var params batchPaymentParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	caller, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	n := len(params.Items)
	contracts := make([][20]byte, n)
	tokenIDs := make([]*big.Int, n)
	amounts := make([]*big.Int, n)
	for i, item := range params.Items {
		contract, tokenID, rpcErr := parseRef(refItem{Contract: item.Contract, TokenID: item.TokenID})
		if rpcErr == nil {
			amounts[i], rpcErr = parseAmount("amount", item.Amount, false)
		}
		if rpcErr != nil {
			rpcErr.Message = fmt.Sprintf("item %d: %s", i, rpcErr.Message)
			writeRPCError(w, req.ID, rpcErr)
			return
		}
		contracts[i], tokenIDs[i] = contract, tokenID
	}
	value, rpcErr := parseAmount("value", params.Value, false)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	orders, err := op(caller, contracts, tokenIDs, amounts, value)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOrderResults(orders))
}
