package rpc

import (
	"errors"
	"net/http"

	"nftmarket/native/nft"
)

type mintParams struct {
	Contract string `json:"contract"`
	To       string `json:"to"`
	TokenID  string `json:"tokenId"`
}

type approvalParams struct {
	Caller   string `json:"caller,omitempty"`
	Contract string `json:"contract"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type faucetParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func writeTokenError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, nft.ErrUnknownCollection) || errors.Is(err, nft.ErrTokenNotFound) {
		status = http.StatusNotFound
	}
	writeError(w, status, id, codeServerError, err.Error(), nil)
}

func (s *Server) collection(w http.ResponseWriter, id interface{}, raw string) (*nft.Collection, bool) {
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, "token registry unavailable", nil)
		return nil, false
	}
	contract, rpcErr := parseContract("contract", raw)
	if rpcErr != nil {
		writeRPCError(w, id, rpcErr)
		return nil, false
	}
	coll, err := s.tokens.Lookup(contract)
	if err != nil {
		writeTokenError(w, id, err)
		return nil, false
	}
	return coll, true
}

func (s *Server) handleNFTMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	coll, ok := s.collection(w, req.ID, params.Contract)
	if !ok {
		return
	}
	to, rpcErr := parseAccount("to", params.To)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	tokenID, rpcErr := parseAmount("tokenId", params.TokenID, false)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if err := coll.Mint(to, tokenID); err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"contract": formatContract(coll.Address()),
		"tokenId":  tokenID.String(),
		"owner":    formatAccount(to),
	})
}

func (s *Server) handleNFTSetApprovalForAll(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params approvalParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	owner, rpcErr := s.resolveCaller(r, params.Caller)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	coll, ok := s.collection(w, req.ID, params.Contract)
	if !ok {
		return
	}
	operator, rpcErr := parseAccount("operator", params.Operator)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if err := coll.SetApprovalForAll(owner, operator, params.Approved); err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"owner":    formatAccount(owner),
		"operator": formatAccount(operator),
		"approved": params.Approved,
	})
}

func (s *Server) handleNFTOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params refItem
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	coll, ok := s.collection(w, req.ID, params.Contract)
	if !ok {
		return
	}
	tokenID, rpcErr := parseAmount("tokenId", params.TokenID, false)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	owner, err := coll.OwnerOf(tokenID)
	if err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAccount(owner))
}

func (s *Server) handleFaucet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.faucet == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "faucet unavailable", nil)
		return
	}
	var params faucetParams
	if rpcErr := decodeObject(req, &params); rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	addr, rpcErr := parseAccount("address", params.Address)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	amount, rpcErr := parseAmount("amount", params.Amount, false)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	if amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be positive", nil)
		return
	}
	if err := s.faucet(addr, amount); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "faucet failed", err.Error())
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
