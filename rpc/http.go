package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nftmarket/core/events"
	"nftmarket/native/market"
	"nftmarket/native/nft"
	"nftmarket/observability"
	"nftmarket/storage/eventlog"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	metricsModule   = "market"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeMarketAuthorization = -32010
	codeMarketState         = -32011
	codeMarketValidation    = -32012
	codeMarketPayment       = -32013
	codeMarketRegistry      = -32014
)

// FaucetFunc credits test currency to an account.
type FaucetFunc func(addr [20]byte, amount *big.Int) error

// Config wires the collaborators behind the JSON-RPC server.
type Config struct {
	Engine *market.Engine
	// Tokens, Faucet and the nft_* methods are only served in dev mode.
	Tokens  *nft.Registry
	Faucet  FaucetFunc
	Journal *eventlog.Journal
	Hub     *events.Hub
	// RequireAuth makes the authenticated token subject the only accepted
	// caller.
	RequireAuth bool
	DevMode     bool
	Logger      *slog.Logger
}

// Server serves the marketplace JSON-RPC API.
type Server struct {
	engine      *market.Engine
	tokens      *nft.Registry
	faucet      FaucetFunc
	journal     *eventlog.Journal
	hub         *events.Hub
	requireAuth bool
	devMode     bool
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("rpc: market engine required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		engine:      cfg.Engine,
		tokens:      cfg.Tokens,
		faucet:      cfg.Faucet,
		journal:     cfg.Journal,
		hub:         cfg.Hub,
		requireAuth: cfg.RequireAuth,
		devMode:     cfg.DevMode,
		logger:      logger,
		tracer:      otel.Tracer("nftmarket/rpc"),
	}, nil
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// statusWriter remembers the HTTP status and JSON-RPC code of the response so
// the dispatcher can record them.
type statusWriter struct {
	http.ResponseWriter
	status int
	code   int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if sw, ok := w.(*statusWriter); ok {
		sw.code = code
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeMarketError maps engine error kinds onto JSON-RPC codes.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	status, code := http.StatusInternalServerError, codeServerError
	switch market.KindOf(err) {
	case market.ErrAuthorization:
		status, code = http.StatusForbidden, codeMarketAuthorization
	case market.ErrState:
		status, code = http.StatusConflict, codeMarketState
	case market.ErrValidation:
		status, code = http.StatusBadRequest, codeMarketValidation
	case market.ErrPayment:
		status, code = http.StatusBadRequest, codeMarketPayment
	case market.ErrRegistry:
		status, code = http.StatusConflict, codeMarketRegistry
	}
	writeError(w, status, id, code, err.Error(), nil)
}

// ServeHTTP is the main request handler that routes to specific handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	handler, ok := s.lookup(req.Method)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	start := time.Now()
	ctx, span := s.tracer.Start(r.Context(), req.Method, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", req.Method),
	))
	recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	handler(recorder, r.WithContext(ctx), req)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("http.status_code", recorder.status))
	if recorder.code != 0 {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", recorder.code))
		span.SetStatus(codes.Error, fmt.Sprintf("code %d", recorder.code))
	}
	span.End()

	status := 0
	if recorder.code != 0 {
		status = recorder.status
	}
	observability.ModuleMetrics().Observe(metricsModule, req.Method, status, elapsed)
	s.logger.Debug("rpc call",
		slog.String("method", req.Method),
		slog.Int("status", recorder.status),
		slog.Int("code", recorder.code),
		slog.Duration("duration", elapsed))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) lookup(method string) (handlerFunc, bool) {
	switch method {
	case "market_registerToken":
		return s.handleRegisterToken, true
	case "market_enableTokenOrders":
		return s.handleToggleTokenOrders(true), true
	case "market_disableTokenOrders":
		return s.handleToggleTokenOrders(false), true
	case "market_enableOrders":
		return s.handleToggleOrders(true), true
	case "market_disableOrders":
		return s.handleToggleOrders(false), true
	case "market_setFee":
		return s.handleSetFee, true
	case "market_setFeeCollector":
		return s.handleSetFeeCollector, true
	case "market_setAdmin":
		return s.handleSetAdmin, true
	case "market_create":
		return s.handleCreate, true
	case "market_createMany":
		return s.handleCreateMany, true
	case "market_update":
		return s.handleUpdate, true
	case "market_updateMany":
		return s.handleUpdateMany, true
	case "market_cancel":
		return s.handleCancel, true
	case "market_cancelMany":
		return s.handleCancelMany, true
	case "market_bid":
		return s.handleBid, true
	case "market_bidMany":
		return s.handleBidMany, true
	case "market_buy":
		return s.handleBuy, true
	case "market_buyMany":
		return s.handleBuyMany, true
	case "market_complete":
		return s.handleComplete, true
	case "market_completeMany":
		return s.handleCompleteMany, true
	case "market_getOrder":
		return s.handleGetOrder, true
	case "market_tokenIsListed":
		return s.handleTokenIsListed, true
	case "market_getTokenFlags":
		return s.handleGetTokenFlags, true
	case "market_getFee":
		return s.handleGetFee, true
	case "market_getStatus":
		return s.handleGetStatus, true
	case "market_getBalance":
		return s.handleGetBalance, true
	case "market_listOrders":
		return s.handleListOrders, true
	case "market_listEvents":
		return s.handleListEvents, true
	}
	if !s.devMode {
		return nil, false
	}
	switch method {
	case "market_faucet":
		return s.handleFaucet, true
	case "nft_mint":
		return s.handleNFTMint, true
	case "nft_setApprovalForAll":
		return s.handleNFTSetApprovalForAll, true
	case "nft_ownerOf":
		return s.handleNFTOwnerOf, true
	}
	return nil, false
}

// decodeObject unmarshals the single object parameter most methods take.
func decodeObject(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "parameter object required"}
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params[0]))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func writeRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	status := http.StatusBadRequest
	if rpcErr.Code == codeUnauthorized {
		status = http.StatusUnauthorized
	}
	writeError(w, status, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}
