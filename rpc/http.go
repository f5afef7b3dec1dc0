package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lsdchain/core/types"
	"lsdchain/indexer"
	"lsdchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	moduleName      = "lsd"
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Backend is the node surface the server exposes.
type Backend interface {
	ChainID() uint64
	SubmitCall(call *types.Call) (*types.CallResult, error)
	StakedAmount(owner [20]byte) (uint64, error)
	StakedAt(owner [20]byte) (int64, bool, error)
	Position(owner [20]byte) (*types.Position, error)
	BalanceOf(owner [20]byte) (uint64, error)
	NativeBalance(owner [20]byte) (uint64, error)
	Nonce(owner [20]byte) (uint64, error)
	Totals() (*types.Totals, error)
	TokenInfo() (*types.TokenInfo, error)
}

// History serves the event history of an account.
type History interface {
	History(ctx context.Context, account [20]byte, limit int) ([]indexer.Record, error)
}

// ServerConfig configures the JSON-RPC server.
type ServerConfig struct {
	RequestsPerMinute int
	Burst             int
	Logger            *slog.Logger
}

type Server struct {
	node    Backend
	history History
	limiter *RateLimiter
	logger  *slog.Logger
	httpSrv *http.Server
}

func NewServer(node Backend, history History, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		history: history,
		limiter: NewRateLimiter(RateLimit{RequestsPerMinute: float64(cfg.RequestsPerMinute), Burst: cfg.Burst}),
		logger:  logger.With(slog.String("component", "rpc")),
	}
}

// Router returns the HTTP routes served by the node.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return r
}

// Start serves the router on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown rpc server: %w", err)
		}
		return nil
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// codeWriter remembers the JSON-RPC error code written for metrics.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if cw, ok := w.(*codeWriter); ok {
		cw.code = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
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

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(rw http.ResponseWriter, r *http.Request) {
	w := &codeWriter{ResponseWriter: rw}
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

	start := time.Now()
	defer func() {
		observability.ModuleMetrics().Observe(moduleName, req.Method, w.code, time.Since(start))
	}()

	switch req.Method {
	case "lsd_chainId":
		writeResult(w, req.ID, s.node.ChainID())
	case "lsd_sendCall":
		s.handleSendCall(w, r, req)
	case "lsd_getStakedAmount":
		s.handleGetStakedAmount(w, r, req)
	case "lsd_getStakedAt":
		s.handleGetStakedAt(w, r, req)
	case "lsd_getPosition":
		s.handleGetPosition(w, r, req)
	case "lsd_balanceOf":
		s.handleBalanceOf(w, r, req)
	case "lsd_nativeBalance":
		s.handleNativeBalance(w, r, req)
	case "lsd_getNonce":
		s.handleGetNonce(w, r, req)
	case "lsd_totals":
		s.handleTotals(w, r, req)
	case "lsd_tokenInfo":
		s.handleTokenInfo(w, r, req)
	case "lsd_history":
		s.handleHistory(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}
