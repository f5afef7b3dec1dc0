package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"lsdchain/core"
	"lsdchain/crypto"
	"lsdchain/indexer"
	"lsdchain/observability/logging"
)

type amountResult struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type stakedAtResult struct {
	Address  string `json:"address"`
	StakedAt *int64 `json:"stakedAt"`
}

type nonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

type historyResult struct {
	Address string           `json:"address"`
	Records []indexer.Record `json:"records"`
}

func parseAddressParam(req *RPCRequest, max int) ([20]byte, string, error) {
	var zero [20]byte
	if len(req.Params) == 0 {
		return zero, "", fmt.Errorf("address parameter required")
	}
	if len(req.Params) > max {
		return zero, "", fmt.Errorf("too many parameters")
	}
	var addr string
	if err := json.Unmarshal(req.Params[0], &addr); err != nil {
		return zero, "", fmt.Errorf("address must be a string")
	}
	id, err := crypto.ParseIdentity(addr)
	if err != nil {
		return zero, "", fmt.Errorf("invalid address: %w", err)
	}
	return id, crypto.FromBytes20(id).String(), nil
}

func (s *Server) handleSendCall(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "call parameter required", nil)
		return
	}
	var params CallParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid call format", err.Error())
		return
	}
	call, err := params.Decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid call format", err.Error())
		return
	}
	if call.ChainID != s.node.ChainID() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "call chainId does not match network", call.ChainID)
		return
	}
	from, err := call.From()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid call signature", err.Error())
		return
	}
	result, err := s.node.SubmitCall(call)
	if err != nil {
		s.logger.Info("call rejected",
			logging.MaskField("addr", crypto.FromBytes20(from).String()),
			slog.String("op", params.Type),
			slog.Any("error", err),
		)
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetStakedAmount(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, addr, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := s.node.StakedAmount(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Address: addr, Amount: amount})
}

func (s *Server) handleGetStakedAt(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, addr, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	at, ok, err := s.node.StakedAt(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	result := stakedAtResult{Address: addr}
	if ok {
		result.StakedAt = &at
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, _, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pos, err := s.node.Position(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pos)
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, addr, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.BalanceOf(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Address: addr, Amount: balance})
}

func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, addr, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.NativeBalance(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Address: addr, Amount: balance})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, addr, err := parseAddressParam(req, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	nonce, err := s.node.Nonce(owner)
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, nonceResult{Address: addr, Nonce: nonce})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	totals, err := s.node.Totals()
	if err != nil {
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totals)
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	info, err := s.node.TokenInfo()
	if err != nil {
		if errors.Is(err, core.ErrGenesisMissing) {
			writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, err.Error(), nil)
			return
		}
		writeCallError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, info)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "history index disabled", nil)
		return
	}
	owner, addr, err := parseAddressParam(req, 2)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	limit := indexer.DefaultHistoryLimit
	if len(req.Params) == 2 {
		if err := json.Unmarshal(req.Params[1], &limit); err != nil {
			var text string
			if jsonErr := json.Unmarshal(req.Params[1], &text); jsonErr != nil {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be an integer", err.Error())
				return
			}
			parsed, convErr := strconv.Atoi(text)
			if convErr != nil {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be an integer", convErr.Error())
				return
			}
			limit = parsed
		}
		if limit <= 0 {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be positive", limit)
			return
		}
	}
	records, err := s.history.History(r.Context(), owner, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load history", err.Error())
		return
	}
	if records == nil {
		records = []indexer.Record{}
	}
	writeResult(w, req.ID, historyResult{Address: addr, Records: records})
}
