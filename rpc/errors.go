package rpc

import (
	"errors"
	"net/http"

	"lsdchain/core"
	lsderrors "lsdchain/core/errors"
)

const (
	codeZeroAmount          = -32030
	codeOverflow            = -32031
	codeInsufficientStake   = -32032
	codeInsufficientBalance = -32033
	codePositionNotFound    = -32034
	codeLockPeriod          = -32035
	codeAlreadyInitialized  = -32036
	codeUnauthorized        = -32037
	codePaused              = -32038
	codeInsufficientFunds   = -32039
	codeBadNonce            = -32040
)

var errorCodes = []struct {
	err  error
	code int
}{
	{lsderrors.ErrZeroAmount, codeZeroAmount},
	{lsderrors.ErrOverflow, codeOverflow},
	{lsderrors.ErrInsufficientStake, codeInsufficientStake},
	{lsderrors.ErrInsufficientBalance, codeInsufficientBalance},
	{lsderrors.ErrPositionNotFound, codePositionNotFound},
	{lsderrors.ErrLockPeriodNotElapsed, codeLockPeriod},
	{lsderrors.ErrAlreadyInitialized, codeAlreadyInitialized},
	{lsderrors.ErrUnauthorized, codeUnauthorized},
	{lsderrors.ErrStakingPaused, codePaused},
	{lsderrors.ErrInsufficientFunds, codeInsufficientFunds},
	{core.ErrNonceMismatch, codeBadNonce},
	{core.ErrInvalidChainID, codeInvalidParams},
	{core.ErrUnknownCallType, codeInvalidParams},
}

// writeCallError maps a node failure to its stable JSON-RPC code.
func writeCallError(w http.ResponseWriter, id interface{}, err error) {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			writeError(w, http.StatusOK, id, entry.code, entry.err.Error(), err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
}

// IsCode reports whether err is an RPC error carrying code.
func IsCode(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
