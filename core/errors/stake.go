package errors

import stderrors "errors"

// Failure taxonomy shared by the token ledger, the position ledger and the
// staking orchestrator. Every failure is terminal for the call that raised it.
var (
	ErrZeroAmount           = stderrors.New("lsd: amount must be greater than zero")
	ErrOverflow             = stderrors.New("lsd: arithmetic overflow")
	ErrInsufficientStake    = stderrors.New("lsd: insufficient stake")
	ErrInsufficientBalance  = stderrors.New("lsd: insufficient token balance")
	ErrPositionNotFound     = stderrors.New("lsd: position not found")
	ErrLockPeriodNotElapsed = stderrors.New("lsd: lock period not elapsed")
	ErrAlreadyInitialized   = stderrors.New("lsd: already initialized")
	ErrUnauthorized         = stderrors.New("lsd: unauthorized")
)

var (
	ErrNotInitialized    = stderrors.New("lsd: not initialized")
	ErrStakingPaused     = stderrors.New("stake: staking paused")
	ErrInsufficientFunds = stderrors.New("bank: insufficient funds")
)
