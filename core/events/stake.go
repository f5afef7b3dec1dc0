package events

import (
	"strconv"

	"lsdchain/core/types"
)

const (
	// TypeStaked is emitted when native value is locked and receipts are minted.
	TypeStaked = "lsd.staked"
	// TypeUnstaked is emitted when receipts are burned and native value released.
	TypeUnstaked = "lsd.unstaked"
	// TypeInitialized is emitted once when the orchestrator binds its token ledger.
	TypeInitialized = "lsd.initialized"
)

// Staked captures a deposit into a stake position.
type Staked struct {
	Account  [20]byte
	Amount   uint64
	Position uint64
	StakedAt int64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{Type: TypeStaked, Attributes: map[string]string{
		"addr":     formatAddress(e.Account),
		"amount":   formatAmount(e.Amount),
		"position": formatAmount(e.Position),
		"stakedAt": strconv.FormatInt(e.StakedAt, 10),
	}}
}

// Unstaked captures a withdrawal from a stake position.
type Unstaked struct {
	Account   [20]byte
	Amount    uint64
	Remaining uint64
}

// EventType satisfies the Event interface.
func (Unstaked) EventType() string { return TypeUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e Unstaked) Event() *types.Event {
	return &types.Event{Type: TypeUnstaked, Attributes: map[string]string{
		"addr":      formatAddress(e.Account),
		"amount":    formatAmount(e.Amount),
		"remaining": formatAmount(e.Remaining),
	}}
}

// Initialized records the one-time binding of the token ledger.
type Initialized struct {
	Token     [20]byte
	Authority [20]byte
}

func (Initialized) EventType() string { return TypeInitialized }

func (e Initialized) Event() *types.Event {
	return &types.Event{Type: TypeInitialized, Attributes: map[string]string{
		"token":     formatAddress(e.Token),
		"authority": formatAddress(e.Authority),
	}}
}
