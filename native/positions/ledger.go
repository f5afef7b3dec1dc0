package positions

import (
	"fmt"
	"math"

	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
)

// Position is the persisted stake record of one participant. Positions are
// never deleted; a fully withdrawn position stays queryable with Amount == 0.
type Position struct {
	Amount   uint64
	StakedAt uint64
}

// Ledger tracks per-participant staked principal and the protocol-wide total.
// It holds no authority checks; only the staking orchestrator writes to it.
type Ledger struct {
	positions *state.Map[[20]byte, Position]
	total     *state.Slot[uint64]
}

// New binds the ledger to the namespace of contract inside kv.
func New(kv state.KV, contract [20]byte) *Ledger {
	return &Ledger{
		positions: state.NewMap[[20]byte, Position](kv, contract, "position", state.AddressKey),
		total:     state.NewSlot[uint64](kv, contract, "total_staked"),
	}
}

// RecordStake increases the owner's position by amount and resets its stake
// timestamp to now. A zero amount is accepted and only refreshes the timestamp.
func (l *Ledger) RecordStake(owner [20]byte, amount uint64, now int64) (Position, error) {
	if now < 0 {
		return Position{}, fmt.Errorf("positions: negative timestamp %d", now)
	}
	pos, _, err := l.positions.Get(owner)
	if err != nil {
		return Position{}, err
	}
	total, err := l.TotalStaked()
	if err != nil {
		return Position{}, err
	}
	if pos.Amount > math.MaxUint64-amount || total > math.MaxUint64-amount {
		return Position{}, lsderrors.ErrOverflow
	}
	pos.Amount += amount
	pos.StakedAt = uint64(now)
	if err := l.positions.Put(owner, pos); err != nil {
		return Position{}, err
	}
	if err := l.total.Put(total + amount); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// RecordUnstake decreases the owner's position and the total. The stake
// timestamp is left untouched.
func (l *Ledger) RecordUnstake(owner [20]byte, amount uint64) (Position, error) {
	pos, ok, err := l.positions.Get(owner)
	if err != nil {
		return Position{}, err
	}
	if !ok {
		return Position{}, lsderrors.ErrPositionNotFound
	}
	if amount > pos.Amount {
		return Position{}, lsderrors.ErrInsufficientStake
	}
	total, err := l.TotalStaked()
	if err != nil {
		return Position{}, err
	}
	if amount > total {
		return Position{}, fmt.Errorf("positions: total staked %d below unstake amount %d", total, amount)
	}
	pos.Amount -= amount
	if err := l.positions.Put(owner, pos); err != nil {
		return Position{}, err
	}
	if err := l.total.Put(total - amount); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// Get returns the owner's position and whether one was ever recorded.
func (l *Ledger) Get(owner [20]byte) (Position, bool, error) {
	return l.positions.Get(owner)
}

// StakedAmount returns the staked principal, zero when no position exists.
func (l *Ledger) StakedAmount(owner [20]byte) (uint64, error) {
	pos, _, err := l.positions.Get(owner)
	if err != nil {
		return 0, err
	}
	return pos.Amount, nil
}

// StakedAt returns the time of the most recent stake into the position.
func (l *Ledger) StakedAt(owner [20]byte) (int64, bool, error) {
	pos, ok, err := l.positions.Get(owner)
	if err != nil || !ok {
		return 0, false, err
	}
	return int64(pos.StakedAt), true, nil
}

// TotalStaked returns the sum of all position amounts.
func (l *Ledger) TotalStaked() (uint64, error) {
	total, _, err := l.total.Get()
	return total, err
}
