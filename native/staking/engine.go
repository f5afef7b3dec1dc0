package staking

import (
	"errors"
	"fmt"
	"time"

	"lsdchain/core/events"
	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
	"lsdchain/native/common"
	"lsdchain/native/lstoken"
	"lsdchain/native/positions"
)

// MinimumStakePeriod is the lock applied to a position after each stake, in
// seconds.
const MinimumStakePeriod int64 = 86400

var (
	errNilState = errors.New("staking engine: state not configured")
	errNilVault = errors.New("staking engine: vault not configured")
)

// Vault moves native value between identities. It is the host transfer
// primitive and must write through the KV it was built for so a failed call
// rolls the movement back with the ledgers.
type Vault interface {
	Transfer(from, to [20]byte, amount uint64) error
}

// VaultFactory binds a Vault to a unit of work.
type VaultFactory func(kv state.KV) Vault

// Call carries the host-supplied context of an entry point invocation.
type Call struct {
	Caller [20]byte
	// Value is the native amount forwarded with the call.
	Value uint64
}

// Totals reports both aggregates of the protocol.
type Totals struct {
	TotalStaked uint64
	TotalSupply uint64
}

// Engine is the staking orchestrator. It owns the position ledger, drives the
// token ledger as its mint/burn authority and moves native value through the
// vault. Every entry point runs in its own unit of work.
type Engine struct {
	address [20]byte
	state   state.Backend
	emitter events.Emitter
	nowFn   func() int64
	lock    int64
	vault   VaultFactory
	pauses  common.PauseView
}

// NewEngine constructs an orchestrator living at address.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		lock: MinimumStakePeriod,
	}
}

// Address returns the identity that holds staked native value and mints
// receipts.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(backend state.Backend) { e.state = backend }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetMinimumStakePeriod overrides the lock period in seconds.
func (e *Engine) SetMinimumStakePeriod(seconds int64) {
	if seconds < 0 {
		seconds = 0
	}
	e.lock = seconds
}

// MinimumStakePeriod returns the configured lock period in seconds.
func (e *Engine) MinimumStakePeriod() int64 { return e.lock }

// SetVault configures the native transfer primitive.
func (e *Engine) SetVault(factory VaultFactory) { e.vault = factory }

// SetPauses configures the pause view consulted by stake and unstake.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) positions(kv state.KV) *positions.Ledger {
	return positions.New(kv, e.address)
}

func (e *Engine) tokenAddress(kv state.KV) ([20]byte, error) {
	token, ok, err := state.NewSlot[[20]byte](kv, e.address, "token").Get()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, lsderrors.ErrNotInitialized
	}
	return token, nil
}

func (e *Engine) token(kv state.KV, emitter events.Emitter) (*lstoken.Ledger, error) {
	addr, err := e.tokenAddress(kv)
	if err != nil {
		return nil, err
	}
	ledger := lstoken.New(kv, addr)
	ledger.SetEmitter(emitter)
	return ledger, nil
}

// run executes fn in a unit of work and releases the buffered events only
// after the commit succeeded.
func (e *Engine) run(fn func(tx *state.Tx, emitter events.Emitter) error) error {
	if e.state == nil {
		return errNilState
	}
	buf := &events.Buffer{}
	tx := e.state.Begin()
	defer tx.Discard()
	if err := fn(tx, buf); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	buf.Flush(e.emitter)
	return nil
}

func (e *Engine) view(fn func(kv state.KV) error) error {
	if e.state == nil {
		return errNilState
	}
	tx := e.state.Begin()
	defer tx.Discard()
	return fn(tx)
}

func (e *Engine) guard() error {
	if err := common.Guard(e.pauses, common.ModuleStaking); err != nil {
		return lsderrors.ErrStakingPaused
	}
	return nil
}

// Initialize binds the token ledger the orchestrator mints into. It succeeds
// exactly once.
func (e *Engine) Initialize(token [20]byte) error {
	return e.run(func(tx *state.Tx, emitter events.Emitter) error {
		slot := state.NewSlot[[20]byte](tx, e.address, "token")
		ok, err := slot.Has()
		if err != nil {
			return err
		}
		if ok {
			return lsderrors.ErrAlreadyInitialized
		}
		if err := slot.Put(token); err != nil {
			return err
		}
		emitter.Emit(events.Initialized{Token: token, Authority: e.address})
		return nil
	})
}

// TokenAddress returns the bound token ledger.
func (e *Engine) TokenAddress() ([20]byte, error) {
	var token [20]byte
	err := e.view(func(kv state.KV) error {
		var err error
		token, err = e.tokenAddress(kv)
		return err
	})
	return token, err
}

// Stake locks the forwarded native value into the caller's position and mints
// the same amount of receipts to the caller. It returns the new position
// amount.
func (e *Engine) Stake(call Call) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if e.vault == nil {
		return 0, errNilVault
	}
	if call.Value == 0 {
		return 0, lsderrors.ErrZeroAmount
	}
	var position uint64
	err := e.run(func(tx *state.Tx, emitter events.Emitter) error {
		token, err := e.token(tx, emitter)
		if err != nil {
			return err
		}
		now := e.nowFn()
		pos, err := e.positions(tx).RecordStake(call.Caller, call.Value, now)
		if err != nil {
			return err
		}
		if err := token.Mint(e.address, call.Caller, call.Value); err != nil {
			return fmt.Errorf("stake: mint: %w", err)
		}
		if err := e.vault(tx).Transfer(call.Caller, e.address, call.Value); err != nil {
			return fmt.Errorf("stake: deposit: %w", err)
		}
		emitter.Emit(events.Staked{Account: call.Caller, Amount: call.Value, Position: pos.Amount, StakedAt: now})
		position = pos.Amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Unstake burns amount of the caller's receipts and releases the same native
// amount once the lock period since the last stake has elapsed. It returns the
// remaining position amount.
func (e *Engine) Unstake(call Call, amount uint64) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if e.vault == nil {
		return 0, errNilVault
	}
	if amount == 0 {
		return 0, lsderrors.ErrZeroAmount
	}
	var remaining uint64
	err := e.run(func(tx *state.Tx, emitter events.Emitter) error {
		token, err := e.token(tx, emitter)
		if err != nil {
			return err
		}
		ledger := e.positions(tx)
		pos, ok, err := ledger.Get(call.Caller)
		if err != nil {
			return err
		}
		if !ok {
			return lsderrors.ErrPositionNotFound
		}
		if amount > pos.Amount {
			return lsderrors.ErrInsufficientStake
		}
		if e.nowFn()-int64(pos.StakedAt) < e.lock {
			return lsderrors.ErrLockPeriodNotElapsed
		}
		updated, err := ledger.RecordUnstake(call.Caller, amount)
		if err != nil {
			return err
		}
		if err := token.Burn(e.address, call.Caller, amount); err != nil {
			return fmt.Errorf("unstake: burn: %w", err)
		}
		if err := e.vault(tx).Transfer(e.address, call.Caller, amount); err != nil {
			return fmt.Errorf("unstake: release: %w", err)
		}
		emitter.Emit(events.Unstaked{Account: call.Caller, Amount: amount, Remaining: updated.Amount})
		remaining = updated.Amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Transfer moves receipts between holders through the bound token ledger.
func (e *Engine) Transfer(call Call, to [20]byte, amount uint64) error {
	return e.run(func(tx *state.Tx, emitter events.Emitter) error {
		token, err := e.token(tx, emitter)
		if err != nil {
			return err
		}
		return token.Transfer(call.Caller, to, amount)
	})
}

// StakedAmount returns the owner's staked principal.
func (e *Engine) StakedAmount(owner [20]byte) (uint64, error) {
	var amount uint64
	err := e.view(func(kv state.KV) error {
		var err error
		amount, err = e.positions(kv).StakedAmount(owner)
		return err
	})
	return amount, err
}

// StakedAt returns when the owner last staked.
func (e *Engine) StakedAt(owner [20]byte) (int64, bool, error) {
	var (
		at int64
		ok bool
	)
	err := e.view(func(kv state.KV) error {
		var err error
		at, ok, err = e.positions(kv).StakedAt(owner)
		return err
	})
	return at, ok, err
}

// BalanceOf returns the owner's receipt balance.
func (e *Engine) BalanceOf(owner [20]byte) (uint64, error) {
	var balance uint64
	err := e.view(func(kv state.KV) error {
		token, err := e.token(kv, nil)
		if err != nil {
			return err
		}
		balance, err = token.BalanceOf(owner)
		return err
	})
	return balance, err
}

// Totals reads the position total and the token supply through one unit of
// work. The pair is consistent only when no commit runs concurrently; the host
// serializes queries against calls.
func (e *Engine) Totals() (Totals, error) {
	var totals Totals
	err := e.view(func(kv state.KV) error {
		staked, err := e.positions(kv).TotalStaked()
		if err != nil {
			return err
		}
		token, err := e.token(kv, nil)
		if err != nil {
			return err
		}
		supply, err := token.TotalSupply()
		if err != nil {
			return err
		}
		totals = Totals{TotalStaked: staked, TotalSupply: supply}
		return nil
	})
	return totals, err
}
