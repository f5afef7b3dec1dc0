package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"lsdchain/core/events"
	lsderrors "lsdchain/core/errors"
	"lsdchain/core/genesis"
	"lsdchain/core/state"
	"lsdchain/core/types"
	"lsdchain/crypto"
	"lsdchain/native/bank"
	"lsdchain/native/common"
	"lsdchain/native/lstoken"
	"lsdchain/native/positions"
	"lsdchain/native/staking"
	"lsdchain/observability"
	"lsdchain/storage"
)

var (
	// ErrInvalidChainID is returned when a call was signed for another chain.
	ErrInvalidChainID = errors.New("core: invalid chain id")
	// ErrNonceMismatch is returned when a call nonce differs from the account nonce.
	ErrNonceMismatch = errors.New("core: nonce mismatch")
	// ErrUnknownCallType is returned for calls targeting no entry point.
	ErrUnknownCallType = errors.New("core: unknown call type")
	// ErrGenesisMissing is returned by queries issued before genesis.
	ErrGenesisMissing = errors.New("core: genesis not applied")
)

var nonceNamespace = crypto.ContractAddress("nonce")

// Options configures a Node.
type Options struct {
	ChainID            uint64
	MinimumStakePeriod int64
	Paused             bool
	Logger             *slog.Logger
	// Now overrides the clock handed to the orchestrator.
	Now func() int64
}

// Node is the host execution environment. It owns the state, executes one
// signed call at a time and publishes committed events to subscribers.
type Node struct {
	db      storage.Database
	manager *state.Manager
	chainID uint64
	lock    int64
	pauses  *common.Pauses
	nowFn   func() int64
	logger  *slog.Logger
	stateMu sync.RWMutex

	subsMu      sync.RWMutex
	subscribers []func(*types.Event)
}

// NewNode wires a node over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if opts.ChainID == 0 {
		return nil, fmt.Errorf("chain id must be non-zero")
	}
	lock := opts.MinimumStakePeriod
	if lock <= 0 {
		lock = staking.MinimumStakePeriod
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pauses := common.NewPauses()
	pauses.Set(common.ModuleStaking, opts.Paused)
	return &Node{
		db:      db,
		manager: state.NewManager(db),
		chainID: opts.ChainID,
		lock:    lock,
		pauses:  pauses,
		nowFn:   nowFn,
		logger:  logger.With(slog.String("component", "node")),
	}, nil
}

// ChainID returns the chain id calls must be signed for.
func (n *Node) ChainID() uint64 { return n.chainID }

// SetPaused toggles the pause flag of the stake and unstake entry points.
func (n *Node) SetPaused(paused bool) {
	n.pauses.Set(common.ModuleStaking, paused)
	n.logger.Info("staking pause toggled", slog.Bool("paused", paused))
}

// Subscribe registers fn to receive every committed event. Subscribers run
// while the call that produced the event still holds the state lock and must
// not query the node.
func (n *Node) Subscribe(fn func(*types.Event)) {
	if fn == nil {
		return
	}
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	n.subscribers = append(n.subscribers, fn)
}

func (n *Node) publish(evts []*types.Event) {
	n.subsMu.RLock()
	subs := append([]func(*types.Event){}, n.subscribers...)
	n.subsMu.RUnlock()
	for _, evt := range evts {
		observability.Events().RecordEvent(evt.Type)
		for _, fn := range subs {
			fn(evt)
		}
	}
}

func (n *Node) newEngine(backend state.Backend, emitter events.Emitter) *staking.Engine {
	engine := staking.NewEngine(StakingAddress)
	engine.SetState(backend)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(n.nowFn)
	engine.SetMinimumStakePeriod(n.lock)
	engine.SetPauses(n.pauses)
	engine.SetVault(func(kv state.KV) staking.Vault { return bank.New(kv) })
	return engine
}

// InitGenesis writes the genesis state when the database is empty. It reports
// whether genesis was applied by this call.
func (n *Node) InitGenesis(spec *genesis.GenesisSpec) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if spec.ChainID != n.chainID {
		return false, fmt.Errorf("%w: genesis %d, node %d", ErrInvalidChainID, spec.ChainID, n.chainID)
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	applied, err := genesis.Applied(n.manager)
	if err != nil {
		return false, err
	}
	if applied {
		recorded, _, err := genesis.ChainID(n.manager)
		if err != nil {
			return false, err
		}
		if recorded != n.chainID {
			return false, fmt.Errorf("%w: database holds chain %d", ErrInvalidChainID, recorded)
		}
		return false, state.EnsureSchemaVersion(n.manager)
	}

	buf := &events.Buffer{}
	tx := n.manager.Begin()
	defer tx.Discard()
	if err := genesis.Apply(tx, spec, StakingAddress, TokenAddress); err != nil {
		return false, err
	}
	if err := n.newEngine(tx, buf).Initialize(TokenAddress); err != nil {
		return false, fmt.Errorf("initialize staking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	n.logger.Info("genesis applied",
		slog.Int("allocations", len(spec.Alloc)),
		slog.String("token", spec.Token.Symbol),
	)
	n.publish(render(buf.Events(), nil, n.nowFn()))
	return true, nil
}

// SubmitCall verifies and executes a signed call. The nonce bump, both ledgers
// and the native movement commit together or not at all.
func (n *Node) SubmitCall(call *types.Call) (*types.CallResult, error) {
	if call == nil {
		return nil, fmt.Errorf("call must not be nil")
	}
	if call.ChainID != n.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidChainID, call.ChainID, n.chainID)
	}
	from, err := call.From()
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	hash, err := call.Hash()
	if err != nil {
		return nil, err
	}
	op := call.Type.String()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	result, amount, err := n.apply(call, from, hash)
	if err != nil {
		observability.Staking().RecordCall(op, outcome(err), 0)
		n.logger.Warn("call rejected",
			slog.String("op", op),
			slog.String("hash", hex.EncodeToString(hash)),
			slog.Any("error", err),
		)
		return nil, err
	}
	observability.Staking().RecordCall(op, "success", amount)
	if totals, err := readTotals(n.newEngine(n.manager, nil)); err == nil {
		observability.Staking().SetTotals(totals.TotalStaked, totals.TotalSupply)
	}
	n.logger.Info("call applied",
		slog.String("op", op),
		slog.String("hash", result.Hash),
		slog.Int("events", len(result.Events)),
	)
	n.publish(result.Events)
	return result, nil
}

func (n *Node) apply(call *types.Call, from [20]byte, hash []byte) (*types.CallResult, uint64, error) {
	tx := n.manager.Begin()
	defer tx.Discard()

	applied, err := genesis.Applied(tx)
	if err != nil {
		return nil, 0, err
	}
	if !applied {
		return nil, 0, ErrGenesisMissing
	}

	nonces := state.NewMap[[20]byte, uint64](tx, nonceNamespace, "nonce", state.AddressKey)
	nonce, _, err := nonces.Get(from)
	if err != nil {
		return nil, 0, err
	}
	if call.Nonce != nonce {
		return nil, 0, fmt.Errorf("%w: got %d, want %d", ErrNonceMismatch, call.Nonce, nonce)
	}

	buf := &events.Buffer{}
	engine := n.newEngine(tx, buf)
	caller := staking.Call{Caller: from, Value: call.Value}
	var amount uint64
	switch call.Type {
	case types.CallTypeStake:
		_, err = engine.Stake(caller)
		amount = call.Value
	case types.CallTypeUnstake:
		if call.Value != 0 {
			return nil, 0, fmt.Errorf("unstake does not accept native value")
		}
		_, err = engine.Unstake(caller, call.Amount)
		amount = call.Amount
	case types.CallTypeTransfer:
		if call.Value != 0 {
			return nil, 0, fmt.Errorf("transfer does not accept native value")
		}
		var to [20]byte
		to, err = call.Recipient()
		if err == nil {
			err = engine.Transfer(caller, to, call.Amount)
		}
		amount = call.Amount
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCallType, call.Type)
	}
	if err != nil {
		return nil, 0, err
	}
	if err := nonces.Put(from, nonce+1); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	hashHex := "0x" + hex.EncodeToString(hash)
	return &types.CallResult{Hash: hashHex, Events: render(buf.Events(), hash, n.nowFn())}, amount, nil
}

func render(evts []events.Event, hash []byte, now int64) []*types.Event {
	out := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		payload, ok := evt.(events.Renderable)
		if !ok {
			continue
		}
		rendered := payload.Event()
		if rendered == nil {
			continue
		}
		if rendered.Attributes == nil {
			rendered.Attributes = map[string]string{}
		}
		if len(hash) > 0 {
			rendered.Attributes["callHash"] = "0x" + hex.EncodeToString(hash)
		}
		rendered.Attributes["timestamp"] = strconv.FormatInt(now, 10)
		out = append(out, rendered)
	}
	return out
}

func outcome(err error) string {
	switch {
	case errors.Is(err, lsderrors.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, lsderrors.ErrOverflow):
		return "overflow"
	case errors.Is(err, lsderrors.ErrInsufficientStake):
		return "insufficient_stake"
	case errors.Is(err, lsderrors.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, lsderrors.ErrPositionNotFound):
		return "position_not_found"
	case errors.Is(err, lsderrors.ErrLockPeriodNotElapsed):
		return "lock_period"
	case errors.Is(err, lsderrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, lsderrors.ErrStakingPaused):
		return "paused"
	case errors.Is(err, lsderrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNonceMismatch):
		return "bad_nonce"
	default:
		return "error"
	}
}

// view runs fn under the read side of stateMu so it never observes a commit
// halfway through.
func (n *Node) view(fn func(kv state.KV) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.manager.View(fn)
}

// query is view for reads that go through the orchestrator.
func (n *Node) query(fn func(engine *staking.Engine) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return fn(n.newEngine(n.manager, nil))
}

// StakedAmount returns the owner's staked principal.
func (n *Node) StakedAmount(owner [20]byte) (uint64, error) {
	var amount uint64
	err := n.query(func(engine *staking.Engine) error {
		var err error
		amount, err = engine.StakedAmount(owner)
		return err
	})
	return amount, err
}

// StakedAt returns when the owner last staked.
func (n *Node) StakedAt(owner [20]byte) (int64, bool, error) {
	var (
		at int64
		ok bool
	)
	err := n.query(func(engine *staking.Engine) error {
		var err error
		at, ok, err = engine.StakedAt(owner)
		return err
	})
	return at, ok, err
}

// Position returns the query view of the owner's position.
func (n *Node) Position(owner [20]byte) (*types.Position, error) {
	var view *types.Position
	err := n.view(func(kv state.KV) error {
		pos, ok, err := positions.New(kv, StakingAddress).Get(owner)
		if err != nil {
			return err
		}
		view = &types.Position{Owner: crypto.FromBytes20(owner).String(), Amount: pos.Amount}
		if ok {
			at := int64(pos.StakedAt)
			view.StakedAt = &at
		}
		return nil
	})
	return view, err
}

// BalanceOf returns the owner's receipt balance.
func (n *Node) BalanceOf(owner [20]byte) (uint64, error) {
	var balance uint64
	err := n.view(func(kv state.KV) error {
		var err error
		balance, err = lstoken.New(kv, TokenAddress).BalanceOf(owner)
		return err
	})
	return balance, err
}

// NativeBalance returns the owner's native custody balance.
func (n *Node) NativeBalance(owner [20]byte) (uint64, error) {
	var balance uint64
	err := n.view(func(kv state.KV) error {
		var err error
		balance, err = bank.New(kv).Balance(owner)
		return err
	})
	return balance, err
}

// Nonce returns the nonce the next call from owner must carry.
func (n *Node) Nonce(owner [20]byte) (uint64, error) {
	var nonce uint64
	err := n.view(func(kv state.KV) error {
		var err error
		nonce, _, err = state.NewMap[[20]byte, uint64](kv, nonceNamespace, "nonce", state.AddressKey).Get(owner)
		return err
	})
	return nonce, err
}

// Totals returns the position total and token supply as of the same commit.
func (n *Node) Totals() (*types.Totals, error) {
	var totals *types.Totals
	err := n.query(func(engine *staking.Engine) error {
		var err error
		totals, err = readTotals(engine)
		return err
	})
	return totals, err
}

func readTotals(engine *staking.Engine) (*types.Totals, error) {
	totals, err := engine.Totals()
	if err != nil {
		return nil, err
	}
	return &types.Totals{TotalStaked: totals.TotalStaked, TotalSupply: totals.TotalSupply}, nil
}

// TokenInfo describes the receipt token.
func (n *Node) TokenInfo() (*types.TokenInfo, error) {
	var info *types.TokenInfo
	err := n.view(func(kv state.KV) error {
		ledger := lstoken.New(kv, TokenAddress)
		authority, ok, err := ledger.Authority()
		if err != nil {
			return err
		}
		if !ok {
			return ErrGenesisMissing
		}
		meta, err := ledger.Metadata()
		if err != nil {
			return err
		}
		supply, err := ledger.TotalSupply()
		if err != nil {
			return err
		}
		info = &types.TokenInfo{
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			Authority:   crypto.FromBytes20(authority).String(),
			TotalSupply: supply,
		}
		return nil
	})
	return info, err
}

// MinimumStakePeriod returns the lock applied after each stake, in seconds.
func (n *Node) MinimumStakePeriod() int64 { return n.lock }

// Close releases the database.
func (n *Node) Close() {
	n.db.Close()
}
