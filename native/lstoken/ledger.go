package lstoken

import (
	"math"
	"strings"

	"lsdchain/core/events"
	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
)

// Metadata describes the receipt token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// binding is persisted once at initialization.
type binding struct {
	Authority [20]byte
	Name      string
	Symbol    string
	Decimals  uint8
}

// Ledger is the derivative token: holder balances plus total supply. Mint and
// burn are restricted to the authority recorded at initialization.
type Ledger struct {
	balances *state.Map[[20]byte, uint64]
	supply   *state.Slot[uint64]
	binding  *state.Slot[binding]
	emitter  events.Emitter
}

// New binds the ledger to the namespace of contract inside kv.
func New(kv state.KV, contract [20]byte) *Ledger {
	return &Ledger{
		balances: state.NewMap[[20]byte, uint64](kv, contract, "balance", state.AddressKey),
		supply:   state.NewSlot[uint64](kv, contract, "total_supply"),
		binding:  state.NewSlot[binding](kv, contract, "binding"),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures where supply and transfer events are sent.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Initialize records the mint/burn authority and the token metadata.
func (l *Ledger) Initialize(authority [20]byte, meta Metadata) error {
	ok, err := l.binding.Has()
	if err != nil {
		return err
	}
	if ok {
		return lsderrors.ErrAlreadyInitialized
	}
	return l.binding.Put(binding{
		Authority: authority,
		Name:      strings.TrimSpace(meta.Name),
		Symbol:    strings.ToUpper(strings.TrimSpace(meta.Symbol)),
		Decimals:  meta.Decimals,
	})
}

// Authority returns the identity allowed to mint and burn.
func (l *Ledger) Authority() ([20]byte, bool, error) {
	b, ok, err := l.binding.Get()
	return b.Authority, ok, err
}

// Metadata returns the token description recorded at initialization.
func (l *Ledger) Metadata() (Metadata, error) {
	b, _, err := l.binding.Get()
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Name: b.Name, Symbol: b.Symbol, Decimals: b.Decimals}, nil
}

func (l *Ledger) authorize(caller [20]byte) (binding, error) {
	b, ok, err := l.binding.Get()
	if err != nil {
		return binding{}, err
	}
	if !ok || b.Authority != caller {
		return binding{}, lsderrors.ErrUnauthorized
	}
	return b, nil
}

// Mint credits amount to the holder and grows the supply.
func (l *Ledger) Mint(caller, to [20]byte, amount uint64) error {
	b, err := l.authorize(caller)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if supply > math.MaxUint64-amount || balance > math.MaxUint64-amount {
		return lsderrors.ErrOverflow
	}
	if err := l.balances.Put(to, balance+amount); err != nil {
		return err
	}
	if err := l.supply.Put(supply + amount); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:   b.Symbol,
		Account: to,
		Total:   supply + amount,
		Delta:   amount,
		Reason:  events.SupplyReasonMint,
	})
	return nil
}

// Burn debits amount from the holder and shrinks the supply.
func (l *Ledger) Burn(caller, from [20]byte, amount uint64) error {
	b, err := l.authorize(caller)
	if err != nil {
		return err
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance < amount {
		return lsderrors.ErrInsufficientBalance
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if supply < amount {
		return lsderrors.ErrInsufficientBalance
	}
	if err := l.balances.Put(from, balance-amount); err != nil {
		return err
	}
	if err := l.supply.Put(supply - amount); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:   b.Symbol,
		Account: from,
		Total:   supply - amount,
		Delta:   amount,
		Reason:  events.SupplyReasonBurn,
	})
	return nil
}

// Transfer moves amount between holders. Supply is unchanged.
func (l *Ledger) Transfer(from, to [20]byte, amount uint64) error {
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return lsderrors.ErrInsufficientBalance
	}
	if amount == 0 || from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if toBalance > math.MaxUint64-amount {
		return lsderrors.ErrOverflow
	}
	if err := l.balances.Put(from, fromBalance-amount); err != nil {
		return err
	}
	if err := l.balances.Put(to, toBalance+amount); err != nil {
		return err
	}
	meta, err := l.Metadata()
	if err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: meta.Symbol, From: from, To: to, Amount: amount})
	return nil
}

// BalanceOf returns the holder balance, zero for unknown holders.
func (l *Ledger) BalanceOf(owner [20]byte) (uint64, error) {
	balance, _, err := l.balances.Get(owner)
	return balance, err
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() (uint64, error) {
	supply, _, err := l.supply.Get()
	return supply, err
}
