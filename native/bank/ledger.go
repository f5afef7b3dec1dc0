package bank

import (
	"math"

	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
	"lsdchain/crypto"
)

// Address is the namespace holding native balances.
var Address = crypto.ContractAddress("bank")

// Ledger holds native-asset custody: account balances and the amount issued at
// genesis. Contracts hold native value under their own identity.
type Ledger struct {
	balances *state.Map[[20]byte, uint64]
	issued   *state.Slot[uint64]
}

// New binds the custody ledger to kv.
func New(kv state.KV) *Ledger {
	return &Ledger{
		balances: state.NewMap[[20]byte, uint64](kv, Address, "balance", state.AddressKey),
		issued:   state.NewSlot[uint64](kv, Address, "issued"),
	}
}

// Credit issues new native value to addr.
func (l *Ledger) Credit(addr [20]byte, amount uint64) error {
	issued, _, err := l.issued.Get()
	if err != nil {
		return err
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	if issued > math.MaxUint64-amount || balance > math.MaxUint64-amount {
		return lsderrors.ErrOverflow
	}
	if err := l.balances.Put(addr, balance+amount); err != nil {
		return err
	}
	return l.issued.Put(issued + amount)
}

// Transfer moves native value between identities.
func (l *Ledger) Transfer(from, to [20]byte, amount uint64) error {
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return lsderrors.ErrInsufficientFunds
	}
	if amount == 0 || from == to {
		return nil
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	if toBalance > math.MaxUint64-amount {
		return lsderrors.ErrOverflow
	}
	if err := l.balances.Put(from, fromBalance-amount); err != nil {
		return err
	}
	return l.balances.Put(to, toBalance+amount)
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr [20]byte) (uint64, error) {
	balance, _, err := l.balances.Get(addr)
	return balance, err
}

// TotalIssued returns the native value created at genesis.
func (l *Ledger) TotalIssued() (uint64, error) {
	issued, _, err := l.issued.Get()
	return issued, err
}
