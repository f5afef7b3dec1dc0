package bank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
	"lsdchain/storage"
)

var (
	alice = [20]byte{0xa1}
	bob   = [20]byte{0xb0}
)

func TestCreditAndTransfer(t *testing.T) {
	ledger := New(state.NewManager(storage.NewMemDB()))

	require.NoError(t, ledger.Credit(alice, 1000))
	require.NoError(t, ledger.Transfer(alice, bob, 400))
	require.ErrorIs(t, ledger.Transfer(alice, bob, 601), lsderrors.ErrInsufficientFunds)

	a, err := ledger.Balance(alice)
	require.NoError(t, err)
	b, err := ledger.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(600), a)
	require.Equal(t, uint64(400), b)

	issued, err := ledger.TotalIssued()
	require.NoError(t, err)
	require.Equal(t, a+b, issued)
}

func TestCreditOverflow(t *testing.T) {
	ledger := New(state.NewManager(storage.NewMemDB()))
	require.NoError(t, ledger.Credit(alice, math.MaxUint64))
	require.ErrorIs(t, ledger.Credit(bob, 1), lsderrors.ErrOverflow)
}

func TestSelfAndZeroTransfers(t *testing.T) {
	ledger := New(state.NewManager(storage.NewMemDB()))
	require.NoError(t, ledger.Credit(alice, 10))
	require.NoError(t, ledger.Transfer(alice, alice, 10))
	require.NoError(t, ledger.Transfer(bob, alice, 0))

	a, err := ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), a)
}
