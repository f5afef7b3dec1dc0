package lstoken

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"lsdchain/core/events"
	lsderrors "lsdchain/core/errors"
	"lsdchain/core/state"
	"lsdchain/storage"
)

var (
	contract  = [20]byte{0x70}
	authority = [20]byte{0x5a}
	alice     = [20]byte{0xa1}
	bob       = [20]byte{0xb0}
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger := New(state.NewManager(storage.NewMemDB()), contract)
	require.NoError(t, ledger.Initialize(authority, Metadata{Name: "Liquid Staked Token", Symbol: "lst", Decimals: 18}))
	return ledger
}

func TestInitializeOnce(t *testing.T) {
	ledger := newLedger(t)
	require.ErrorIs(t, ledger.Initialize(alice, Metadata{}), lsderrors.ErrAlreadyInitialized)

	got, ok, err := ledger.Authority()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, authority, got)

	meta, err := ledger.Metadata()
	require.NoError(t, err)
	require.Equal(t, "LST", meta.Symbol)
	require.Equal(t, uint8(18), meta.Decimals)
}

func TestMintAndBurnRequireAuthority(t *testing.T) {
	ledger := newLedger(t)

	require.ErrorIs(t, ledger.Mint(alice, alice, 10), lsderrors.ErrUnauthorized)
	require.NoError(t, ledger.Mint(authority, alice, 10))
	require.ErrorIs(t, ledger.Burn(alice, alice, 10), lsderrors.ErrUnauthorized)

	balance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)
}

func TestUninitializedLedgerRejectsMint(t *testing.T) {
	ledger := New(state.NewManager(storage.NewMemDB()), contract)
	require.ErrorIs(t, ledger.Mint(authority, alice, 1), lsderrors.ErrUnauthorized)
}

func TestMintOverflow(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint(authority, alice, math.MaxUint64))
	require.ErrorIs(t, ledger.Mint(authority, bob, 1), lsderrors.ErrOverflow)

	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), supply)
}

func TestBurnInsufficientBalance(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint(authority, alice, 5))
	require.ErrorIs(t, ledger.Burn(authority, alice, 6), lsderrors.ErrInsufficientBalance)
	require.NoError(t, ledger.Burn(authority, alice, 5))

	balance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Zero(t, balance)
	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Zero(t, supply)
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		from    [20]byte
		to      [20]byte
		amount  uint64
		wantErr error
		wantA   uint64
		wantB   uint64
	}{
		{name: "moves balance", from: alice, to: bob, amount: 40, wantA: 60, wantB: 40},
		{name: "whole balance", from: alice, to: bob, amount: 100, wantA: 0, wantB: 100},
		{name: "zero is a no-op", from: alice, to: bob, amount: 0, wantA: 100, wantB: 0},
		{name: "self transfer", from: alice, to: alice, amount: 100, wantA: 100, wantB: 0},
		{name: "short", from: alice, to: bob, amount: 101, wantErr: lsderrors.ErrInsufficientBalance, wantA: 100, wantB: 0},
		{name: "unknown sender", from: bob, to: alice, amount: 1, wantErr: lsderrors.ErrInsufficientBalance, wantA: 100, wantB: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newLedger(t)
			require.NoError(t, ledger.Mint(authority, alice, 100))

			err := ledger.Transfer(tc.from, tc.to, tc.amount)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			a, err := ledger.BalanceOf(alice)
			require.NoError(t, err)
			b, err := ledger.BalanceOf(bob)
			require.NoError(t, err)
			require.Equal(t, tc.wantA, a)
			require.Equal(t, tc.wantB, b)

			supply, err := ledger.TotalSupply()
			require.NoError(t, err)
			require.Equal(t, uint64(100), supply)
		})
	}
}

func TestLedgerEmitsSupplyAndTransferEvents(t *testing.T) {
	ledger := newLedger(t)
	buf := &events.Buffer{}
	ledger.SetEmitter(buf)

	require.NoError(t, ledger.Mint(authority, alice, 10))
	require.NoError(t, ledger.Transfer(alice, bob, 4))
	require.NoError(t, ledger.Burn(authority, bob, 4))

	got := buf.Events()
	require.Len(t, got, 3)
	mint := got[0].(events.TokenSupply)
	require.Equal(t, events.SupplyReasonMint, mint.Reason)
	require.Equal(t, uint64(10), mint.Total)
	require.Equal(t, events.TypeTransfer, got[1].EventType())
	burn := got[2].(events.TokenSupply)
	require.Equal(t, events.SupplyReasonBurn, burn.Reason)
	require.Equal(t, uint64(6), burn.Total)
}
