package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lsdchain/core/events"
	"lsdchain/crypto"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	idx, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

var (
	alice = [20]byte{0xa1}
	bob   = [20]byte{0xb0}
	carol = [20]byte{0xc0}
)

func TestHistoryNewestFirst(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	staked := events.Staked{Account: alice, Amount: 100, Position: 100, StakedAt: 10}.Event()
	staked.Attributes["timestamp"] = "10"
	staked.Attributes["callHash"] = "0xabc"
	require.NoError(t, idx.Record(ctx, staked))

	transfer := events.Transfer{Asset: "LST", From: alice, To: bob, Amount: 40}.Event()
	transfer.Attributes["timestamp"] = "20"
	require.NoError(t, idx.Record(ctx, transfer))

	unstaked := events.Unstaked{Account: alice, Amount: 60, Remaining: 40}.Event()
	unstaked.Attributes["timestamp"] = "30"
	require.NoError(t, idx.Record(ctx, unstaked))

	records, err := idx.History(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, events.TypeUnstaked, records[0].Type)
	require.Equal(t, "40", records[0].Total)
	require.Equal(t, events.TypeTransfer, records[1].Type)
	require.Equal(t, crypto.FromBytes20(bob).String(), records[1].Counterparty)
	require.Equal(t, events.TypeStaked, records[2].Type)
	require.Equal(t, "0xabc", records[2].CallHash)
	require.Equal(t, int64(10), records[2].Timestamp)

	bobHistory, err := idx.History(ctx, bob, 10)
	require.NoError(t, err)
	require.Len(t, bobHistory, 1)

	none, err := idx.History(ctx, carol, 10)
	require.NoError(t, err)
	require.Empty(t, none)

	limited, err := idx.History(ctx, alice, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, events.TypeUnstaked, limited[0].Type)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	idx, err := Open(path, nil)
	require.NoError(t, err)
	idx.Handle(events.Staked{Account: alice, Amount: 1, Position: 1}.Event())
	require.NoError(t, idx.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	reopened.Handle(events.Staked{Account: alice, Amount: 2, Position: 3}.Event())

	records, err := reopened.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(2), records[0].Seq)
	require.Equal(t, "2", records[0].Amount)
}

func TestSupplyEventsIndexDelta(t *testing.T) {
	idx := newTestIndexer(t)
	evt := events.TokenSupply{Token: "LST", Account: alice, Total: 500, Delta: 200, Reason: events.SupplyReasonMint}.Event()
	require.NoError(t, idx.Record(context.Background(), evt))

	records, err := idx.History(context.Background(), alice, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "200", records[0].Amount)
	require.Equal(t, "500", records[0].Total)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrDSNRequired)
}

func TestHandleWithoutDatabaseDoesNotPanic(t *testing.T) {
	evt := events.Staked{Account: alice, Amount: 1, Position: 1, StakedAt: 1}.Event()

	var missing *Indexer
	require.NotPanics(t, func() { missing.Handle(evt) })
	require.NotPanics(t, func() { (&Indexer{}).Handle(evt) })
	require.NotPanics(t, func() { newTestIndexer(t).Handle(nil) })
}
