package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	lsderrors "lsdchain/core/errors"
	"lsdchain/core/events"
	"lsdchain/core/genesis"
	"lsdchain/core/types"
	"lsdchain/crypto"
	"lsdchain/native/staking"
	"lsdchain/storage"
)

const testChainID = 7

type testAccount struct {
	key   *crypto.PrivateKey
	addr  [20]byte
	nonce uint64
}

func newAccount(t *testing.T) *testAccount {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &testAccount{key: key, addr: key.PubKey().Address().Bytes20()}
}

func (a *testAccount) call(t *testing.T, ct types.CallType, value, amount uint64, to *[20]byte) *types.Call {
	t.Helper()
	call := &types.Call{ChainID: testChainID, Type: ct, Nonce: a.nonce, Value: value, Amount: amount}
	if to != nil {
		call.To = append([]byte(nil), to[:]...)
	}
	require.NoError(t, call.Sign(a.key.PrivateKey))
	return call
}

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

func newTestNode(t *testing.T, db storage.Database, accounts ...*testAccount) (*Node, *testClock) {
	t.Helper()
	clock := &testClock{now: 1_700_000_000}
	node, err := NewNode(db, Options{ChainID: testChainID, Now: clock.Now})
	require.NoError(t, err)

	spec := &genesis.GenesisSpec{
		ChainID: testChainID,
		Token:   genesis.TokenSpec{Name: "Liquid Staked Token", Symbol: "LST", Decimals: 18},
	}
	for _, acct := range accounts {
		spec.Alloc = append(spec.Alloc, genesis.AllocSpec{Address: crypto.FromBytes20(acct.addr).String(), Balance: 1_000_000})
	}
	applied, err := node.InitGenesis(spec)
	require.NoError(t, err)
	require.True(t, applied)
	return node, clock
}

func submit(t *testing.T, node *Node, acct *testAccount, call *types.Call) (*types.CallResult, error) {
	t.Helper()
	result, err := node.SubmitCall(call)
	if err == nil {
		acct.nonce++
	}
	return result, err
}

func requireTotalsEqual(t *testing.T, node *Node) {
	t.Helper()
	totals, err := node.Totals()
	require.NoError(t, err)
	require.Equal(t, totals.TotalStaked, totals.TotalSupply)
	custody, err := node.NativeBalance(StakingAddress)
	require.NoError(t, err)
	require.Equal(t, totals.TotalStaked, custody)
}

func TestNodeStakeUnstakeFlow(t *testing.T) {
	alice := newAccount(t)
	db, err := storage.NewMemLevelDB()
	require.NoError(t, err)
	node, clock := newTestNode(t, db, alice)
	defer node.Close()

	var seen []*types.Event
	node.Subscribe(func(evt *types.Event) { seen = append(seen, evt) })

	result, err := submit(t, node, alice, alice.call(t, types.CallTypeStake, 100_000, 0, nil))
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)
	require.Len(t, result.Events, 2)
	require.Equal(t, events.TypeStaked, result.Events[1].Type)
	require.Equal(t, result.Hash, result.Events[1].Attributes["callHash"])
	require.Len(t, seen, 2)

	staked, err := node.StakedAmount(alice.addr)
	require.NoError(t, err)
	balance, err := node.BalanceOf(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), staked)
	require.Equal(t, staked, balance)
	requireTotalsEqual(t, node)

	stakedAt, ok, err := node.StakedAt(alice.addr)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = submit(t, node, alice, alice.call(t, types.CallTypeUnstake, 0, 50_000, nil))
	require.ErrorIs(t, err, lsderrors.ErrLockPeriodNotElapsed)

	clock.Advance(staking.MinimumStakePeriod)
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeUnstake, 0, 50_000, nil))
	require.NoError(t, err)

	pos, err := node.Position(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(50_000), pos.Amount)
	require.NotNil(t, pos.StakedAt)
	require.Equal(t, stakedAt, *pos.StakedAt)

	native, err := node.NativeBalance(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(950_000), native)
	requireTotalsEqual(t, node)

	nonce, err := node.Nonce(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)
}

func TestNodeRejectedCallLeavesState(t *testing.T) {
	alice := newAccount(t)
	node, _ := newTestNode(t, storage.NewMemDB(), alice)

	_, err := submit(t, node, alice, alice.call(t, types.CallTypeStake, 0, 0, nil))
	require.ErrorIs(t, err, lsderrors.ErrZeroAmount)

	nonce, err := node.Nonce(alice.addr)
	require.NoError(t, err)
	require.Zero(t, nonce, "rejected calls do not consume the nonce")

	pos, err := node.Position(alice.addr)
	require.NoError(t, err)
	require.Zero(t, pos.Amount)
	require.Nil(t, pos.StakedAt)
}

func TestNodeVerifiesEnvelope(t *testing.T) {
	alice := newAccount(t)
	node, _ := newTestNode(t, storage.NewMemDB(), alice)

	call := alice.call(t, types.CallTypeStake, 10, 0, nil)
	call.ChainID = testChainID + 1
	_, err := node.SubmitCall(call)
	require.ErrorIs(t, err, ErrInvalidChainID)

	alice.nonce = 5
	_, err = node.SubmitCall(alice.call(t, types.CallTypeStake, 10, 0, nil))
	require.ErrorIs(t, err, ErrNonceMismatch)
	alice.nonce = 0

	replay := alice.call(t, types.CallTypeStake, 10, 0, nil)
	_, err = submit(t, node, alice, replay)
	require.NoError(t, err)
	_, err = node.SubmitCall(replay)
	require.ErrorIs(t, err, ErrNonceMismatch)

	_, err = node.SubmitCall(&types.Call{ChainID: testChainID, Type: types.CallTypeStake, Value: 1})
	require.Error(t, err)

	_, err = submit(t, node, alice, alice.call(t, types.CallType(9), 0, 0, nil))
	require.ErrorIs(t, err, ErrUnknownCallType)
}

func TestNodeFailedBurnRollsBackWholeCall(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	node, clock := newTestNode(t, storage.NewMemDB(), alice, bob)

	_, err := submit(t, node, alice, alice.call(t, types.CallTypeStake, 100, 0, nil))
	require.NoError(t, err)
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeTransfer, 0, 60, &bob.addr))
	require.NoError(t, err)
	clock.Advance(staking.MinimumStakePeriod)

	_, err = submit(t, node, alice, alice.call(t, types.CallTypeUnstake, 0, 100, nil))
	require.ErrorIs(t, err, lsderrors.ErrInsufficientBalance)

	staked, err := node.StakedAmount(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), staked)
	nonce, err := node.Nonce(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)
	requireTotalsEqual(t, node)

	bobBalance, err := node.BalanceOf(bob.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bobBalance)
}

func TestNodeGenesisPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	alice := newAccount(t)

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node, _ := newTestNode(t, db, alice)
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeStake, 500, 0, nil))
	require.NoError(t, err)
	node.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	reopened, err := NewNode(db, Options{ChainID: testChainID})
	require.NoError(t, err)
	defer reopened.Close()

	applied, err := reopened.InitGenesis(&genesis.GenesisSpec{ChainID: testChainID, Token: genesis.TokenSpec{Symbol: "LST"}})
	require.NoError(t, err)
	require.False(t, applied)

	staked, err := reopened.StakedAmount(alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(500), staked)

	info, err := reopened.TokenInfo()
	require.NoError(t, err)
	require.Equal(t, "LST", info.Symbol)
	require.Equal(t, uint64(500), info.TotalSupply)
	require.Equal(t, crypto.FromBytes20(StakingAddress).String(), info.Authority)
}

func TestNodeConcurrentStakersStayIsolated(t *testing.T) {
	accounts := make([]*testAccount, 8)
	for i := range accounts {
		accounts[i] = newAccount(t)
	}
	node, _ := newTestNode(t, storage.NewMemDB(), accounts...)

	var wg sync.WaitGroup
	errs := make(chan error, len(accounts)*3)
	for i, acct := range accounts {
		wg.Add(1)
		go func(acct *testAccount, amount uint64) {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				call := &types.Call{ChainID: testChainID, Type: types.CallTypeStake, Nonce: uint64(j), Value: amount}
				if err := call.Sign(acct.key.PrivateKey); err != nil {
					errs <- err
					return
				}
				if _, err := node.SubmitCall(call); err != nil {
					errs <- err
				}
			}
		}(acct, uint64(i+1)*10)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, acct := range accounts {
		staked, err := node.StakedAmount(acct.addr)
		require.NoError(t, err)
		balance, err := node.BalanceOf(acct.addr)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1)*30, staked)
		require.Equal(t, staked, balance)
	}
	requireTotalsEqual(t, node)
}

func TestNodeTotalsNeverTornDuringCommits(t *testing.T) {
	alice := newAccount(t)
	node, _ := newTestNode(t, storage.NewMemDB(), alice)

	done := make(chan struct{})
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		torn  int
		reads int
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				totals, err := node.Totals()
				if err != nil {
					continue
				}
				mu.Lock()
				reads++
				if totals.TotalStaked != totals.TotalSupply {
					torn++
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 500; i++ {
		_, err := submit(t, node, alice, alice.call(t, types.CallTypeStake, 1, 0, nil))
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	require.Positive(t, reads)
	require.Zero(t, torn, "totals observed between the two ledger writes")
	requireTotalsEqual(t, node)
}

func TestNodePause(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	node, _ := newTestNode(t, storage.NewMemDB(), alice)

	_, err := submit(t, node, alice, alice.call(t, types.CallTypeStake, 10, 0, nil))
	require.NoError(t, err)

	node.SetPaused(true)
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeStake, 10, 0, nil))
	require.True(t, errors.Is(err, lsderrors.ErrStakingPaused))
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeTransfer, 0, 5, &bob.addr))
	require.NoError(t, err)

	node.SetPaused(false)
	_, err = submit(t, node, alice, alice.call(t, types.CallTypeStake, 10, 0, nil))
	require.NoError(t, err)
}

func TestNodeRejectsForeignGenesis(t *testing.T) {
	node, err := NewNode(storage.NewMemDB(), Options{ChainID: testChainID})
	require.NoError(t, err)
	_, err = node.InitGenesis(&genesis.GenesisSpec{ChainID: 99, Token: genesis.TokenSpec{Symbol: "LST"}})
	require.ErrorIs(t, err, ErrInvalidChainID)

	_, err = node.Totals()
	require.Error(t, err)
}
