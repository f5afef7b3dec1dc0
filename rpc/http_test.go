package rpc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lsdchain/core"
	"lsdchain/core/genesis"
	"lsdchain/core/types"
	"lsdchain/crypto"
	"lsdchain/indexer"
	"lsdchain/storage"
)

const testChainID = 9

type fixture struct {
	node   *core.Node
	client *Client
	now    atomic.Int64
	key    *crypto.PrivateKey
	addr   string
}

func newFixture(t *testing.T, cfg ServerConfig, withHistory bool) *fixture {
	t.Helper()
	f := &fixture{}
	f.now.Store(1_700_000_000)
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	f.key = key
	f.addr = key.PubKey().Address().String()

	db, err := storage.NewMemLevelDB()
	require.NoError(t, err)
	node, err := core.NewNode(db, core.Options{ChainID: testChainID, Now: f.now.Load})
	require.NoError(t, err)
	t.Cleanup(node.Close)
	_, err = node.InitGenesis(&genesis.GenesisSpec{
		ChainID: testChainID,
		Token:   genesis.TokenSpec{Name: "Liquid Staked Token", Symbol: "LST", Decimals: 18},
		Alloc:   []genesis.AllocSpec{{Address: f.addr, Balance: 5_000}},
	})
	require.NoError(t, err)
	f.node = node

	var history History
	if withHistory {
		idx, err := indexer.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		node.Subscribe(idx.Handle)
		history = idx
	}

	srv := httptest.NewServer(NewServer(node, history, cfg).Router())
	t.Cleanup(srv.Close)
	f.client = NewClient(srv.URL, srv.Client())
	return f
}

func (f *fixture) send(t *testing.T, ct types.CallType, value, amount uint64) (*types.CallResult, error) {
	t.Helper()
	nonce, err := f.client.Nonce(context.Background(), f.addr)
	require.NoError(t, err)
	call := &types.Call{ChainID: testChainID, Type: ct, Nonce: nonce, Value: value, Amount: amount}
	require.NoError(t, call.Sign(f.key.PrivateKey))
	return f.client.SendCall(context.Background(), call)
}

func TestStakeAndQueryOverRPC(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	ctx := context.Background()

	result, err := f.send(t, types.CallTypeStake, 1_000, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)
	require.NotEmpty(t, result.Events)

	staked, err := f.client.StakedAmount(ctx, f.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), staked)

	balance, err := f.client.BalanceOf(ctx, f.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), balance)

	native, err := f.client.NativeBalance(ctx, f.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(4_000), native)

	pos, err := f.client.Position(ctx, f.addr)
	require.NoError(t, err)
	require.NotNil(t, pos.StakedAt)
	require.Equal(t, f.now.Load(), *pos.StakedAt)

	totals, err := f.client.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), totals.TotalStaked)
	require.Equal(t, totals.TotalStaked, totals.TotalSupply)

	info, err := f.client.TokenInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "LST", info.Symbol)
}

func TestCallErrorsMapToStableCodes(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)

	_, err := f.send(t, types.CallTypeStake, 0, 0)
	require.True(t, IsCode(err, codeZeroAmount), "got %v", err)

	_, err = f.send(t, types.CallTypeUnstake, 0, 10)
	require.True(t, IsCode(err, codePositionNotFound), "got %v", err)

	_, err = f.send(t, types.CallTypeStake, 100, 0)
	require.NoError(t, err)
	_, err = f.send(t, types.CallTypeUnstake, 0, 50)
	require.True(t, IsCode(err, codeLockPeriod), "got %v", err)

	_, err = f.send(t, types.CallTypeUnstake, 0, 500)
	require.True(t, IsCode(err, codeInsufficientStake), "got %v", err)

	_, err = f.send(t, types.CallTypeStake, 1_000_000, 0)
	require.True(t, IsCode(err, codeInsufficientFunds), "got %v", err)

	f.now.Add(86_400)
	_, err = f.send(t, types.CallTypeUnstake, 0, 50)
	require.NoError(t, err)
}

func TestStaleNonceRejected(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	call := &types.Call{ChainID: testChainID, Type: types.CallTypeStake, Nonce: 3, Value: 10}
	require.NoError(t, call.Sign(f.key.PrivateKey))
	_, err := f.client.SendCall(context.Background(), call)
	require.True(t, IsCode(err, codeBadNonce), "got %v", err)
}

func TestWrongChainRejected(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	call := &types.Call{ChainID: testChainID + 1, Type: types.CallTypeStake, Value: 10}
	require.NoError(t, call.Sign(f.key.PrivateKey))
	_, err := f.client.SendCall(context.Background(), call)
	require.True(t, IsCode(err, codeInvalidParams), "got %v", err)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t, ServerConfig{}, true)
	_, err := f.send(t, types.CallTypeStake, 300, 0)
	require.NoError(t, err)
	f.now.Add(86_400)
	_, err = f.send(t, types.CallTypeUnstake, 0, 100)
	require.NoError(t, err)

	records, err := f.client.History(context.Background(), f.addr, 10)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, "lsd.unstaked", records[0].Type)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	_, err := f.client.History(context.Background(), f.addr, 10)
	require.True(t, IsCode(err, codeMethodNotFound), "got %v", err)
}

func TestInvalidAddressParam(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	_, err := f.client.StakedAmount(context.Background(), "cosmos1qqqq")
	require.True(t, IsCode(err, codeInvalidParams), "got %v", err)
}

func TestUnknownMethodAndMalformedBody(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	err := f.client.Call(context.Background(), "lsd_nope", nil)
	require.True(t, IsCode(err, codeMethodNotFound), "got %v", err)

	srv := httptest.NewServer(NewServer(f.node, nil, ServerConfig{}).Router())
	defer srv.Close()
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	f := newFixture(t, ServerConfig{RequestsPerMinute: 1, Burst: 2}, false)
	ctx := context.Background()
	_, err := f.client.Totals(ctx)
	require.NoError(t, err)
	_, err = f.client.Totals(ctx)
	require.NoError(t, err)
	_, err = f.client.Totals(ctx)
	require.True(t, IsCode(err, codeRateLimited), "got %v", err)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, ServerConfig{}, false)
	srv := httptest.NewServer(NewServer(f.node, nil, ServerConfig{}).Router())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestCallParamsRoundTrip(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	to := [20]byte{0x42}
	call := &types.Call{ChainID: testChainID, Type: types.CallTypeTransfer, Nonce: 4, Amount: 9, To: to[:]}
	require.NoError(t, call.Sign(key.PrivateKey))

	params, err := EncodeCall(call)
	require.NoError(t, err)
	require.Equal(t, "transfer", params.Type)
	require.True(t, strings.HasPrefix(params.To, "lsd1"))

	decoded, err := params.Decode()
	require.NoError(t, err)
	want, err := call.Hash()
	require.NoError(t, err)
	got, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, want, got)
	from, err := decoded.From()
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Bytes20(), from)
}
