package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"lsdchain/core/types"
	"lsdchain/indexer"
)

// Client talks JSON-RPC to a node.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// NewClient returns a client for endpoint. A nil httpClient selects a default
// with a request timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), http: httpClient}
}

// Call invokes method and decodes the result into out. Errors returned by the
// node surface as *RPCError.
func (c *Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
		raw = append(raw, encoded)
	}
	payload, err := json.Marshal(RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  raw,
		ID:      int(c.nextID.Add(1)),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("POST %s: status %d: %s", c.endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := c.Call(ctx, "lsd_chainId", &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) SendCall(ctx context.Context, call *types.Call) (*types.CallResult, error) {
	params, err := EncodeCall(call)
	if err != nil {
		return nil, err
	}
	var result types.CallResult
	if err := c.Call(ctx, "lsd_sendCall", &result, params); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Nonce(ctx context.Context, addr string) (uint64, error) {
	var result nonceResult
	if err := c.Call(ctx, "lsd_getNonce", &result, addr); err != nil {
		return 0, err
	}
	return result.Nonce, nil
}

func (c *Client) StakedAmount(ctx context.Context, addr string) (uint64, error) {
	var result amountResult
	if err := c.Call(ctx, "lsd_getStakedAmount", &result, addr); err != nil {
		return 0, err
	}
	return result.Amount, nil
}

func (c *Client) Position(ctx context.Context, addr string) (*types.Position, error) {
	var result types.Position
	if err := c.Call(ctx, "lsd_getPosition", &result, addr); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) BalanceOf(ctx context.Context, addr string) (uint64, error) {
	var result amountResult
	if err := c.Call(ctx, "lsd_balanceOf", &result, addr); err != nil {
		return 0, err
	}
	return result.Amount, nil
}

func (c *Client) NativeBalance(ctx context.Context, addr string) (uint64, error) {
	var result amountResult
	if err := c.Call(ctx, "lsd_nativeBalance", &result, addr); err != nil {
		return 0, err
	}
	return result.Amount, nil
}

func (c *Client) Totals(ctx context.Context) (*types.Totals, error) {
	var result types.Totals
	if err := c.Call(ctx, "lsd_totals", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) TokenInfo(ctx context.Context) (*types.TokenInfo, error) {
	var result types.TokenInfo
	if err := c.Call(ctx, "lsd_tokenInfo", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) History(ctx context.Context, addr string, limit int) ([]indexer.Record, error) {
	var result historyResult
	if err := c.Call(ctx, "lsd_history", &result, addr, limit); err != nil {
		return nil, err
	}
	return result.Records, nil
}
