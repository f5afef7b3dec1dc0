package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"lsdchain/core/types"
	"lsdchain/crypto"
)

// CallParams is the wire form of a signed call.
type CallParams struct {
	ChainID uint64 `json:"chainId"`
	Type    string `json:"type"`
	Nonce   uint64 `json:"nonce"`
	To      string `json:"to,omitempty"`
	Value   uint64 `json:"value"`
	Amount  uint64 `json:"amount"`
	R       string `json:"r"`
	S       string `json:"s"`
	V       string `json:"v"`
}

// EncodeCall renders a signed call for transmission.
func EncodeCall(call *types.Call) (CallParams, error) {
	if call == nil {
		return CallParams{}, fmt.Errorf("call required")
	}
	params := CallParams{
		ChainID: call.ChainID,
		Type:    call.Type.String(),
		Nonce:   call.Nonce,
		Value:   call.Value,
		Amount:  call.Amount,
		R:       hexBig(call.R),
		S:       hexBig(call.S),
		V:       hexBig(call.V),
	}
	if len(call.To) > 0 {
		addr, err := crypto.NewAddress(crypto.LSDPrefix, call.To)
		if err != nil {
			return CallParams{}, err
		}
		params.To = addr.String()
	}
	return params, nil
}

// Decode converts the wire form back into a call.
func (p CallParams) Decode() (*types.Call, error) {
	ct, err := types.ParseCallType(strings.ToLower(strings.TrimSpace(p.Type)))
	if err != nil {
		return nil, err
	}
	call := &types.Call{
		ChainID: p.ChainID,
		Type:    ct,
		Nonce:   p.Nonce,
		Value:   p.Value,
		Amount:  p.Amount,
	}
	if strings.TrimSpace(p.To) != "" {
		to, err := crypto.ParseIdentity(p.To)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		call.To = to[:]
	}
	if call.R, err = parseHexBig(p.R); err != nil {
		return nil, fmt.Errorf("r: %w", err)
	}
	if call.S, err = parseHexBig(p.S); err != nil {
		return nil, fmt.Errorf("s: %w", err)
	}
	if call.V, err = parseHexBig(p.V); err != nil {
		return nil, fmt.Errorf("v: %w", err)
	}
	return call, nil
}

// hexBig formats a big integer as a 0x-prefixed hexadecimal string.
func hexBig(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func parseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return nil, fmt.Errorf("expected 0x-prefixed hex")
	}
	digits := trimmed[2:]
	if digits == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return nil, err
	}
	if len(raw) > 32 {
		return nil, fmt.Errorf("value exceeds 32 bytes")
	}
	return new(big.Int).SetBytes(raw), nil
}
