package types

// Position is the query view of a stake position.
type Position struct {
	Owner    string `json:"owner"`
	Amount   uint64 `json:"amount"`
	StakedAt *int64 `json:"stakedAt,omitempty"`
}

// Totals reports the protocol-wide aggregates that must stay equal.
type Totals struct {
	TotalStaked uint64 `json:"totalStaked"`
	TotalSupply uint64 `json:"totalSupply"`
}

// TokenInfo describes the receipt token.
type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Authority   string `json:"authority"`
	TotalSupply uint64 `json:"totalSupply"`
}

// CallResult is returned to the submitter of a successful call.
type CallResult struct {
	Hash   string   `json:"hash"`
	Events []*Event `json:"events"`
}
