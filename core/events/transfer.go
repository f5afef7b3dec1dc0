package events

import "lsdchain/core/types"

const (
	// TypeTransfer is emitted for receipt token balance movements.
	TypeTransfer = "token.transfer"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["token"] = asset
	}
	attrs["from"] = formatAddress(e.From)
	attrs["to"] = formatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
