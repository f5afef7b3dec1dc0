package events

import (
	"strconv"
	"strings"

	"lsdchain/crypto"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAddress(addr [20]byte) string {
	return crypto.FromBytes20(addr).String()
}
