package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"lsdchain/crypto"
)

// GenesisSpec describes the initial state written the first time a node
// starts on an empty database.
type GenesisSpec struct {
	ChainID uint64      `json:"chainId"`
	Token   TokenSpec   `json:"token"`
	Alloc   []AllocSpec `json:"alloc"`

	allocs []allocation
}

// TokenSpec is the receipt token metadata.
type TokenSpec struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AllocSpec credits native value to an account.
type AllocSpec struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type allocation struct {
	addr    [20]byte
	balance uint64
}

// LoadGenesisSpec reads and validates a JSON genesis file.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the spec and resolves the allocation addresses.
func (s *GenesisSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if s.ChainID == 0 {
		return fmt.Errorf("chainId must be non-zero")
	}
	if strings.TrimSpace(s.Token.Symbol) == "" {
		return fmt.Errorf("token.symbol is required")
	}
	if s.Token.Decimals > 18 {
		return fmt.Errorf("token.decimals must be <= 18")
	}

	seen := make(map[[20]byte]struct{}, len(s.Alloc))
	allocs := make([]allocation, 0, len(s.Alloc))
	var total uint64
	for i, entry := range s.Alloc {
		addr, err := crypto.ParseIdentity(entry.Address)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if _, exists := seen[addr]; exists {
			return fmt.Errorf("alloc[%d]: duplicate address %s", i, entry.Address)
		}
		seen[addr] = struct{}{}
		if total > math.MaxUint64-entry.Balance {
			return fmt.Errorf("alloc[%d]: total allocation overflows", i)
		}
		total += entry.Balance
		allocs = append(allocs, allocation{addr: addr, balance: entry.Balance})
	}
	sort.Slice(allocs, func(i, j int) bool {
		return bytes.Compare(allocs[i].addr[:], allocs[j].addr[:]) < 0
	})
	s.allocs = allocs
	return nil
}
