package genesis

import (
	"fmt"

	"lsdchain/core/state"
	"lsdchain/crypto"
	"lsdchain/native/bank"
	"lsdchain/native/lstoken"
)

var markerNamespace = crypto.ContractAddress("genesis")

// Applied reports whether genesis has already been written to kv.
func Applied(kv state.KV) (bool, error) {
	return state.NewSlot[uint64](kv, markerNamespace, "chain_id").Has()
}

// Apply credits the native allocations and initializes the receipt token with
// authority as its mint/burn authority. Callers run it inside a unit of work
// together with the orchestrator initialization.
func Apply(kv state.KV, spec *GenesisSpec, authority, token [20]byte) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	applied, err := Applied(kv)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("genesis already applied")
	}
	custody := bank.New(kv)
	for _, alloc := range spec.allocs {
		if err := custody.Credit(alloc.addr, alloc.balance); err != nil {
			return fmt.Errorf("credit %s: %w", crypto.FromBytes20(alloc.addr), err)
		}
	}
	meta := lstoken.Metadata{Name: spec.Token.Name, Symbol: spec.Token.Symbol, Decimals: spec.Token.Decimals}
	if err := lstoken.New(kv, token).Initialize(authority, meta); err != nil {
		return fmt.Errorf("initialize token: %w", err)
	}
	if err := state.SetSchemaVersion(kv, state.SchemaVersion); err != nil {
		return err
	}
	return state.NewSlot[uint64](kv, markerNamespace, "chain_id").Put(spec.ChainID)
}

// ChainID returns the chain id recorded at genesis.
func ChainID(kv state.KV) (uint64, bool, error) {
	return state.NewSlot[uint64](kv, markerNamespace, "chain_id").Get()
}
