package core

import "lsdchain/crypto"

var (
	// StakingAddress is the identity of the staking orchestrator. It holds the
	// staked native value and is the token ledger's mint/burn authority.
	StakingAddress = crypto.ContractAddress("staking")
	// TokenAddress is the identity of the receipt token ledger.
	TokenAddress = crypto.ContractAddress("lstoken")
)

// ContractAddress derives the identity of a named protocol contract.
func ContractAddress(name string) [20]byte {
	return crypto.ContractAddress(name)
}
