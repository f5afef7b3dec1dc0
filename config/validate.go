package config

import (
	"fmt"
	"math"
	"strings"

	"lsdchain/crypto"
)

var (
	MaxTokenDecimals = uint8(18)
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if cfg.ChainID == 0 && strings.TrimSpace(cfg.GenesisFile) == "" {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if cfg.Staking.MinimumStakePeriodSeconds == 0 {
		return fmt.Errorf("staking: MinimumStakePeriodSeconds must be positive")
	}
	if cfg.Staking.MinimumStakePeriodSeconds > math.MaxInt64 {
		return fmt.Errorf("staking: MinimumStakePeriodSeconds out of range")
	}
	if cfg.Staking.TokenDecimals > MaxTokenDecimals {
		return fmt.Errorf("staking: TokenDecimals must be <= %d", MaxTokenDecimals)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	seen := make(map[[20]byte]struct{}, len(cfg.Genesis))
	for i, acct := range cfg.Genesis {
		addr, err := crypto.ParseIdentity(acct.Address)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("genesis[%d]: duplicate address %s", i, acct.Address)
		}
		seen[addr] = struct{}{}
	}
	return nil
}
