package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lsdchain/core/genesis"
)

const (
	DefaultRPCAddress         = ":8545"
	DefaultDataDir            = "./lsd-data"
	DefaultNetworkName        = "lsd-local"
	DefaultChainID            = uint64(1337)
	DefaultMinimumStakePeriod = uint64(86400)
	DefaultTokenSymbol        = "LST"
	DefaultTokenName          = "Liquid Staked Token"
	DefaultTokenDecimals      = uint8(18)
	DefaultRequestsPerMinute  = 600
	DefaultBurst              = 60
)

type Config struct {
	RPCAddress  string           `toml:"RPCAddress"`
	DataDir     string           `toml:"DataDir"`
	NetworkName string           `toml:"NetworkName"`
	ChainID     uint64           `toml:"ChainID"`
	GenesisFile string           `toml:"GenesisFile"`
	IndexerDSN  string           `toml:"IndexerDSN"`
	Staking     Staking          `toml:"Staking"`
	RateLimit   RateLimit        `toml:"RateLimit"`
	Logging     Logging          `toml:"Logging"`
	Genesis     []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = DefaultRPCAddress
	}
	if cfg.Staking.MinimumStakePeriodSeconds == 0 {
		cfg.Staking.MinimumStakePeriodSeconds = DefaultMinimumStakePeriod
	}
	if strings.TrimSpace(cfg.Staking.TokenSymbol) == "" {
		cfg.Staking.TokenSymbol = DefaultTokenSymbol
	}
	if strings.TrimSpace(cfg.Staking.TokenName) == "" {
		cfg.Staking.TokenName = DefaultTokenName
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultBurst
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisAccount{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  DefaultRPCAddress,
		DataDir:     DefaultDataDir,
		NetworkName: DefaultNetworkName,
		ChainID:     DefaultChainID,
		IndexerDSN:  "",
		Staking: Staking{
			MinimumStakePeriodSeconds: DefaultMinimumStakePeriod,
			TokenSymbol:               DefaultTokenSymbol,
			TokenName:                 DefaultTokenName,
			TokenDecimals:             DefaultTokenDecimals,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: DefaultRequestsPerMinute,
			Burst:             DefaultBurst,
		},
		Logging: Logging{
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Genesis: []GenesisAccount{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// IndexerPath returns the SQLite DSN for the event history, defaulting to a
// file inside the data directory.
func (c *Config) IndexerPath() string {
	if dsn := strings.TrimSpace(c.IndexerDSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "history.db")
}

// StatePath returns the LevelDB directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// GenesisSpec builds the genesis description. A GenesisFile takes precedence
// over the inline [[Genesis]] allocations.
func (c *Config) GenesisSpec() (*genesis.GenesisSpec, error) {
	if path := strings.TrimSpace(c.GenesisFile); path != "" {
		return genesis.LoadGenesisSpec(path)
	}
	spec := &genesis.GenesisSpec{
		ChainID: c.ChainID,
		Token: genesis.TokenSpec{
			Name:     c.Staking.TokenName,
			Symbol:   c.Staking.TokenSymbol,
			Decimals: c.Staking.TokenDecimals,
		},
		Alloc: make([]genesis.AllocSpec, 0, len(c.Genesis)),
	}
	for _, acct := range c.Genesis {
		spec.Alloc = append(spec.Alloc, genesis.AllocSpec{Address: acct.Address, Balance: acct.Balance})
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
