package config

// Staking configures the orchestrator and the receipt token metadata.
type Staking struct {
	MinimumStakePeriodSeconds uint64 `toml:"MinimumStakePeriodSeconds"`
	TokenSymbol               string `toml:"TokenSymbol"`
	TokenName                 string `toml:"TokenName"`
	TokenDecimals             uint8  `toml:"TokenDecimals"`
	Paused                    bool   `toml:"Paused"`
}

// RateLimit bounds JSON-RPC requests per client.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Logging configures the structured logger and the optional rotating file.
type Logging struct {
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// GenesisAccount credits native value at genesis.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance uint64 `toml:"Balance"`
}
