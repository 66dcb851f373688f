package config

// Vault captures the risk parameters. Amounts are whole native coins in
// decimal notation.
type Vault struct {
	MaxLTVBps       uint64 `toml:"MaxLTVBps"`
	InterestRateBps uint64 `toml:"InterestRateBps"`
	MinDelegation   string `toml:"MinDelegation"`
	MinDeposit      string `toml:"MinDeposit"`
}

// Staking configures the local staking ledger.
type Staking struct {
	UnbondingDelay string `toml:"UnbondingDelay"`
	MinDelegation  string `toml:"MinDelegation"`
}

// Log selects the level and optional rotated log file.
type Log struct {
	Level     string `toml:"Level"`
	File      string `toml:"File"`
	MaxSizeMB int    `toml:"MaxSizeMB"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}
