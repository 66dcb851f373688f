package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakevault/core/genesis"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	Environment string `toml:"Environment"`

	Vault     Vault        `toml:"vault"`
	Staking   Staking      `toml:"staking"`
	Log       Log          `toml:"log"`
	Telemetry Telemetry    `toml:"telemetry"`
	Genesis   genesis.Spec `toml:"genesis"`
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	return &Config{
		DataDir:     "./vault-data",
		Environment: "local",
		Vault: Vault{
			MaxLTVBps:       8000,
			InterestRateBps: 200,
			MinDelegation:   "500",
			MinDeposit:      "0",
		},
		Staking: Staking{
			UnbondingDelay: "14h",
			MinDelegation:  "500",
		},
		Log: Log{Level: "info", MaxSizeMB: 100},
		Genesis: genesis.Spec{
			Owner: "seed:owner",
			Alloc: map[string]string{},
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if cfg.Genesis.Alloc == nil {
		cfg.Genesis.Alloc = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// GenesisSpec returns the genesis description, preferring GenesisFile when it
// is set. Relative paths resolve against base.
func (c *Config) GenesisSpec(base string) (*genesis.Spec, error) {
	path := strings.TrimSpace(c.GenesisFile)
	if path == "" {
		spec := c.Genesis
		return &spec, nil
	}
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	return genesis.Load(path)
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
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
