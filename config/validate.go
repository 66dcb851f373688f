package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"stakevault/native/staking"
	"stakevault/native/vault"
)

// Validate checks every section that can be checked without opening state.
func (c *Config) Validate() error {
	if _, err := c.VaultParams(); err != nil {
		return err
	}
	if _, err := c.StakingParams(); err != nil {
		return err
	}
	if c.Log.MaxSizeMB < 0 {
		return fmt.Errorf("log: MaxSizeMB must not be negative")
	}
	return nil
}

// VaultParams converts the [vault] section into engine parameters.
func (c *Config) VaultParams() (vault.Params, error) {
	params := vault.DefaultParams()
	if c.Vault.MaxLTVBps != 0 {
		params.MaxLTVBps = c.Vault.MaxLTVBps
	}
	params.InterestRateBps = c.Vault.InterestRateBps
	var err error
	if params.MinDelegation, err = optionalNative(c.Vault.MinDelegation, params.MinDelegation); err != nil {
		return vault.Params{}, fmt.Errorf("vault: MinDelegation: %w", err)
	}
	if params.MinDeposit, err = optionalNative(c.Vault.MinDeposit, params.MinDeposit); err != nil {
		return vault.Params{}, fmt.Errorf("vault: MinDeposit: %w", err)
	}
	if err := params.Validate(); err != nil {
		return vault.Params{}, err
	}
	return params, nil
}

// StakingParams converts the [staking] section into ledger parameters.
func (c *Config) StakingParams() (staking.Params, error) {
	params := staking.DefaultParams()
	if raw := strings.TrimSpace(c.Staking.UnbondingDelay); raw != "" {
		delay, err := time.ParseDuration(raw)
		if err != nil {
			return staking.Params{}, fmt.Errorf("staking: UnbondingDelay: %w", err)
		}
		if delay < 0 {
			return staking.Params{}, fmt.Errorf("staking: UnbondingDelay must not be negative")
		}
		params.UnbondingDelay = delay
	}
	var err error
	if params.MinDelegation, err = optionalNative(c.Staking.MinDelegation, params.MinDelegation); err != nil {
		return staking.Params{}, fmt.Errorf("staking: MinDelegation: %w", err)
	}
	return params, nil
}

func optionalNative(raw string, fallback *uint256.Int) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return vault.ParseNative(raw)
}
