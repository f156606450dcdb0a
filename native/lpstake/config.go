package lpstake

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"lpstaking/crypto"
)

// Config is the TOML genesis for a ledger: the tokens it knows about, the
// opening balances and the pools to initialise.
type Config struct {
	Tokens   []TokenConfig   `toml:"tokens"`
	Balances []BalanceConfig `toml:"balances"`
	Pools    []PoolConfig    `toml:"pools"`
}

// TokenConfig registers an existing asset such as the collateral or the
// native reward currency.
type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// BalanceConfig credits an opening balance.
type BalanceConfig struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  uint64 `toml:"Amount"`
}

// PoolConfig describes one pool to initialise at genesis.
type PoolConfig struct {
	Authority        string `toml:"Authority"`
	CollateralAsset  string `toml:"CollateralAsset"`
	ShareAsset       string `toml:"ShareAsset"`
	ShareName        string `toml:"ShareName"`
	NativeAsset      string `toml:"NativeAsset"`
	Decimals         uint8  `toml:"Decimals"`
	MinDeposit       uint64 `toml:"MinDeposit"`
	EmissionType     string `toml:"EmissionType"`
	EmissionRate     uint64 `toml:"EmissionRate"`
	InitialBlockRate uint64 `toml:"InitialBlockRate"`
	DecayFactorBps   uint64 `toml:"DecayFactorBps"`
	BlocksPerPeriod  uint64 `toml:"BlocksPerPeriod"`
	VaultFunding     uint64 `toml:"VaultFunding"`
}

// DefaultDecimals matches the 9-decimal collateral and share units.
const DefaultDecimals uint8 = 9

// LoadConfig reads and validates a TOML genesis file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseConfig(string(data))
}

// ParseConfig decodes TOML genesis text.
func ParseConfig(data string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode genesis: unknown keys %v", undecoded)
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnsureDefaults fills unset values.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	for i := range c.Tokens {
		if c.Tokens[i].Decimals == 0 {
			c.Tokens[i].Decimals = DefaultDecimals
		}
		if strings.TrimSpace(c.Tokens[i].Name) == "" {
			c.Tokens[i].Name = normalizeAsset(c.Tokens[i].Symbol)
		}
	}
	for i := range c.Pools {
		p := &c.Pools[i]
		if p.Decimals == 0 {
			p.Decimals = DefaultDecimals
		}
		if p.MinDeposit == 0 {
			p.MinDeposit = DefaultMinDeposit
		}
		if p.EmissionType == "" {
			p.EmissionType = EmissionFixedRate.String()
		}
	}
}

// Validate checks addresses, assets and emission parameters.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("genesis: nil config")
	}
	for _, t := range c.Tokens {
		if normalizeAsset(t.Symbol) == "" {
			return fmt.Errorf("genesis: token symbol required")
		}
	}
	for i, b := range c.Balances {
		if _, err := crypto.ParseAddress(b.Address); err != nil {
			return fmt.Errorf("genesis: balance %d: %w", i, err)
		}
		if normalizeAsset(b.Asset) == "" {
			return fmt.Errorf("genesis: balance %d: asset required", i)
		}
	}
	for i, p := range c.Pools {
		if _, err := crypto.ParseAddress(p.Authority); err != nil {
			return fmt.Errorf("genesis: pool %d authority: %w", i, err)
		}
		if _, err := p.Schedule(); err != nil {
			return fmt.Errorf("genesis: pool %d: %w", i, err)
		}
	}
	return nil
}

// Schedule converts the pool's emission fields into a validated schedule.
func (p PoolConfig) Schedule() (EmissionSchedule, error) {
	kind, err := ParseEmissionType(p.EmissionType)
	if err != nil {
		return EmissionSchedule{}, err
	}
	s := EmissionSchedule{
		Type:             kind,
		RatePerUnit:      p.EmissionRate,
		InitialBlockRate: p.InitialBlockRate,
		DecayFactorBps:   p.DecayFactorBps,
		BlocksPerPeriod:  p.BlocksPerPeriod,
	}
	if err := s.Validate(); err != nil {
		return EmissionSchedule{}, err
	}
	return s, nil
}

// InitParams converts the pool entry into engine parameters.
func (p PoolConfig) InitParams() (InitParams, error) {
	schedule, err := p.Schedule()
	if err != nil {
		return InitParams{}, err
	}
	return InitParams{
		CollateralAsset: p.CollateralAsset,
		ShareAsset:      p.ShareAsset,
		ShareName:       p.ShareName,
		ShareDecimals:   p.Decimals,
		NativeAsset:     p.NativeAsset,
		MinDeposit:      p.MinDeposit,
		Emission:        schedule,
	}, nil
}
