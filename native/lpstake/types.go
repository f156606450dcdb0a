package lpstake

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"lpstaking/crypto"
)

// EmissionType selects how the reward stream is priced over time.
type EmissionType uint8

const (
	// EmissionFixedRate emits RatePerUnit reward units per time unit forever.
	EmissionFixedRate EmissionType = iota
	// EmissionBlockBased starts at InitialBlockRate and multiplies the rate by
	// DecayFactorBps/10000 every BlocksPerPeriod time units.
	EmissionBlockBased
)

func (t EmissionType) String() string {
	switch t {
	case EmissionFixedRate:
		return "fixed_rate"
	case EmissionBlockBased:
		return "block_based"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseEmissionType accepts the names produced by String.
func ParseEmissionType(s string) (EmissionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed_rate", "fixed":
		return EmissionFixedRate, nil
	case "block_based", "block":
		return EmissionBlockBased, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidEmissionType, s)
	}
}

// EmissionSchedule describes the reward stream of a pool.
type EmissionSchedule struct {
	Type             EmissionType
	RatePerUnit      uint64
	InitialBlockRate uint64
	DecayFactorBps   uint64
	BlocksPerPeriod  uint64
	// StartTime anchors the decay periods of a block based schedule.
	StartTime uint64
}

// Validate checks the schedule parameters for the selected strategy.
func (s EmissionSchedule) Validate() error {
	switch s.Type {
	case EmissionFixedRate:
		return nil
	case EmissionBlockBased:
		if s.DecayFactorBps > BasisPoints {
			return ErrInvalidDecayFactor
		}
		if s.BlocksPerPeriod == 0 {
			return ErrInvalidBlocksPerPeriod
		}
		return nil
	default:
		return ErrInvalidEmissionType
	}
}

// PoolState holds the collateral and share totals of one pool.
type PoolState struct {
	Address   crypto.Address
	Authority crypto.Address
	// CollateralAsset is deposited by liquidity providers.
	CollateralAsset string
	// ShareAsset is minted against deposits and is the staking token.
	ShareAsset string
	// NativeAsset is the reward currency paid out of the vault.
	NativeAsset       string
	CollateralAccount crypto.Address
	Vault             crypto.Address
	TotalDeposited    uint64
	TotalLpSupply     uint64
	TotalStaked       uint64
	MinDeposit        uint64
	Paused            bool
	CreatedAt         uint64
}

// Clone returns a deep copy of the pool.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// RewardConfig is the per-pool accumulator record.
type RewardConfig struct {
	Pool              crypto.Address
	Emission          EmissionSchedule
	AccRewardPerShare *uint256.Int
	LastUpdateTime    uint64
}

// Clone returns a deep copy of the reward configuration.
func (c *RewardConfig) Clone() *RewardConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AccRewardPerShare = cloneU256(c.AccRewardPerShare)
	return &clone
}

// UserPosition tracks one owner's shares and rewards in one pool.
type UserPosition struct {
	Address      crypto.Address
	Owner        crypto.Address
	Pool         crypto.Address
	LPBalance    uint64
	StakedAmount uint64
	// RewardDebt is the reward, in reward units, already priced into the
	// position at its last settlement.
	RewardDebt    *uint256.Int
	PendingReward uint64
	LastStakeTime uint64
	LastClaimTime uint64
}

// Clone returns a deep copy of the position.
func (u *UserPosition) Clone() *UserPosition {
	if u == nil {
		return nil
	}
	clone := *u
	clone.RewardDebt = cloneU256(u.RewardDebt)
	return &clone
}

// VaultState reports the reward vault of a pool.
type VaultState struct {
	Address crypto.Address
	Pool    crypto.Address
	Asset   string
	Balance uint64
}

// InitParams configures a new pool.
type InitParams struct {
	CollateralAsset string
	ShareAsset      string
	ShareName       string
	ShareDecimals   uint8
	NativeAsset     string
	MinDeposit      uint64
	Emission        EmissionSchedule
}
