package events

import (
	"strconv"

	"lpstaking/core/types"
	"lpstaking/crypto"
)

const (
	// TypeLPStakeInitialized is emitted when a pool, its accumulator and vault are created.
	TypeLPStakeInitialized = "lpstake.initialized"
	// TypeLPStakeDeposited captures collateral converted into pool shares.
	TypeLPStakeDeposited = "lpstake.deposited"
	// TypeLPStakeWithdrawn captures pool shares redeemed for collateral.
	TypeLPStakeWithdrawn = "lpstake.withdrawn"
	// TypeLPStakeStaked is emitted when shares move into the staking ledger.
	TypeLPStakeStaked = "lpstake.staked"
	// TypeLPStakeUnstaked is emitted when staked shares are returned.
	TypeLPStakeUnstaked = "lpstake.unstaked"
	// TypeLPStakeClaimed is emitted when pending rewards are paid from the vault.
	TypeLPStakeClaimed = "lpstake.claimed"
	// TypeLPStakeVaultFunded is emitted when the reward vault is topped up.
	TypeLPStakeVaultFunded = "lpstake.vaultFunded"
	// TypeLPStakeEmissionUpdated is emitted when the authority changes the schedule.
	TypeLPStakeEmissionUpdated = "lpstake.emissionUpdated"
	// TypeLPStakePaused is emitted when the pause flag changes.
	TypeLPStakePaused = "lpstake.paused"
)

func addr(a crypto.Address) string { return a.String() }

// LPStakeInitialized describes a freshly created pool.
type LPStakeInitialized struct {
	Pool            crypto.Address
	Authority       crypto.Address
	CollateralAsset string
	ShareAsset      string
	NativeAsset     string
	EmissionType    string
	Vault           crypto.Address
	Timestamp       uint64
}

// EventType satisfies the Event interface.
func (LPStakeInitialized) EventType() string { return TypeLPStakeInitialized }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeInitialized) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeInitialized, Attributes: map[string]string{
		"pool":            addr(e.Pool),
		"authority":       addr(e.Authority),
		"collateralAsset": normalizeAsset(e.CollateralAsset),
		"shareAsset":      normalizeAsset(e.ShareAsset),
		"nativeAsset":     normalizeAsset(e.NativeAsset),
		"emissionType":    e.EmissionType,
		"vault":           addr(e.Vault),
		"timestamp":       formatUint(e.Timestamp),
	}}
}

// LPStakeDeposited records collateral in and shares out.
type LPStakeDeposited struct {
	Pool           crypto.Address
	Account        crypto.Address
	Amount         uint64
	Minted         uint64
	TotalDeposited uint64
	TotalLpSupply  uint64
	Timestamp      uint64
}

// EventType satisfies the Event interface.
func (LPStakeDeposited) EventType() string { return TypeLPStakeDeposited }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeDeposited) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeDeposited, Attributes: map[string]string{
		"pool":           addr(e.Pool),
		"account":        addr(e.Account),
		"amount":         formatUint(e.Amount),
		"minted":         formatUint(e.Minted),
		"totalDeposited": formatUint(e.TotalDeposited),
		"totalLpSupply":  formatUint(e.TotalLpSupply),
		"timestamp":      formatUint(e.Timestamp),
	}}
}

// LPStakeWithdrawn records shares burned and collateral paid out.
type LPStakeWithdrawn struct {
	Pool           crypto.Address
	Account        crypto.Address
	Burned         uint64
	Payout         uint64
	TotalDeposited uint64
	TotalLpSupply  uint64
	Timestamp      uint64
}

// EventType satisfies the Event interface.
func (LPStakeWithdrawn) EventType() string { return TypeLPStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeWithdrawn, Attributes: map[string]string{
		"pool":           addr(e.Pool),
		"account":        addr(e.Account),
		"burned":         formatUint(e.Burned),
		"payout":         formatUint(e.Payout),
		"totalDeposited": formatUint(e.TotalDeposited),
		"totalLpSupply":  formatUint(e.TotalLpSupply),
		"timestamp":      formatUint(e.Timestamp),
	}}
}

// LPStakeStakeChanged is shared by the stake and unstake events.
type LPStakeStakeChanged struct {
	Unstake           bool
	Pool              crypto.Address
	Account           crypto.Address
	Amount            uint64
	StakedAmount      uint64
	TotalStaked       uint64
	PendingReward     uint64
	AccRewardPerShare string
	Timestamp         uint64
}

// EventType satisfies the Event interface.
func (e LPStakeStakeChanged) EventType() string {
	if e.Unstake {
		return TypeLPStakeUnstaked
	}
	return TypeLPStakeStaked
}

// Event converts the structured payload into a broadcastable event.
func (e LPStakeStakeChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"pool":              addr(e.Pool),
		"account":           addr(e.Account),
		"amount":            formatUint(e.Amount),
		"stakedAmount":      formatUint(e.StakedAmount),
		"totalStaked":       formatUint(e.TotalStaked),
		"pendingReward":     formatUint(e.PendingReward),
		"accRewardPerShare": e.AccRewardPerShare,
		"timestamp":         formatUint(e.Timestamp),
	}}
}

// LPStakeClaimed records a reward payout.
type LPStakeClaimed struct {
	Pool         crypto.Address
	Account      crypto.Address
	Amount       uint64
	VaultBalance uint64
	Timestamp    uint64
}

// EventType satisfies the Event interface.
func (LPStakeClaimed) EventType() string { return TypeLPStakeClaimed }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeClaimed) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeClaimed, Attributes: map[string]string{
		"pool":         addr(e.Pool),
		"account":      addr(e.Account),
		"amount":       formatUint(e.Amount),
		"vaultBalance": formatUint(e.VaultBalance),
		"timestamp":    formatUint(e.Timestamp),
	}}
}

// LPStakeVaultFunded records a vault top-up.
type LPStakeVaultFunded struct {
	Pool         crypto.Address
	Funder       crypto.Address
	Amount       uint64
	VaultBalance uint64
	Timestamp    uint64
}

// EventType satisfies the Event interface.
func (LPStakeVaultFunded) EventType() string { return TypeLPStakeVaultFunded }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeVaultFunded) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeVaultFunded, Attributes: map[string]string{
		"pool":         addr(e.Pool),
		"account":      addr(e.Funder),
		"amount":       formatUint(e.Amount),
		"vaultBalance": formatUint(e.VaultBalance),
		"timestamp":    formatUint(e.Timestamp),
	}}
}

// LPStakeEmissionUpdated records a schedule change.
type LPStakeEmissionUpdated struct {
	Pool             crypto.Address
	EmissionType     string
	RatePerUnit      uint64
	InitialBlockRate uint64
	DecayFactorBps   uint64
	BlocksPerPeriod  uint64
	Timestamp        uint64
}

// EventType satisfies the Event interface.
func (LPStakeEmissionUpdated) EventType() string { return TypeLPStakeEmissionUpdated }

// Event converts the structured payload into a broadcastable event.
func (e LPStakeEmissionUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLPStakeEmissionUpdated, Attributes: map[string]string{
		"pool":             addr(e.Pool),
		"emissionType":     e.EmissionType,
		"ratePerUnit":      formatUint(e.RatePerUnit),
		"initialBlockRate": formatUint(e.InitialBlockRate),
		"decayFactorBps":   formatUint(e.DecayFactorBps),
		"blocksPerPeriod":  formatUint(e.BlocksPerPeriod),
		"timestamp":        formatUint(e.Timestamp),
	}}
}

// LPStakePaused records a pause toggle.
type LPStakePaused struct {
	Pool      crypto.Address
	Paused    bool
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (LPStakePaused) EventType() string { return TypeLPStakePaused }

// Event converts the structured payload into a broadcastable event.
func (e LPStakePaused) Event() *types.Event {
	return &types.Event{Type: TypeLPStakePaused, Attributes: map[string]string{
		"pool":      addr(e.Pool),
		"paused":    strconv.FormatBool(e.Paused),
		"timestamp": formatUint(e.Timestamp),
	}}
}
