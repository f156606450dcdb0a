package lpstake

import (
	"errors"

	"lpstaking/native/bank"
	nativecommon "lpstaking/native/common"
)

var (
	ErrInvalidAmount           = errors.New("lpstake: invalid amount")
	ErrInsufficientBalance     = errors.New("lpstake: insufficient balance")
	ErrInsufficientStake       = errors.New("lpstake: insufficient staked amount")
	ErrNoRewardToClaim         = errors.New("lpstake: no reward to claim")
	ErrInsufficientRewardVault = errors.New("lpstake: insufficient reward vault balance")
	ErrArithmeticOverflow      = errors.New("lpstake: arithmetic overflow")
	ErrUnauthorized            = errors.New("lpstake: unauthorized")

	ErrPoolNotFound           = errors.New("lpstake: pool not found")
	ErrPoolExists             = errors.New("lpstake: pool already initialised")
	ErrPositionNotFound       = errors.New("lpstake: position not found")
	ErrEmptyPool              = errors.New("lpstake: pool has no liquidity")
	ErrUnknownAsset           = errors.New("lpstake: asset not registered")
	ErrInvalidEmissionType    = errors.New("lpstake: invalid emission type")
	ErrInvalidDecayFactor     = errors.New("lpstake: decay factor exceeds 10000 bps")
	ErrInvalidBlocksPerPeriod = errors.New("lpstake: blocks per period must be positive")
	ErrNilState               = errors.New("lpstake: state not configured")

	// ErrModulePaused is returned for user instructions against a paused pool.
	ErrModulePaused = nativecommon.ErrModulePaused
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientStake, "insufficient_stake"},
	{ErrNoRewardToClaim, "no_reward_to_claim"},
	{ErrInsufficientRewardVault, "insufficient_reward_vault"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrUnauthorized, "unauthorized"},
	{ErrPoolNotFound, "pool_not_found"},
	{ErrPoolExists, "pool_exists"},
	{ErrPositionNotFound, "position_not_found"},
	{ErrEmptyPool, "empty_pool"},
	{ErrUnknownAsset, "unknown_asset"},
	{ErrInvalidEmissionType, "invalid_emission_type"},
	{ErrInvalidDecayFactor, "invalid_decay_factor"},
	{ErrInvalidBlocksPerPeriod, "invalid_blocks_per_period"},
	{ErrModulePaused, "paused"},
	{bank.ErrInsufficientFunds, "insufficient_balance"},
	{bank.ErrUnknownToken, "unknown_asset"},
}

// ErrorCode returns a stable snake_case code for err, "" for nil and
// "internal" for anything unrecognised.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}
