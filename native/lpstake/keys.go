package lpstake

import (
	"strings"

	"lpstaking/crypto"
)

const (
	seedPoolState      = "pool_state"
	seedRewardConfig   = "reward_config"
	seedRewardVault    = "reward_vault"
	seedUserPosition   = "user_position"
	seedPoolCollateral = "pool_collateral"
)

// PoolAddress derives the pool record address from its asset pair.
func PoolAddress(collateralAsset, shareAsset string) crypto.Address {
	return crypto.Derive(seedPoolState, []byte(normalizeAsset(collateralAsset)), []byte(normalizeAsset(shareAsset)))
}

// RewardConfigAddress derives the accumulator record address for pool.
func RewardConfigAddress(pool crypto.Address) crypto.Address {
	return crypto.Derive(seedRewardConfig, pool.Bytes())
}

// VaultAddress derives the reward vault holding account for pool.
func VaultAddress(pool crypto.Address) crypto.Address {
	return crypto.Derive(seedRewardVault, pool.Bytes())
}

// PositionAddress derives the position record of owner in pool.
func PositionAddress(owner, pool crypto.Address) crypto.Address {
	return crypto.Derive(seedUserPosition, owner.Bytes(), pool.Bytes())
}

// CollateralAddress derives the account holding the pool's collateral.
func CollateralAddress(pool crypto.Address) crypto.Address {
	return crypto.Derive(seedPoolCollateral, pool.Bytes())
}

func normalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func recordKey(kind string, addr crypto.Address) []byte {
	return []byte("lpstake/" + kind + "/" + addr.Hex())
}

var poolIndexKey = []byte("lpstake/pools")
