package lpstake

import (
	"lpstaking/core/events"
	"lpstaking/crypto"
)

// FundVault transfers amount of the reward asset from caller into the pool
// vault. Anyone may fund a vault.
func (e *Engine) FundVault(caller, poolAddr crypto.Address, amount uint64) (*VaultState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	if err := tokenErr(e.tokens.Transfer(pool.NativeAsset, caller, pool.Vault, amount)); err != nil {
		return nil, err
	}
	vault, err := e.vault(pool)
	if err != nil {
		return nil, err
	}
	e.emit(events.LPStakeVaultFunded{
		Pool:         pool.Address,
		Funder:       caller,
		Amount:       amount,
		VaultBalance: vault.Balance,
		Timestamp:    e.now,
	})
	return vault, nil
}

// Vault reports the reward vault of a pool.
func (e *Engine) Vault(poolAddr crypto.Address) (*VaultState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	return e.vault(pool)
}

func (e *Engine) vault(pool *PoolState) (*VaultState, error) {
	bal, err := e.tokens.Balance(pool.Vault, pool.NativeAsset)
	if err != nil {
		return nil, tokenErr(err)
	}
	return &VaultState{Address: pool.Vault, Pool: pool.Address, Asset: pool.NativeAsset, Balance: bal}, nil
}

// payFromVault debits amount from the vault to recipient and returns the
// remaining vault balance. The full amount must be available.
func (e *Engine) payFromVault(pool *PoolState, recipient crypto.Address, amount uint64) (uint64, error) {
	bal, err := e.tokens.Balance(pool.Vault, pool.NativeAsset)
	if err != nil {
		return 0, tokenErr(err)
	}
	if bal < amount {
		return 0, ErrInsufficientRewardVault
	}
	if err := tokenErr(e.tokens.Transfer(pool.NativeAsset, pool.Vault, recipient, amount)); err != nil {
		return 0, err
	}
	return bal - amount, nil
}
