package lpstake

import (
	"lpstaking/core/events"
	"lpstaking/crypto"
)

// QuoteMint returns the shares minted for a deposit of amount. The first
// deposit into an empty pool mints 1:1; later deposits are priced pro rata
// and rounded down so the pool never over-mints.
func QuoteMint(totalDeposited, totalLpSupply, amount uint64) (uint64, error) {
	if totalLpSupply == 0 || totalDeposited == 0 {
		return amount, nil
	}
	return MulDiv64(amount, totalLpSupply, totalDeposited, RoundDown)
}

// QuoteRedeem returns the collateral paid for burning lpAmount shares,
// rounded down so any remainder stays in the pool.
func QuoteRedeem(totalDeposited, totalLpSupply, lpAmount uint64) (uint64, error) {
	if totalLpSupply == 0 {
		return 0, ErrEmptyPool
	}
	if lpAmount > totalLpSupply {
		return 0, ErrInsufficientBalance
	}
	return MulDiv64(lpAmount, totalDeposited, totalLpSupply, RoundDown)
}

// DepositResult reports the effect of a deposit.
type DepositResult struct {
	Minted   uint64
	Pool     *PoolState
	Position *UserPosition
}

// Deposit moves amount collateral from caller into the pool and mints shares
// to the caller.
func (e *Engine) Deposit(caller, poolAddr crypto.Address, amount uint64) (*DepositResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	if err := e.guard(pool); err != nil {
		return nil, err
	}
	if amount == 0 || amount < pool.MinDeposit {
		return nil, ErrInvalidAmount
	}
	// An empty pool must take the bootstrap branch; a pool holding shares
	// but no collateral cannot price new deposits.
	if pool.TotalLpSupply != 0 && pool.TotalDeposited == 0 {
		return nil, ErrEmptyPool
	}
	minted, err := QuoteMint(pool.TotalDeposited, pool.TotalLpSupply, amount)
	if err != nil {
		return nil, err
	}
	if minted == 0 {
		return nil, ErrInvalidAmount
	}
	totalDeposited, err := checkedAdd(pool.TotalDeposited, amount)
	if err != nil {
		return nil, err
	}
	totalLpSupply, err := checkedAdd(pool.TotalLpSupply, minted)
	if err != nil {
		return nil, err
	}

	if err := tokenErr(e.tokens.Transfer(pool.CollateralAsset, caller, pool.CollateralAccount, amount)); err != nil {
		return nil, err
	}
	if err := tokenErr(e.tokens.Mint(pool.ShareAsset, pool.Address, caller, minted)); err != nil {
		return nil, err
	}
	pool.TotalDeposited = totalDeposited
	pool.TotalLpSupply = totalLpSupply

	pos, err := e.loadOrInitPosition(caller, pool.Address)
	if err != nil {
		return nil, err
	}
	if err := e.syncLPBalance(pool, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return nil, err
	}
	e.emit(events.LPStakeDeposited{
		Pool:           pool.Address,
		Account:        caller,
		Amount:         amount,
		Minted:         minted,
		TotalDeposited: pool.TotalDeposited,
		TotalLpSupply:  pool.TotalLpSupply,
		Timestamp:      e.now,
	})
	return &DepositResult{Minted: minted, Pool: pool.Clone(), Position: pos.Clone()}, nil
}

// WithdrawResult reports the effect of a withdrawal.
type WithdrawResult struct {
	Payout   uint64
	Pool     *PoolState
	Position *UserPosition
}

// Withdraw burns lpAmount of the caller's unstaked shares and pays out the
// pro-rata collateral.
func (e *Engine) Withdraw(caller, poolAddr crypto.Address, lpAmount uint64) (*WithdrawResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	if err := e.guard(pool); err != nil {
		return nil, err
	}
	if lpAmount == 0 {
		return nil, ErrInvalidAmount
	}
	held, err := e.tokens.Balance(caller, pool.ShareAsset)
	if err != nil {
		return nil, tokenErr(err)
	}
	if lpAmount > held {
		return nil, ErrInsufficientBalance
	}
	payout, err := QuoteRedeem(pool.TotalDeposited, pool.TotalLpSupply, lpAmount)
	if err != nil {
		return nil, err
	}
	totalDeposited, err := checkedSub(pool.TotalDeposited, payout)
	if err != nil {
		return nil, err
	}
	totalLpSupply, err := checkedSub(pool.TotalLpSupply, lpAmount)
	if err != nil {
		return nil, err
	}
	if totalLpSupply < pool.TotalStaked {
		return nil, ErrInsufficientBalance
	}

	if err := tokenErr(e.tokens.Burn(pool.ShareAsset, pool.Address, caller, lpAmount)); err != nil {
		return nil, err
	}
	if err := tokenErr(e.tokens.Transfer(pool.CollateralAsset, pool.CollateralAccount, caller, payout)); err != nil {
		return nil, err
	}
	pool.TotalDeposited = totalDeposited
	pool.TotalLpSupply = totalLpSupply

	pos, err := e.loadOrInitPosition(caller, pool.Address)
	if err != nil {
		return nil, err
	}
	if err := e.syncLPBalance(pool, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return nil, err
	}
	e.emit(events.LPStakeWithdrawn{
		Pool:           pool.Address,
		Account:        caller,
		Burned:         lpAmount,
		Payout:         payout,
		TotalDeposited: pool.TotalDeposited,
		TotalLpSupply:  pool.TotalLpSupply,
		Timestamp:      e.now,
	})
	return &WithdrawResult{Payout: payout, Pool: pool.Clone(), Position: pos.Clone()}, nil
}
