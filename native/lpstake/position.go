package lpstake

import (
	"errors"

	"lpstaking/core/events"
	"lpstaking/crypto"
)

// stakeContext holds the records a staking instruction reads and writes.
type stakeContext struct {
	pool    *PoolState
	rewards *RewardConfig
	pos     *UserPosition
}

// prepare loads the pool, catches the accumulator up to now and settles the
// caller's position against it. Every staking instruction starts here,
// before any balance changes.
func (e *Engine) prepare(caller, poolAddr crypto.Address, create bool) (*stakeContext, error) {
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	if err := e.guard(pool); err != nil {
		return nil, err
	}
	rewards, err := e.loadRewards(pool.Address)
	if err != nil {
		return nil, err
	}
	var pos *UserPosition
	if create {
		pos, err = e.loadOrInitPosition(caller, pool.Address)
	} else {
		pos, err = e.state.GetPosition(caller, pool.Address)
		if err == nil && pos == nil {
			err = ErrPositionNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	if err := advance(rewards, pool.TotalStaked, e.now); err != nil {
		return nil, err
	}
	if err := settle(pos, rewards.AccRewardPerShare); err != nil {
		return nil, err
	}
	return &stakeContext{pool: pool, rewards: rewards, pos: pos}, nil
}

func (e *Engine) persist(ctx *stakeContext) error {
	if err := e.state.PutRewardConfig(ctx.rewards); err != nil {
		return err
	}
	if err := e.state.PutPool(ctx.pool); err != nil {
		return err
	}
	return e.state.PutPosition(ctx.pos)
}

func (e *Engine) stakeEvent(ctx *stakeContext, caller crypto.Address, amount uint64, unstake bool) {
	e.emit(events.LPStakeStakeChanged{
		Unstake:           unstake,
		Pool:              ctx.pool.Address,
		Account:           caller,
		Amount:            amount,
		StakedAmount:      ctx.pos.StakedAmount,
		TotalStaked:       ctx.pool.TotalStaked,
		PendingReward:     ctx.pos.PendingReward,
		AccRewardPerShare: cloneU256(ctx.rewards.AccRewardPerShare).Dec(),
		Timestamp:         e.now,
	})
}

// Stake moves amount of the caller's unstaked shares into the pool's staking
// custody.
func (e *Engine) Stake(caller, poolAddr crypto.Address, amount uint64) (*UserPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	ctx, err := e.prepare(caller, poolAddr, true)
	if err != nil {
		return nil, err
	}
	held, err := e.tokens.Balance(caller, ctx.pool.ShareAsset)
	if err != nil {
		return nil, tokenErr(err)
	}
	if held < amount {
		return nil, ErrInsufficientBalance
	}
	staked, err := checkedAdd(ctx.pos.StakedAmount, amount)
	if err != nil {
		return nil, err
	}
	total, err := checkedAdd(ctx.pool.TotalStaked, amount)
	if err != nil {
		return nil, err
	}
	if total > ctx.pool.TotalLpSupply {
		return nil, ErrInsufficientBalance
	}
	if err := tokenErr(e.tokens.Transfer(ctx.pool.ShareAsset, caller, ctx.pool.Address, amount)); err != nil {
		return nil, err
	}
	ctx.pos.StakedAmount = staked
	ctx.pool.TotalStaked = total
	if err := resetDebt(ctx.pos, ctx.rewards.AccRewardPerShare); err != nil {
		return nil, err
	}
	ctx.pos.LastStakeTime = e.now
	if err := e.syncLPBalance(ctx.pool, ctx.pos); err != nil {
		return nil, err
	}
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	e.stakeEvent(ctx, caller, amount, false)
	return ctx.pos.Clone(), nil
}

// Unstake returns amount of staked shares to the caller.
func (e *Engine) Unstake(caller, poolAddr crypto.Address, amount uint64) (*UserPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	ctx, err := e.prepare(caller, poolAddr, false)
	if errors.Is(err, ErrPositionNotFound) {
		return nil, ErrInsufficientStake
	}
	if err != nil {
		return nil, err
	}
	if amount > ctx.pos.StakedAmount {
		return nil, ErrInsufficientStake
	}
	total, err := checkedSub(ctx.pool.TotalStaked, amount)
	if err != nil {
		return nil, err
	}
	if err := tokenErr(e.tokens.Transfer(ctx.pool.ShareAsset, ctx.pool.Address, caller, amount)); err != nil {
		return nil, err
	}
	ctx.pos.StakedAmount -= amount
	ctx.pool.TotalStaked = total
	if err := resetDebt(ctx.pos, ctx.rewards.AccRewardPerShare); err != nil {
		return nil, err
	}
	if err := e.syncLPBalance(ctx.pool, ctx.pos); err != nil {
		return nil, err
	}
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	e.stakeEvent(ctx, caller, amount, true)
	return ctx.pos.Clone(), nil
}

// ClaimResult reports a reward payout.
type ClaimResult struct {
	Amount   uint64
	Position *UserPosition
}

// Claim pays the caller's entire pending reward out of the pool vault. A
// vault that cannot cover the full amount fails the instruction; there are
// no partial payouts.
func (e *Engine) Claim(caller, poolAddr crypto.Address) (*ClaimResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, err := e.prepare(caller, poolAddr, false)
	if errors.Is(err, ErrPositionNotFound) {
		return nil, ErrNoRewardToClaim
	}
	if err != nil {
		return nil, err
	}
	amount := ctx.pos.PendingReward
	if amount == 0 {
		return nil, ErrNoRewardToClaim
	}
	remaining, err := e.payFromVault(ctx.pool, caller, amount)
	if err != nil {
		return nil, err
	}
	ctx.pos.PendingReward = 0
	ctx.pos.LastClaimTime = e.now
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	e.emit(events.LPStakeClaimed{
		Pool:         ctx.pool.Address,
		Account:      caller,
		Amount:       amount,
		VaultBalance: remaining,
		Timestamp:    e.now,
	})
	return &ClaimResult{Amount: amount, Position: ctx.pos.Clone()}, nil
}

// Position returns owner's position with PendingReward projected to the
// engine clock. Nothing is written.
func (e *Engine) Position(owner, poolAddr crypto.Address) (*UserPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	pos, err := e.state.GetPosition(owner, pool.Address)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	rewards, err := e.loadRewards(pool.Address)
	if err != nil {
		return nil, err
	}
	if err := advance(rewards, pool.TotalStaked, e.now); err != nil {
		return nil, err
	}
	if err := settle(pos, rewards.AccRewardPerShare); err != nil {
		return nil, err
	}
	return pos, nil
}
