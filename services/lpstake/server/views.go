package server

import (
	"lpstaking/core/types"
	"lpstaking/native/lpstake"
	"lpstaking/services/lpstake/indexer"
)

// Amount carries a value in base units alongside its display form.
type Amount struct {
	Units   uint64 `json:"units,string"`
	Display string `json:"display"`
}

type poolView struct {
	Address           string      `json:"address"`
	Authority         string      `json:"authority"`
	CollateralAsset   string      `json:"collateral_asset"`
	ShareAsset        string      `json:"share_asset"`
	NativeAsset       string      `json:"native_asset"`
	CollateralAccount string      `json:"collateral_account"`
	Vault             string      `json:"vault"`
	TotalDeposited    Amount      `json:"total_deposited"`
	TotalLpSupply     Amount      `json:"total_lp_supply"`
	TotalStaked       Amount      `json:"total_staked"`
	MinDeposit        Amount      `json:"min_deposit"`
	Paused            bool        `json:"paused"`
	CreatedAt         uint64      `json:"created_at"`
	Rewards           *rewardView `json:"rewards,omitempty"`
}

type emissionView struct {
	Type             string `json:"type"`
	RatePerUnit      uint64 `json:"rate_per_unit,omitempty"`
	InitialBlockRate uint64 `json:"initial_block_rate,omitempty"`
	DecayFactorBps   uint64 `json:"decay_factor_bps,omitempty"`
	BlocksPerPeriod  uint64 `json:"blocks_per_period,omitempty"`
	StartTime        uint64 `json:"start_time,omitempty"`
}

type rewardView struct {
	Emission          emissionView `json:"emission"`
	AccRewardPerShare string       `json:"acc_reward_per_share"`
	LastUpdateTime    uint64       `json:"last_update_time"`
}

type positionView struct {
	Address       string `json:"address"`
	Owner         string `json:"owner"`
	Pool          string `json:"pool"`
	LPBalance     Amount `json:"lp_balance"`
	StakedAmount  Amount `json:"staked_amount"`
	RewardDebt    string `json:"reward_debt"`
	PendingReward Amount `json:"pending_reward"`
	LastStakeTime uint64 `json:"last_stake_time"`
	LastClaimTime uint64 `json:"last_claim_time"`
}

type vaultView struct {
	Address string `json:"address"`
	Pool    string `json:"pool"`
	Asset   string `json:"asset"`
	Balance Amount `json:"balance"`
}

type receiptView struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Pool      string         `json:"pool"`
	Caller    string         `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
	Events    []*types.Event `json:"events"`
	Result    any            `json:"result,omitempty"`
}

type eventView struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// precision resolves asset decimals for rendering.
type precision func(asset string) uint8

func (p precision) amount(units uint64, asset string) Amount {
	return Amount{Units: units, Display: FormatAmount(units, p(asset))}
}

func newEmissionView(s lpstake.EmissionSchedule) emissionView {
	return emissionView{
		Type:             s.Type.String(),
		RatePerUnit:      s.RatePerUnit,
		InitialBlockRate: s.InitialBlockRate,
		DecayFactorBps:   s.DecayFactorBps,
		BlocksPerPeriod:  s.BlocksPerPeriod,
		StartTime:        s.StartTime,
	}
}

func newRewardView(cfg *lpstake.RewardConfig) *rewardView {
	if cfg == nil {
		return nil
	}
	acc := "0"
	if cfg.AccRewardPerShare != nil {
		acc = cfg.AccRewardPerShare.Dec()
	}
	return &rewardView{
		Emission:          newEmissionView(cfg.Emission),
		AccRewardPerShare: acc,
		LastUpdateTime:    cfg.LastUpdateTime,
	}
}

func (p precision) pool(pool *lpstake.PoolState, rewards *lpstake.RewardConfig) poolView {
	return poolView{
		Address:           pool.Address.String(),
		Authority:         pool.Authority.String(),
		CollateralAsset:   pool.CollateralAsset,
		ShareAsset:        pool.ShareAsset,
		NativeAsset:       pool.NativeAsset,
		CollateralAccount: pool.CollateralAccount.String(),
		Vault:             pool.Vault.String(),
		TotalDeposited:    p.amount(pool.TotalDeposited, pool.CollateralAsset),
		TotalLpSupply:     p.amount(pool.TotalLpSupply, pool.ShareAsset),
		TotalStaked:       p.amount(pool.TotalStaked, pool.ShareAsset),
		MinDeposit:        p.amount(pool.MinDeposit, pool.CollateralAsset),
		Paused:            pool.Paused,
		CreatedAt:         pool.CreatedAt,
		Rewards:           newRewardView(rewards),
	}
}

func (p precision) position(pos *lpstake.UserPosition, pool *lpstake.PoolState) positionView {
	debt := "0"
	if pos.RewardDebt != nil {
		debt = pos.RewardDebt.Dec()
	}
	return positionView{
		Address:       pos.Address.String(),
		Owner:         pos.Owner.String(),
		Pool:          pos.Pool.String(),
		LPBalance:     p.amount(pos.LPBalance, pool.ShareAsset),
		StakedAmount:  p.amount(pos.StakedAmount, pool.ShareAsset),
		RewardDebt:    debt,
		PendingReward: p.amount(pos.PendingReward, pool.NativeAsset),
		LastStakeTime: pos.LastStakeTime,
		LastClaimTime: pos.LastClaimTime,
	}
}

func (p precision) vault(v *lpstake.VaultState) vaultView {
	return vaultView{
		Address: v.Address.String(),
		Pool:    v.Pool.String(),
		Asset:   v.Asset,
		Balance: p.amount(v.Balance, v.Asset),
	}
}

// result renders the typed instruction result carried on a receipt. pool is
// the pool the instruction ran against, nil for initialize.
func (p precision) result(res any, pool *lpstake.PoolState) any {
	switch r := res.(type) {
	case *lpstake.PoolState:
		return p.pool(r, nil)
	case *lpstake.DepositResult:
		return map[string]any{
			"minted":   p.amount(r.Minted, r.Pool.ShareAsset),
			"pool":     p.pool(r.Pool, nil),
			"position": p.position(r.Position, r.Pool),
		}
	case *lpstake.WithdrawResult:
		return map[string]any{
			"payout":   p.amount(r.Payout, r.Pool.CollateralAsset),
			"pool":     p.pool(r.Pool, nil),
			"position": p.position(r.Position, r.Pool),
		}
	case *lpstake.UserPosition:
		if pool == nil {
			return nil
		}
		return p.position(r, pool)
	case *lpstake.ClaimResult:
		if pool == nil {
			return nil
		}
		return map[string]any{
			"amount":   p.amount(r.Amount, pool.NativeAsset),
			"position": p.position(r.Position, pool),
		}
	case *lpstake.VaultState:
		return p.vault(r)
	case *lpstake.RewardConfig:
		return newRewardView(r)
	default:
		return nil
	}
}

func newReceiptView(receipt *lpstake.Receipt, result any) receiptView {
	return receiptView{
		ID:        receipt.ID,
		Kind:      receipt.Kind,
		Pool:      receipt.Pool,
		Caller:    receipt.Caller,
		Timestamp: receipt.Timestamp,
		Events:    receipt.Events,
		Result:    result,
	}
}

func newEventView(rec indexer.EventRecord) (eventView, error) {
	evt, err := rec.Decode()
	if err != nil {
		return eventView{}, err
	}
	return eventView{ID: rec.ID.String(), Seq: rec.Seq, Type: evt.Type, Attributes: evt.Attributes}, nil
}
