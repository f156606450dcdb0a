package lpstake

import (
	"github.com/holiman/uint256"
)

// Emitted returns the reward units the schedule releases over [from, to).
func (s EmissionSchedule) Emitted(from, to uint64) (*uint256.Int, error) {
	if to <= from {
		return new(uint256.Int), nil
	}
	switch s.Type {
	case EmissionFixedRate:
		elapsed := uint256.NewInt(to - from)
		out, overflow := new(uint256.Int).MulOverflow(elapsed, uint256.NewInt(s.RatePerUnit))
		if overflow {
			return nil, ErrArithmeticOverflow
		}
		return out, nil
	case EmissionBlockBased:
		return s.blockBasedEmitted(from, to)
	default:
		return nil, ErrInvalidEmissionType
	}
}

// RateAt returns the per-unit emission rate in force at time t.
func (s EmissionSchedule) RateAt(t uint64) (uint64, error) {
	switch s.Type {
	case EmissionFixedRate:
		return s.RatePerUnit, nil
	case EmissionBlockBased:
		if s.BlocksPerPeriod == 0 {
			return 0, ErrInvalidBlocksPerPeriod
		}
		if t < s.StartTime {
			t = s.StartTime
		}
		return s.decayedRate((t - s.StartTime) / s.BlocksPerPeriod)
	default:
		return 0, ErrInvalidEmissionType
	}
}

// decayedRate applies the decay factor period times, flooring after each step.
// A floored rate reaches zero in a bounded number of steps whenever the factor
// is below 10000, so the loop terminates early.
func (s EmissionSchedule) decayedRate(period uint64) (uint64, error) {
	rate := s.InitialBlockRate
	if s.DecayFactorBps == BasisPoints {
		return rate, nil
	}
	for i := uint64(0); i < period && rate > 0; i++ {
		next, err := MulDiv64(rate, s.DecayFactorBps, BasisPoints, RoundDown)
		if err != nil {
			return 0, err
		}
		rate = next
	}
	return rate, nil
}

// blockBasedEmitted integrates the decaying rate one period segment at a time
// so that every segment is priced at its own period's rate.
func (s EmissionSchedule) blockBasedEmitted(from, to uint64) (*uint256.Int, error) {
	if s.BlocksPerPeriod == 0 {
		return nil, ErrInvalidBlocksPerPeriod
	}
	if from < s.StartTime {
		from = s.StartTime
	}
	total := new(uint256.Int)
	if to <= from {
		return total, nil
	}
	period := (from - s.StartTime) / s.BlocksPerPeriod
	rate, err := s.decayedRate(period)
	if err != nil {
		return nil, err
	}
	cursor := from
	for cursor < to && rate > 0 {
		segEnd := to
		if s.DecayFactorBps != BasisPoints {
			// Start + (period+1)*BlocksPerPeriod, saturating at the horizon.
			offset, err := checkedMul(period+1, s.BlocksPerPeriod)
			if err == nil {
				if boundary, err := checkedAdd(s.StartTime, offset); err == nil && boundary < to {
					segEnd = boundary
				}
			}
		}
		segment, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(segEnd-cursor), uint256.NewInt(rate))
		if overflow {
			return nil, ErrArithmeticOverflow
		}
		if total, err = addU256(total, segment); err != nil {
			return nil, err
		}
		cursor = segEnd
		period++
		if rate, err = MulDiv64(rate, s.DecayFactorBps, BasisPoints, RoundDown); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// advance brings the accumulator up to now. With nothing staked the clock
// moves forward and the elapsed emission is not attributed to anyone.
func advance(cfg *RewardConfig, totalStaked, now uint64) error {
	if now <= cfg.LastUpdateTime {
		return nil
	}
	if totalStaked == 0 {
		cfg.LastUpdateTime = now
		return nil
	}
	emitted, err := cfg.Emission.Emitted(cfg.LastUpdateTime, now)
	if err != nil {
		return err
	}
	increment, err := MulDiv(emitted, rewardScale, uint256.NewInt(totalStaked), RoundDown)
	if err != nil {
		return err
	}
	acc, err := addU256(cloneU256(cfg.AccRewardPerShare), increment)
	if err != nil {
		return err
	}
	cfg.AccRewardPerShare = acc
	cfg.LastUpdateTime = now
	return nil
}

// accumulatedFor prices staked against the accumulator in reward units.
func accumulatedFor(staked uint64, acc *uint256.Int) (*uint256.Int, error) {
	return MulDiv(uint256.NewInt(staked), cloneU256(acc), rewardScale, RoundDown)
}

// settle credits everything accrued since the last settlement to
// PendingReward and moves RewardDebt up to the current accumulator, so a
// second call without an intervening advance adds nothing. It must run
// against the pre-mutation StakedAmount.
func settle(pos *UserPosition, acc *uint256.Int) error {
	accumulated, err := accumulatedFor(pos.StakedAmount, acc)
	if err != nil {
		return err
	}
	owed, err := subU256(accumulated, cloneU256(pos.RewardDebt))
	if err != nil {
		return err
	}
	owed64, err := toU64(owed)
	if err != nil {
		return err
	}
	pending, err := checkedAdd(pos.PendingReward, owed64)
	if err != nil {
		return err
	}
	pos.PendingReward = pending
	pos.RewardDebt = accumulated
	return nil
}

// resetDebt pins RewardDebt to the position's current stake.
func resetDebt(pos *UserPosition, acc *uint256.Int) error {
	debt, err := accumulatedFor(pos.StakedAmount, acc)
	if err != nil {
		return err
	}
	pos.RewardDebt = debt
	return nil
}
