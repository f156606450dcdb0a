package lpstake

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestFixedRateEmission(t *testing.T) {
	s := EmissionSchedule{Type: EmissionFixedRate, RatePerUnit: 250}
	got, err := s.Emitted(100, 140)
	if err != nil {
		t.Fatalf("emitted: %v", err)
	}
	if got.Uint64() != 10_000 {
		t.Fatalf("unexpected emission: %s", got.Dec())
	}
	if got, _ := s.Emitted(140, 100); !got.IsZero() {
		t.Fatalf("expected zero for reversed window, got %s", got.Dec())
	}
}

func TestBlockBasedEmissionDecaysPerPeriod(t *testing.T) {
	s := EmissionSchedule{
		Type:             EmissionBlockBased,
		InitialBlockRate: 1000,
		DecayFactorBps:   5000,
		BlocksPerPeriod:  10,
	}
	cases := []struct {
		from, to uint64
		want     uint64
	}{
		{0, 25, 10*1000 + 10*500 + 5*250},
		{5, 15, 5*1000 + 5*500},
		{20, 30, 10 * 250},
		{0, 10, 10_000},
	}
	for _, tc := range cases {
		got, err := s.Emitted(tc.from, tc.to)
		if err != nil {
			t.Fatalf("emitted(%d, %d): %v", tc.from, tc.to, err)
		}
		if got.Uint64() != tc.want {
			t.Fatalf("emitted(%d, %d) = %s, want %d", tc.from, tc.to, got.Dec(), tc.want)
		}
	}
	rate, err := s.RateAt(35)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate != 125 {
		t.Fatalf("unexpected rate at 35: %d", rate)
	}
}

func TestBlockBasedEmissionSplitsAdditively(t *testing.T) {
	s := EmissionSchedule{
		Type:             EmissionBlockBased,
		InitialBlockRate: 777,
		DecayFactorBps:   9_300,
		BlocksPerPeriod:  7,
		StartTime:        40,
	}
	whole, err := s.Emitted(40, 200)
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	sum := new(uint256.Int)
	for from := uint64(40); from < 200; from += 13 {
		to := from + 13
		if to > 200 {
			to = 200
		}
		part, err := s.Emitted(from, to)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		sum.Add(sum, part)
	}
	if sum.Cmp(whole) != 0 {
		t.Fatalf("split emission %s differs from whole %s", sum.Dec(), whole.Dec())
	}
}

func TestBlockBasedEdgeFactors(t *testing.T) {
	constant := EmissionSchedule{Type: EmissionBlockBased, InitialBlockRate: 1000, DecayFactorBps: BasisPoints, BlocksPerPeriod: 10}
	got, err := constant.Emitted(0, 1000)
	if err != nil {
		t.Fatalf("constant: %v", err)
	}
	if got.Uint64() != 1_000_000 {
		t.Fatalf("constant schedule emitted %s", got.Dec())
	}

	oneShot := EmissionSchedule{Type: EmissionBlockBased, InitialBlockRate: 1000, DecayFactorBps: 0, BlocksPerPeriod: 10}
	got, err = oneShot.Emitted(0, 30)
	if err != nil {
		t.Fatalf("zero factor: %v", err)
	}
	if got.Uint64() != 10_000 {
		t.Fatalf("zero-factor schedule emitted %s", got.Dec())
	}
}

func TestEmissionValidation(t *testing.T) {
	cases := []struct {
		s    EmissionSchedule
		want error
	}{
		{EmissionSchedule{Type: EmissionFixedRate}, nil},
		{EmissionSchedule{Type: EmissionBlockBased, DecayFactorBps: BasisPoints, BlocksPerPeriod: 1}, nil},
		{EmissionSchedule{Type: EmissionBlockBased, DecayFactorBps: BasisPoints + 1, BlocksPerPeriod: 1}, ErrInvalidDecayFactor},
		{EmissionSchedule{Type: EmissionBlockBased, DecayFactorBps: 100}, ErrInvalidBlocksPerPeriod},
		{EmissionSchedule{Type: EmissionType(7)}, ErrInvalidEmissionType},
	}
	for i, tc := range cases {
		if err := tc.s.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: got %v want %v", i, err, tc.want)
		}
	}
}

func TestAccumulatorMonotonic(t *testing.T) {
	cfg := &RewardConfig{
		Emission:          EmissionSchedule{Type: EmissionFixedRate, RatePerUnit: 3},
		AccRewardPerShare: new(uint256.Int),
		LastUpdateTime:    10,
	}
	prev := new(uint256.Int)
	for _, now := range []uint64{10, 11, 11, 50, 49, 400, 401} {
		if err := advance(cfg, 7_000_000_000, now); err != nil {
			t.Fatalf("advance(%d): %v", now, err)
		}
		if cfg.AccRewardPerShare.Lt(prev) {
			t.Fatalf("accumulator decreased at %d: %s < %s", now, cfg.AccRewardPerShare.Dec(), prev.Dec())
		}
		prev = cfg.AccRewardPerShare.Clone()
	}
	if cfg.LastUpdateTime != 401 {
		t.Fatalf("unexpected last update: %d", cfg.LastUpdateTime)
	}
}

func TestAdvanceIdleOnlyMovesClock(t *testing.T) {
	cfg := &RewardConfig{
		Emission:          EmissionSchedule{Type: EmissionFixedRate, RatePerUnit: 1000},
		AccRewardPerShare: uint256.NewInt(42),
		LastUpdateTime:    100,
	}
	if err := advance(cfg, 0, 500); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if cfg.AccRewardPerShare.Uint64() != 42 || cfg.LastUpdateTime != 500 {
		t.Fatalf("unexpected state: acc=%s last=%d", cfg.AccRewardPerShare.Dec(), cfg.LastUpdateTime)
	}
}

func TestSettleIdempotent(t *testing.T) {
	pos := &UserPosition{StakedAmount: 5_000_000_000, RewardDebt: new(uint256.Int)}
	acc := uint256.NewInt(20_000_000)
	if err := settle(pos, acc); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if pos.PendingReward != 100_000 {
		t.Fatalf("unexpected pending: %d", pos.PendingReward)
	}
	for i := 0; i < 3; i++ {
		if err := settle(pos, acc); err != nil {
			t.Fatalf("settle again: %v", err)
		}
	}
	if pos.PendingReward != 100_000 {
		t.Fatalf("repeated settle changed pending: %d", pos.PendingReward)
	}
}

func TestSettleRejectsOverflowingPending(t *testing.T) {
	pos := &UserPosition{StakedAmount: 1, RewardDebt: new(uint256.Int), PendingReward: ^uint64(0)}
	acc := uint256.NewInt(2 * RewardScale)
	if err := settle(pos, acc); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestMulDivRounding(t *testing.T) {
	down, err := MulDiv64(7, 3, 2, RoundDown)
	if err != nil || down != 10 {
		t.Fatalf("round down: %d %v", down, err)
	}
	up, err := MulDiv64(7, 3, 2, RoundUp)
	if err != nil || up != 11 {
		t.Fatalf("round up: %d %v", up, err)
	}
	if _, err := MulDiv64(^uint64(0), 2, 1, RoundDown); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	// Intermediate products wider than 64 bits are fine when the result fits.
	wide, err := MulDiv64(^uint64(0), ^uint64(0), ^uint64(0), RoundDown)
	if err != nil || wide != ^uint64(0) {
		t.Fatalf("wide intermediate: %d %v", wide, err)
	}
}
