package lpstake

import (
	"bytes"
	"errors"
	"testing"

	"lpstaking/core/state"
	"lpstaking/crypto"
	"lpstaking/native/bank"
	nativecommon "lpstaking/native/common"
	"lpstaking/storage"
)

const (
	testCollateral = "USDC"
	testShare      = "LPUSDC"
	testNative     = "NATIVE"
)

func makeAddress(b byte) crypto.Address {
	return crypto.MustAddress(bytes.Repeat([]byte{b}, crypto.AddressLength))
}

type testEnv struct {
	manager   *state.Manager
	store     *StateStore
	ledger    *bank.Ledger
	engine    *Engine
	authority crypto.Address
	alice     crypto.Address
	bob       crypto.Address
	pool      crypto.Address
}

func newTestEnv(t *testing.T, schedule EmissionSchedule) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	env := &testEnv{
		manager:   manager,
		store:     NewStateStore(manager),
		ledger:    bank.NewLedger(manager),
		authority: makeAddress(0xaa),
		alice:     makeAddress(0x01),
		bob:       makeAddress(0x02),
	}
	for _, symbol := range []string{testCollateral, testNative} {
		if err := env.ledger.RegisterToken(symbol, symbol, 9, crypto.Address{}); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
	}
	for _, holder := range []crypto.Address{env.alice, env.bob, env.authority} {
		if err := env.ledger.Mint(testCollateral, crypto.Address{}, holder, 50_000_000_000); err != nil {
			t.Fatalf("mint collateral: %v", err)
		}
		if err := env.ledger.Mint(testNative, crypto.Address{}, holder, 10_000_000); err != nil {
			t.Fatalf("mint native: %v", err)
		}
	}
	env.engine = NewEngine(env.store, env.ledger)
	env.engine.SetNow(1000)
	pool, err := env.engine.Initialize(env.authority, InitParams{
		CollateralAsset: testCollateral,
		ShareAsset:      testShare,
		ShareDecimals:   9,
		NativeAsset:     testNative,
		Emission:        schedule,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	env.pool = pool.Address
	return env
}

func fixedRate(rate uint64) EmissionSchedule {
	return EmissionSchedule{Type: EmissionFixedRate, RatePerUnit: rate}
}

func (env *testEnv) mustPool(t *testing.T) *PoolState {
	t.Helper()
	pool, err := env.store.GetPool(env.pool)
	if err != nil || pool == nil {
		t.Fatalf("load pool: %v", err)
	}
	return pool
}

func (env *testEnv) mustPosition(t *testing.T, owner crypto.Address) *UserPosition {
	t.Helper()
	pos, err := env.store.GetPosition(owner, env.pool)
	if err != nil || pos == nil {
		t.Fatalf("load position: %v", err)
	}
	return pos
}

func (env *testEnv) balance(t *testing.T, owner crypto.Address, asset string) uint64 {
	t.Helper()
	bal, err := env.ledger.Balance(owner, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestInitializeCreatesRecords(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))

	pool := env.mustPool(t)
	if !pool.Address.Equal(PoolAddress(testCollateral, testShare)) {
		t.Fatalf("pool not at derived address")
	}
	if !pool.Vault.Equal(VaultAddress(pool.Address)) {
		t.Fatalf("vault not at derived address")
	}
	if pool.MinDeposit != DefaultMinDeposit {
		t.Fatalf("unexpected min deposit: got %d want %d", pool.MinDeposit, DefaultMinDeposit)
	}
	cfg, err := env.store.GetRewardConfig(env.pool)
	if err != nil || cfg == nil {
		t.Fatalf("reward config: %v", err)
	}
	if !cfg.AccRewardPerShare.IsZero() || cfg.LastUpdateTime != 1000 {
		t.Fatalf("unexpected accumulator: acc=%s last=%d", cfg.AccRewardPerShare.Dec(), cfg.LastUpdateTime)
	}

	_, err = env.engine.Initialize(env.authority, InitParams{
		CollateralAsset: testCollateral, ShareAsset: testShare, NativeAsset: testNative,
		Emission: fixedRate(1),
	})
	if !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists, got %v", err)
	}
}

func TestInitializeValidatesEmission(t *testing.T) {
	env := newTestEnv(t, fixedRate(1))
	cases := []struct {
		schedule EmissionSchedule
		want     error
	}{
		{EmissionSchedule{Type: EmissionBlockBased, DecayFactorBps: 10_001, BlocksPerPeriod: 1}, ErrInvalidDecayFactor},
		{EmissionSchedule{Type: EmissionBlockBased, DecayFactorBps: 9_000}, ErrInvalidBlocksPerPeriod},
		{EmissionSchedule{Type: EmissionType(9)}, ErrInvalidEmissionType},
	}
	for _, tc := range cases {
		_, err := env.engine.Initialize(env.authority, InitParams{
			CollateralAsset: testCollateral, ShareAsset: "OTHER", NativeAsset: testNative,
			Emission: tc.schedule,
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("schedule %+v: got %v want %v", tc.schedule, err, tc.want)
		}
	}
	_, err := env.engine.Initialize(env.authority, InitParams{
		CollateralAsset: "MISSING", ShareAsset: "OTHER", NativeAsset: testNative,
	})
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestDepositBootstrapsOneToOne(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	const deposit = 10_000_000_000

	res, err := env.engine.Deposit(env.alice, env.pool, deposit)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Minted != deposit {
		t.Fatalf("unexpected minted: got %d want %d", res.Minted, deposit)
	}
	pool := env.mustPool(t)
	if pool.TotalDeposited != deposit || pool.TotalLpSupply != deposit {
		t.Fatalf("unexpected totals: deposited=%d supply=%d", pool.TotalDeposited, pool.TotalLpSupply)
	}
	if got := env.balance(t, env.alice, testShare); got != deposit {
		t.Fatalf("unexpected share balance: got %d want %d", got, deposit)
	}
	if got := env.balance(t, pool.CollateralAccount, testCollateral); got != deposit {
		t.Fatalf("collateral not held by pool: got %d", got)
	}
	if pos := env.mustPosition(t, env.alice); pos.LPBalance != deposit {
		t.Fatalf("position lp balance not synced: got %d", pos.LPBalance)
	}
}

func TestDepositProRata(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	res, err := env.engine.Deposit(env.bob, env.pool, 5_000_000_000)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if res.Minted != 5_000_000_000 {
		t.Fatalf("unexpected minted: %d", res.Minted)
	}
	pool := env.mustPool(t)
	if pool.TotalDeposited != 15_000_000_000 || pool.TotalLpSupply != 15_000_000_000 {
		t.Fatalf("unexpected totals: deposited=%d supply=%d", pool.TotalDeposited, pool.TotalLpSupply)
	}
}

func TestDepositBelowMinimumRejected(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	before := env.mustPool(t)

	for _, amount := range []uint64{0, DefaultMinDeposit - 1} {
		if _, err := env.engine.Deposit(env.alice, env.pool, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("deposit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	after := env.mustPool(t)
	if before.TotalDeposited != after.TotalDeposited || before.TotalLpSupply != after.TotalLpSupply {
		t.Fatalf("pool mutated by rejected deposit: %+v vs %+v", before, after)
	}
	if got := env.balance(t, env.alice, testShare); got != 0 {
		t.Fatalf("shares minted by rejected deposit: %d", got)
	}
}

func TestQuoteRoundingFavoursPool(t *testing.T) {
	// 3 collateral backing 2 shares: 1 share redeems floor(1.5) = 1.
	payout, err := QuoteRedeem(3, 2, 1)
	if err != nil {
		t.Fatalf("quote redeem: %v", err)
	}
	if payout != 1 {
		t.Fatalf("unexpected payout: got %d want 1", payout)
	}
	// 2 collateral into the same pool mints floor(2*2/3) = 1 share.
	minted, err := QuoteMint(3, 2, 2)
	if err != nil {
		t.Fatalf("quote mint: %v", err)
	}
	if minted != 1 {
		t.Fatalf("unexpected mint: got %d want 1", minted)
	}
	if _, err := QuoteRedeem(0, 0, 1); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestWithdrawConservation(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Deposit(env.bob, env.pool, 3_333_333_333); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before := env.mustPool(t)
	collateralBefore := env.balance(t, env.alice, testCollateral)

	const burn = 4_000_000_001
	res, err := env.engine.Withdraw(env.alice, env.pool, burn)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	want, _ := MulDiv64(burn, before.TotalDeposited, before.TotalLpSupply, RoundDown)
	if res.Payout != want {
		t.Fatalf("unexpected payout: got %d want %d", res.Payout, want)
	}
	after := env.mustPool(t)
	if before.TotalLpSupply-after.TotalLpSupply != burn {
		t.Fatalf("supply decreased by %d, want %d", before.TotalLpSupply-after.TotalLpSupply, burn)
	}
	if before.TotalDeposited-after.TotalDeposited != want {
		t.Fatalf("deposits decreased by %d, want %d", before.TotalDeposited-after.TotalDeposited, want)
	}
	if got := env.balance(t, env.alice, testCollateral) - collateralBefore; got != want {
		t.Fatalf("caller received %d, want %d", got, want)
	}

	if _, err := env.engine.Withdraw(env.alice, env.pool, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := env.engine.Withdraw(env.alice, env.pool, 10_000_000_000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestFullWithdrawEmptiesPool(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 7_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Withdraw(env.alice, env.pool, 7_000_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	pool := env.mustPool(t)
	if pool.TotalLpSupply != 0 || pool.TotalDeposited != 0 {
		t.Fatalf("pool not emptied: deposited=%d supply=%d", pool.TotalDeposited, pool.TotalLpSupply)
	}
	// The next deposit bootstraps again.
	res, err := env.engine.Deposit(env.bob, env.pool, 2_000_000)
	if err != nil {
		t.Fatalf("re-deposit: %v", err)
	}
	if res.Minted != 2_000_000 {
		t.Fatalf("expected 1:1 bootstrap, minted %d", res.Minted)
	}
}

func TestStakeUnstakeClaimScenario(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.FundVault(env.authority, env.pool, 1_000_000); err != nil {
		t.Fatalf("fund vault: %v", err)
	}

	if _, err := env.engine.Stake(env.alice, env.pool, 5_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.engine.SetNow(1100)
	projected, err := env.engine.Position(env.alice, env.pool)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if projected.PendingReward != 100_000 {
		t.Fatalf("unexpected projected reward: got %d want 100000", projected.PendingReward)
	}

	pos, err := env.engine.Unstake(env.alice, env.pool, 2_000_000_000)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if pos.StakedAmount != 3_000_000_000 {
		t.Fatalf("unexpected staked amount: %d", pos.StakedAmount)
	}
	if pos.PendingReward != 100_000 {
		t.Fatalf("unexpected pending after unstake: %d", pos.PendingReward)
	}
	if pos.LPBalance != 7_000_000_000 {
		t.Fatalf("unexpected lp balance: %d", pos.LPBalance)
	}

	env.engine.SetNow(1200)
	nativeBefore := env.balance(t, env.alice, testNative)
	res, err := env.engine.Claim(env.alice, env.pool)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// acc = 20_000_000 + floor(1e17/3e9) = 53_333_333; 3e9*acc/1e12 = 159_999;
	// owed = 159_999 - 60_000.
	if res.Amount != 199_999 {
		t.Fatalf("unexpected claim amount: got %d want 199999", res.Amount)
	}
	if got := env.balance(t, env.alice, testNative) - nativeBefore; got != res.Amount {
		t.Fatalf("caller received %d, want %d", got, res.Amount)
	}
	stored := env.mustPosition(t, env.alice)
	if stored.PendingReward != 0 || stored.LastClaimTime != 1200 {
		t.Fatalf("position not reset after claim: %+v", stored)
	}
	vault, err := env.engine.Vault(env.pool)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Balance != 1_000_000-199_999 {
		t.Fatalf("unexpected vault balance: %d", vault.Balance)
	}

	if _, err := env.engine.Claim(env.alice, env.pool); !errors.Is(err, ErrNoRewardToClaim) {
		t.Fatalf("expected ErrNoRewardToClaim, got %v", err)
	}
}

func TestClaimRequiresSolventVault(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.FundVault(env.authority, env.pool, 10); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 1_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.engine.SetNow(2000)
	before := env.mustPosition(t, env.alice)

	if _, err := env.engine.Claim(env.alice, env.pool); !errors.Is(err, ErrInsufficientRewardVault) {
		t.Fatalf("expected ErrInsufficientRewardVault, got %v", err)
	}
	after := env.mustPosition(t, env.alice)
	if after.PendingReward != before.PendingReward || after.RewardDebt.Cmp(before.RewardDebt) != 0 {
		t.Fatalf("position mutated by failed claim")
	}
	vault, _ := env.engine.Vault(env.pool)
	if vault.Balance != 10 {
		t.Fatalf("vault debited by failed claim: %d", vault.Balance)
	}
}

func TestStakeUnstakeRoundTrip(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 1_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.engine.SetNow(1500)
	if _, err := env.engine.Stake(env.alice, env.pool, 1); err != nil {
		t.Fatalf("touch stake: %v", err)
	}
	before := env.mustPosition(t, env.alice)

	if _, err := env.engine.Stake(env.alice, env.pool, 3_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	after, err := env.engine.Unstake(env.alice, env.pool, 3_000_000_000)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if after.PendingReward != before.PendingReward {
		t.Fatalf("pending changed across round trip: %d vs %d", after.PendingReward, before.PendingReward)
	}
	if after.StakedAmount != before.StakedAmount {
		t.Fatalf("staked amount not restored: %d vs %d", after.StakedAmount, before.StakedAmount)
	}
}

func TestUnstakeRequiresStake(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Unstake(env.bob, env.pool, 1); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 100); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := env.engine.Unstake(env.alice, env.pool, 101); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 20_000_000_000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRewardsSplitBetweenStakers(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	for _, who := range []crypto.Address{env.alice, env.bob} {
		if _, err := env.engine.Deposit(who, env.pool, 10_000_000_000); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 1_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.engine.SetNow(1100)
	if _, err := env.engine.Stake(env.bob, env.pool, 3_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.engine.SetNow(1200)

	alice, err := env.engine.Position(env.alice, env.pool)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	bob, err := env.engine.Position(env.bob, env.pool)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	// First 100 units all go to alice; the next 100 split 1:3.
	if alice.PendingReward != 125_000 {
		t.Fatalf("unexpected alice reward: %d", alice.PendingReward)
	}
	if bob.PendingReward != 75_000 {
		t.Fatalf("unexpected bob reward: %d", bob.PendingReward)
	}
}

func TestNoAccrualWhileNothingStaked(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.engine.SetNow(5000)
	if _, err := env.engine.Stake(env.alice, env.pool, 1_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	cfg, err := env.store.GetRewardConfig(env.pool)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !cfg.AccRewardPerShare.IsZero() || cfg.LastUpdateTime != 5000 {
		t.Fatalf("emission banked while idle: acc=%s last=%d", cfg.AccRewardPerShare.Dec(), cfg.LastUpdateTime)
	}
	pos := env.mustPosition(t, env.alice)
	if pos.PendingReward != 0 {
		t.Fatalf("unexpected pending: %d", pos.PendingReward)
	}
}

func TestUpdateEmissionRequiresAuthority(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 1_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := env.engine.UpdateEmission(env.alice, env.pool, fixedRate(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	env.engine.SetNow(1100)
	cfg, err := env.engine.UpdateEmission(env.authority, env.pool, fixedRate(0))
	if err != nil {
		t.Fatalf("update emission: %v", err)
	}
	// 100 units at the old rate were accrued before the switch.
	if cfg.AccRewardPerShare.Uint64() != 100_000_000 {
		t.Fatalf("unexpected accumulator: %s", cfg.AccRewardPerShare.Dec())
	}
	env.engine.SetNow(5000)
	pos, err := env.engine.Position(env.alice, env.pool)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.PendingReward != 100_000 {
		t.Fatalf("unexpected pending after rate cut: %d", pos.PendingReward)
	}
}

func TestPausedPoolRejectsUserInstructions(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	if err := env.engine.SetPaused(env.alice, env.pool, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SetPaused(env.authority, env.pool, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := env.engine.Stake(env.alice, env.pool, 1); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := env.engine.SetPaused(env.authority, env.pool, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); err != nil {
		t.Fatalf("deposit after resume: %v", err)
	}
}

func TestModulePauseGuard(t *testing.T) {
	env := newTestEnv(t, fixedRate(1000))
	env.engine.SetPauses(nativecommon.StaticPauses{moduleName: true})
	if _, err := env.engine.Deposit(env.alice, env.pool, 10_000_000_000); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
