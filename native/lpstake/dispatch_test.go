package lpstake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"lpstaking/core/events"
	"lpstaking/core/state"
	"lpstaking/crypto"
	"lpstaking/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

func genesisText(authority, alice crypto.Address) string {
	return fmt.Sprintf(`
[[tokens]]
Symbol = "USDC"
Name = "USD Coin"

[[tokens]]
Symbol = "NATIVE"

[[balances]]
Address = %q
Asset = "USDC"
Amount = 50000000000

[[balances]]
Address = %q
Asset = "NATIVE"
Amount = 5000000

[[pools]]
Authority = %q
CollateralAsset = "USDC"
ShareAsset = "LPUSDC"
NativeAsset = "NATIVE"
EmissionRate = 1000
VaultFunding = 1000000
`, alice.String(), authority.String(), authority.String())
}

type processorEnv struct {
	db        *storage.MemDB
	manager   *state.Manager
	proc      *Processor
	sink      *recordingEmitter
	now       uint64
	authority crypto.Address
	alice     crypto.Address
	pool      crypto.Address
}

func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()
	env := &processorEnv{
		db:        storage.NewMemDB(),
		sink:      &recordingEmitter{},
		now:       1000,
		authority: makeAddress(0xaa),
		alice:     makeAddress(0x01),
	}
	env.manager = state.NewManager(env.db)
	env.proc = NewProcessor(env.manager,
		WithClock(func() uint64 { return env.now }),
		WithSink(env.sink))

	cfg, err := ParseConfig(genesisText(env.authority, env.alice))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	pools, err := env.proc.ApplyGenesis(context.Background(), cfg)
	if err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected one pool, got %d", len(pools))
	}
	env.pool = pools[0]
	return env
}

func (env *processorEnv) exec(t *testing.T, ins Instruction) *Receipt {
	t.Helper()
	receipt, err := env.proc.Execute(context.Background(), ins)
	if err != nil {
		t.Fatalf("%s: %v", ins.Kind, err)
	}
	return receipt
}

func TestGenesisSeedsLedger(t *testing.T) {
	env := newProcessorEnv(t)
	if env.manager.Pending() != 0 {
		t.Fatalf("genesis left %d uncommitted writes", env.manager.Pending())
	}
	bal, err := env.proc.Balance(env.alice, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 50_000_000_000 {
		t.Fatalf("unexpected opening balance: %d", bal)
	}
	vault, err := env.proc.Vault(env.pool)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Balance != 1_000_000 {
		t.Fatalf("unexpected vault balance: %d", vault.Balance)
	}

	// A restarted daemon replays the same genesis without double crediting.
	cfg, err := ParseConfig(genesisText(env.authority, env.alice))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	if _, err := env.proc.ApplyGenesis(context.Background(), cfg); err != nil {
		t.Fatalf("replay genesis: %v", err)
	}
	bal, _ = env.proc.Balance(env.alice, "USDC")
	vault, _ = env.proc.Vault(env.pool)
	if bal != 50_000_000_000 || vault.Balance != 1_000_000 {
		t.Fatalf("replay credited twice: balance=%d vault=%d", bal, vault.Balance)
	}
	pools, err := env.proc.Pools()
	if err != nil || len(pools) != 1 {
		t.Fatalf("pools: %d %v", len(pools), err)
	}
}

func TestExecuteCommitsAndPublishes(t *testing.T) {
	env := newProcessorEnv(t)

	receipt := env.exec(t, Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	if receipt.Kind != string(KindDeposit) || receipt.Pool != env.pool.String() {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if len(receipt.Events) != 1 || receipt.Events[0].Type != events.TypeLPStakeDeposited {
		t.Fatalf("unexpected receipt events: %+v", receipt.Events)
	}
	if receipt.Events[0].Attributes["minted"] != "10000000000" {
		t.Fatalf("unexpected minted attribute: %v", receipt.Events[0].Attributes)
	}
	if env.manager.Pending() != 0 {
		t.Fatalf("instruction left %d uncommitted writes", env.manager.Pending())
	}
	if got := env.sink.types(); len(got) != 1 || got[0] != events.TypeLPStakeDeposited {
		t.Fatalf("unexpected published events: %v", got)
	}

	res, ok := receipt.Result.(*DepositResult)
	if !ok || res.Minted != 10_000_000_000 {
		t.Fatalf("unexpected result: %#v", receipt.Result)
	}

	// Reopening the state over the same database sees the committed pool.
	reopened := NewProcessor(state.NewManager(env.db), WithClock(func() uint64 { return env.now }))
	pool, err := reopened.Pool(env.pool)
	if err != nil {
		t.Fatalf("reopened pool: %v", err)
	}
	if pool.TotalDeposited != 10_000_000_000 {
		t.Fatalf("deposit not persisted: %d", pool.TotalDeposited)
	}
}

func TestExecuteRollsBackFailedInstruction(t *testing.T) {
	env := newProcessorEnv(t)
	env.exec(t, Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	published := len(env.sink.events)

	// Pausing share mints makes the deposit fail after the collateral moved.
	if err := env.manager.SetTokenMintPaused("LPUSDC", true); err != nil {
		t.Fatalf("pause mint: %v", err)
	}
	if err := env.manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before, _ := env.proc.Balance(env.alice, "USDC")
	keys := len(env.db.Keys())

	_, err := env.proc.Execute(context.Background(), Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 5_000_000_000})
	if err == nil {
		t.Fatalf("expected deposit to fail")
	}
	after, _ := env.proc.Balance(env.alice, "USDC")
	if after != before {
		t.Fatalf("collateral debited by failed instruction: %d -> %d", before, after)
	}
	if env.manager.Pending() != 0 {
		t.Fatalf("failed instruction left %d writes", env.manager.Pending())
	}
	if len(env.db.Keys()) != keys {
		t.Fatalf("failed instruction reached the database")
	}
	if len(env.sink.events) != published {
		t.Fatalf("failed instruction published events: %v", env.sink.types()[published:])
	}
	pool, _ := env.proc.Pool(env.pool)
	if pool.TotalDeposited != 10_000_000_000 {
		t.Fatalf("pool totals changed: %d", pool.TotalDeposited)
	}
}

func TestExecuteClaimFlow(t *testing.T) {
	env := newProcessorEnv(t)
	env.exec(t, Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	env.exec(t, Instruction{Kind: KindStake, Caller: env.alice, Pool: env.pool, Amount: 5_000_000_000})

	env.now = 1100
	pos, err := env.proc.Position(env.alice, env.pool)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.PendingReward != 100_000 {
		t.Fatalf("unexpected projected reward: %d", pos.PendingReward)
	}
	positions, err := env.proc.Positions(env.pool)
	if err != nil || len(positions) != 1 {
		t.Fatalf("positions: %d %v", len(positions), err)
	}
	rewards, err := env.proc.Rewards(env.pool)
	if err != nil {
		t.Fatalf("rewards: %v", err)
	}
	if rewards.AccRewardPerShare.Uint64() != 20_000_000 {
		t.Fatalf("unexpected projected accumulator: %s", rewards.AccRewardPerShare.Dec())
	}

	receipt := env.exec(t, Instruction{Kind: KindClaim, Caller: env.alice, Pool: env.pool})
	res := receipt.Result.(*ClaimResult)
	if res.Amount != 100_000 {
		t.Fatalf("unexpected claim: %d", res.Amount)
	}
	bal, _ := env.proc.Balance(env.alice, "NATIVE")
	if bal != 100_000 {
		t.Fatalf("reward not paid: %d", bal)
	}
}

func TestReceiptIDsAreUnique(t *testing.T) {
	env := newProcessorEnv(t)
	env.exec(t, Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		receipt := env.exec(t, Instruction{Kind: KindStake, Caller: env.alice, Pool: env.pool, Amount: 1_000_000})
		if len(receipt.ID) != 64 {
			t.Fatalf("unexpected receipt id %q", receipt.ID)
		}
		if seen[receipt.ID] {
			t.Fatalf("duplicate receipt id %s", receipt.ID)
		}
		seen[receipt.ID] = true
	}
}

func TestExecuteFailsOnUnreadableSequence(t *testing.T) {
	env := newProcessorEnv(t)
	if err := env.manager.KVPut(sequenceKey, []uint64{1, 2}); err != nil {
		t.Fatalf("corrupt sequence: %v", err)
	}
	if err := env.manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before, err := env.proc.Ledger().Balance(env.alice, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	published := len(env.sink.events)

	_, err = env.proc.Execute(context.Background(), Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	if err == nil || !strings.Contains(err.Error(), "read sequence") {
		t.Fatalf("expected sequence read failure, got %v", err)
	}
	if env.manager.Pending() != 0 {
		t.Fatalf("failed instruction left %d pending writes", env.manager.Pending())
	}
	after, err := env.proc.Ledger().Balance(env.alice, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if after != before {
		t.Fatalf("balance moved from %d to %d", before, after)
	}
	if len(env.sink.events) != published {
		t.Fatalf("events published for a failed instruction")
	}
}

func TestExecuteLogsOutcome(t *testing.T) {
	env := newProcessorEnv(t)
	var logs bytes.Buffer
	proc := NewProcessor(env.manager,
		WithClock(func() uint64 { return env.now }),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	if _, err := proc.Execute(context.Background(), Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !strings.Contains(logs.String(), `"outcome":"ok"`) {
		t.Fatalf("success log missing ok outcome: %s", logs.String())
	}
	logs.Reset()
	if _, err := proc.Execute(context.Background(), Instruction{Kind: KindWithdraw, Caller: env.alice, Pool: env.pool, Amount: 1 << 62}); err == nil {
		t.Fatalf("expected oversized withdraw to fail")
	}
	if !strings.Contains(logs.String(), `"outcome":"insufficient_balance"`) {
		t.Fatalf("rejection log missing error code: %s", logs.String())
	}
}

func TestExecuteAuthorityInstructions(t *testing.T) {
	env := newProcessorEnv(t)
	schedule := EmissionSchedule{Type: EmissionBlockBased, InitialBlockRate: 500, DecayFactorBps: 9000, BlocksPerPeriod: 3600}

	_, err := env.proc.Execute(context.Background(), Instruction{Kind: KindUpdateEmission, Caller: env.alice, Pool: env.pool, Emission: &schedule})
	if !errors.Is(err, ErrUnauthorized) || ErrorCode(err) != "unauthorized" {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	env.exec(t, Instruction{Kind: KindUpdateEmission, Caller: env.authority, Pool: env.pool, Emission: &schedule})
	cfg, err := env.proc.Rewards(env.pool)
	if err != nil {
		t.Fatalf("rewards: %v", err)
	}
	if cfg.Emission.Type != EmissionBlockBased || cfg.Emission.StartTime != 1000 {
		t.Fatalf("schedule not applied: %+v", cfg.Emission)
	}

	env.exec(t, Instruction{Kind: KindSetPaused, Caller: env.authority, Pool: env.pool, Paused: true})
	_, err = env.proc.Execute(context.Background(), Instruction{Kind: KindDeposit, Caller: env.alice, Pool: env.pool, Amount: 10_000_000_000})
	if ErrorCode(err) != "paused" {
		t.Fatalf("expected paused, got %v", err)
	}
	_, err = env.proc.Execute(context.Background(), Instruction{Kind: "mint_everything", Caller: env.alice})
	if err == nil || ErrorCode(err) != "internal" {
		t.Fatalf("expected unknown instruction to fail, got %v", err)
	}
}

func TestExecuteInitializeSecondPool(t *testing.T) {
	env := newProcessorEnv(t)
	receipt := env.exec(t, Instruction{
		Kind:   KindInitialize,
		Caller: env.authority,
		Init: &InitParams{
			CollateralAsset: "NATIVE",
			ShareAsset:      "LPNATIVE",
			NativeAsset:     "NATIVE",
			Emission:        EmissionSchedule{Type: EmissionFixedRate, RatePerUnit: 5},
		},
	})
	if receipt.Pool != PoolAddress("NATIVE", "LPNATIVE").String() {
		t.Fatalf("unexpected pool address %s", receipt.Pool)
	}
	pools, err := env.proc.Pools()
	if err != nil || len(pools) != 2 {
		t.Fatalf("expected two pools, got %d (%v)", len(pools), err)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		nil:                                 "",
		ErrInsufficientRewardVault:          "insufficient_reward_vault",
		fmt.Errorf("wrap: %w", ErrEmptyPool): "empty_pool",
		ErrModulePaused:                     "paused",
		errors.New("disk on fire"):          "internal",
	}
	for err, want := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig(`
[[pools]]
Authority = "lp1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
Bogus = 1
`)
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	authority := makeAddress(0x09)
	cfg, err := ParseConfig(fmt.Sprintf(`
[[tokens]]
Symbol = "usdc"

[[pools]]
Authority = %q
CollateralAsset = "USDC"
ShareAsset = "LPUSDC"
NativeAsset = "NATIVE"
EmissionType = "block_based"
InitialBlockRate = 100
DecayFactorBps = 9500
BlocksPerPeriod = 60
`, authority.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Tokens[0].Decimals != DefaultDecimals || cfg.Tokens[0].Name != "USDC" {
		t.Fatalf("token defaults not applied: %+v", cfg.Tokens[0])
	}
	pool := cfg.Pools[0]
	if pool.MinDeposit != DefaultMinDeposit {
		t.Fatalf("min deposit default not applied: %d", pool.MinDeposit)
	}
	schedule, err := pool.Schedule()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if schedule.Type != EmissionBlockBased || schedule.DecayFactorBps != 9500 {
		t.Fatalf("unexpected schedule: %+v", schedule)
	}

	_, err = ParseConfig(fmt.Sprintf(`
[[pools]]
Authority = %q
EmissionType = "block_based"
DecayFactorBps = 20000
BlocksPerPeriod = 1
`, authority.String()))
	if !errors.Is(err, ErrInvalidDecayFactor) {
		t.Fatalf("expected ErrInvalidDecayFactor, got %v", err)
	}
}
