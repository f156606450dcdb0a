package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"lpstaking/cmd/internal/passphrase"
	"lpstaking/core/state"
	"lpstaking/crypto"
	"lpstaking/native/lpstake"
	"lpstaking/services/lpstake/server"
	"lpstaking/storage"
)

// ledgerFlags selects the on-disk ledger an offline command runs against.
type ledgerFlags struct {
	dataDir *string
	backend *string
	now     *uint64
}

func addLedgerFlags(fs *flag.FlagSet) *ledgerFlags {
	return &ledgerFlags{
		dataDir: fs.String("data", defaultDataDir, "ledger directory (leveldb) or file (bolt)"),
		backend: fs.String("backend", defaultBackend, "storage backend: leveldb or bolt"),
		now:     fs.Uint64("now", 0, "ledger time in seconds; 0 uses the wall clock"),
	}
}

type ledger struct {
	proc  *lpstake.Processor
	close func()
}

func (l *ledgerFlags) open(stderr io.Writer) (*ledger, error) {
	db, err := storage.Open(strings.ToLower(strings.TrimSpace(*l.backend)), *l.dataDir)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	clock := lpstake.UnixClock
	if fixed := *l.now; fixed != 0 {
		clock = func() uint64 { return fixed }
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	proc := lpstake.NewProcessor(state.NewManager(db), lpstake.WithClock(clock), lpstake.WithLogger(logger))
	return &ledger{proc: proc, close: db.Close}, nil
}

// signerFlags resolve the caller of a mutating command from a keystore.
type signerFlags struct {
	keystore *string
	passEnv  *string
}

func addSignerFlags(fs *flag.FlagSet) *signerFlags {
	return &signerFlags{
		keystore: fs.String("keystore", "", "keystore file holding the caller's key"),
		passEnv:  fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase"),
	}
}

func (s *signerFlags) address() (crypto.Address, error) {
	path := strings.TrimSpace(*s.keystore)
	if path == "" {
		return crypto.Address{}, errors.New("--keystore is required")
	}
	pass, err := passphrase.NewSource(*s.passEnv, "keystore").Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("load keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func parseAddressFlag(name, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

// emissionFlags describe an emission schedule on the command line.
type emissionFlags struct {
	kind        *string
	rate        *uint64
	initialRate *uint64
	decayBps    *uint64
	period      *uint64
	start       *uint64
}

func addEmissionFlags(fs *flag.FlagSet) *emissionFlags {
	return &emissionFlags{
		kind:        fs.String("type", "fixed_rate", "emission type: fixed_rate or block_based"),
		rate:        fs.Uint64("rate", 0, "fixed_rate: reward units emitted per second"),
		initialRate: fs.Uint64("initial-rate", 0, "block_based: reward units per second in the first period"),
		decayBps:    fs.Uint64("decay-bps", 0, "block_based: per-period decay factor in basis points"),
		period:      fs.Uint64("period", 0, "block_based: period length in seconds"),
		start:       fs.Uint64("start", 0, "block_based: schedule start time; 0 means now"),
	}
}

func (e *emissionFlags) schedule() (lpstake.EmissionSchedule, error) {
	kind, err := lpstake.ParseEmissionType(*e.kind)
	if err != nil {
		return lpstake.EmissionSchedule{}, err
	}
	return lpstake.EmissionSchedule{
		Type:             kind,
		RatePerUnit:      *e.rate,
		InitialBlockRate: *e.initialRate,
		DecayFactorBps:   *e.decayBps,
		BlocksPerPeriod:  *e.period,
		StartTime:        *e.start,
	}, nil
}

func execute(l *ledger, ins lpstake.Instruction, stdout, stderr io.Writer) int {
	receipt, err := l.proc.Execute(context.Background(), ins)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Receipt %s\n", receipt.ID)
	fmt.Fprintf(stdout, "  Instruction: %s\n", receipt.Kind)
	if receipt.Pool != "" {
		fmt.Fprintf(stdout, "  Pool:        %s\n", receipt.Pool)
	}
	fmt.Fprintf(stdout, "  Timestamp:   %d\n", receipt.Timestamp)
	for _, evt := range receipt.Events {
		fmt.Fprintf(stdout, "  Event:       %s\n", evt.Type)
	}
	printResult(stdout, l.proc, receipt.Result)
	return 0
}

func fail(stderr io.Writer, err error) int {
	if code := lpstake.ErrorCode(err); code != "" && code != "internal" {
		fmt.Fprintf(stderr, "Error [%s]: %v\n", code, err)
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

func display(proc *lpstake.Processor, units uint64, asset string) string {
	decimals, err := proc.Decimals(asset)
	if err != nil {
		decimals = lpstake.DefaultDecimals
	}
	return fmt.Sprintf("%s %s", server.FormatAmount(units, decimals), asset)
}

func printResult(w io.Writer, proc *lpstake.Processor, result any) {
	switch r := result.(type) {
	case *lpstake.PoolState:
		printPool(w, proc, r, nil)
	case *lpstake.DepositResult:
		fmt.Fprintf(w, "  Minted:      %s\n", display(proc, r.Minted, r.Pool.ShareAsset))
		printPosition(w, proc, r.Position, r.Pool)
	case *lpstake.WithdrawResult:
		fmt.Fprintf(w, "  Paid out:    %s\n", display(proc, r.Payout, r.Pool.CollateralAsset))
		printPosition(w, proc, r.Position, r.Pool)
	case *lpstake.ClaimResult:
		if r.Position == nil {
			return
		}
		pool, err := proc.Pool(r.Position.Pool)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "  Claimed:     %s\n", display(proc, r.Amount, pool.NativeAsset))
	case *lpstake.UserPosition:
		if pool, err := proc.Pool(r.Pool); err == nil {
			printPosition(w, proc, r, pool)
		}
	case *lpstake.VaultState:
		printVault(w, proc, r)
	case *lpstake.RewardConfig:
		fmt.Fprintf(w, "  Emission:    %s\n", describeEmission(r.Emission))
	}
}

func describeEmission(s lpstake.EmissionSchedule) string {
	switch s.Type {
	case lpstake.EmissionBlockBased:
		return fmt.Sprintf("block_based initial=%d decay=%dbps period=%ds start=%d",
			s.InitialBlockRate, s.DecayFactorBps, s.BlocksPerPeriod, s.StartTime)
	default:
		return fmt.Sprintf("fixed_rate rate=%d/s", s.RatePerUnit)
	}
}

func printPool(w io.Writer, proc *lpstake.Processor, pool *lpstake.PoolState, rewards *lpstake.RewardConfig) {
	fmt.Fprintf(w, "Pool %s\n", pool.Address)
	fmt.Fprintf(w, "  Authority:   %s\n", pool.Authority)
	fmt.Fprintf(w, "  Collateral:  %s\n", pool.CollateralAsset)
	fmt.Fprintf(w, "  Shares:      %s\n", pool.ShareAsset)
	fmt.Fprintf(w, "  Rewards in:  %s\n", pool.NativeAsset)
	fmt.Fprintf(w, "  Deposited:   %s\n", display(proc, pool.TotalDeposited, pool.CollateralAsset))
	fmt.Fprintf(w, "  LP supply:   %s\n", display(proc, pool.TotalLpSupply, pool.ShareAsset))
	fmt.Fprintf(w, "  Staked:      %s\n", display(proc, pool.TotalStaked, pool.ShareAsset))
	fmt.Fprintf(w, "  Min deposit: %s\n", display(proc, pool.MinDeposit, pool.CollateralAsset))
	fmt.Fprintf(w, "  Paused:      %t\n", pool.Paused)
	if rewards != nil {
		fmt.Fprintf(w, "  Emission:    %s\n", describeEmission(rewards.Emission))
		if rewards.AccRewardPerShare != nil {
			fmt.Fprintf(w, "  Acc/share:   %s\n", rewards.AccRewardPerShare.Dec())
		}
		fmt.Fprintf(w, "  Updated at:  %d\n", rewards.LastUpdateTime)
	}
}

func printPosition(w io.Writer, proc *lpstake.Processor, pos *lpstake.UserPosition, pool *lpstake.PoolState) {
	fmt.Fprintf(w, "Position %s\n", pos.Address)
	fmt.Fprintf(w, "  Owner:       %s\n", pos.Owner)
	fmt.Fprintf(w, "  Unstaked:    %s\n", display(proc, pos.LPBalance, pool.ShareAsset))
	fmt.Fprintf(w, "  Staked:      %s\n", display(proc, pos.StakedAmount, pool.ShareAsset))
	fmt.Fprintf(w, "  Pending:     %s\n", display(proc, pos.PendingReward, pool.NativeAsset))
}

func printVault(w io.Writer, proc *lpstake.Processor, vault *lpstake.VaultState) {
	fmt.Fprintf(w, "Vault %s\n", vault.Address)
	fmt.Fprintf(w, "  Pool:        %s\n", vault.Pool)
	fmt.Fprintf(w, "  Balance:     %s\n", display(proc, vault.Balance, vault.Asset))
}
