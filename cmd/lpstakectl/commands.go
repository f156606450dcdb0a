package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lpstaking/cmd/internal/passphrase"
	"lpstaking/crypto"
	"lpstaking/native/lpstake"
	"lpstaking/services/lpstake/server"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	path := fs.String("keystore", "", "output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			fmt.Fprintf(stderr, "Error: keystore file %s already exists (use --force to overwrite)\n", *path)
			return 1
		} else if !errors.Is(err, os.ErrNotExist) {
			return fail(stderr, err)
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").Get()
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		return fail(stderr, fmt.Errorf("write keystore: %w", err))
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	signer := addSignerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := signer.address()
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runGenesis(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("genesis", stderr)
	ledgerOpts := addLedgerFlags(fs)
	file := fs.String("file", "", "TOML genesis file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 1
	}
	cfg, err := lpstake.LoadConfig(*file)
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	pools, err := l.proc.ApplyGenesis(context.Background(), cfg)
	if err != nil {
		return fail(stderr, err)
	}
	for _, pool := range pools {
		fmt.Fprintln(stdout, pool.String())
	}
	return 0
}

func runInitialize(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init", stderr)
	ledgerOpts := addLedgerFlags(fs)
	signer := addSignerFlags(fs)
	emission := addEmissionFlags(fs)
	collateral := fs.String("collateral", "", "collateral asset symbol")
	share := fs.String("share", "", "share token symbol to create")
	shareName := fs.String("share-name", "", "share token display name")
	native := fs.String("native", "", "reward asset symbol")
	minDeposit := fs.String("min-deposit", "", "minimum deposit in collateral units, e.g. 0.001")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	caller, err := signer.address()
	if err != nil {
		return fail(stderr, err)
	}
	schedule, err := emission.schedule()
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()

	decimals := lpstake.DefaultDecimals
	if d, err := l.proc.Decimals(*collateral); err == nil {
		decimals = d
	}
	params := lpstake.InitParams{
		CollateralAsset: *collateral,
		ShareAsset:      *share,
		ShareName:       *shareName,
		ShareDecimals:   decimals,
		NativeAsset:     *native,
		Emission:        schedule,
	}
	if strings.TrimSpace(*minDeposit) != "" {
		units, err := server.ParseAmount(*minDeposit, decimals)
		if err != nil {
			return fail(stderr, err)
		}
		params.MinDeposit = units
	}
	return execute(l, lpstake.Instruction{Kind: lpstake.KindInitialize, Caller: caller, Init: &params}, stdout, stderr)
}

var amountKinds = map[string]lpstake.InstructionKind{
	"deposit":  lpstake.KindDeposit,
	"withdraw": lpstake.KindWithdraw,
	"stake":    lpstake.KindStake,
	"unstake":  lpstake.KindUnstake,
	"fund":     lpstake.KindFundVault,
}

// amountCommand builds the handler for an instruction that moves a decimal
// amount of one of the pool's assets.
func amountCommand(name string) func([]string, io.Writer, io.Writer) int {
	kind := amountKinds[name]
	return func(args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		ledgerOpts := addLedgerFlags(fs)
		signer := addSignerFlags(fs)
		poolFlag := fs.String("pool", "", "pool address")
		amountFlag := fs.String("amount", "", "amount in display units, e.g. 12.5")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		poolAddr, err := parseAddressFlag("pool", *poolFlag)
		if err != nil {
			return fail(stderr, err)
		}
		caller, err := signer.address()
		if err != nil {
			return fail(stderr, err)
		}
		l, err := ledgerOpts.open(stderr)
		if err != nil {
			return fail(stderr, err)
		}
		defer l.close()

		pool, err := l.proc.Pool(poolAddr)
		if err != nil {
			return fail(stderr, err)
		}
		asset := pool.ShareAsset
		switch kind {
		case lpstake.KindDeposit:
			asset = pool.CollateralAsset
		case lpstake.KindFundVault:
			asset = pool.NativeAsset
		}
		decimals, err := l.proc.Decimals(asset)
		if err != nil {
			return fail(stderr, err)
		}
		amount, err := server.ParseAmount(*amountFlag, decimals)
		if err != nil {
			return fail(stderr, err)
		}
		return execute(l, lpstake.Instruction{Kind: kind, Caller: caller, Pool: poolAddr, Amount: amount}, stdout, stderr)
	}
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("claim", stderr)
	ledgerOpts := addLedgerFlags(fs)
	signer := addSignerFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	caller, err := signer.address()
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	return execute(l, lpstake.Instruction{Kind: lpstake.KindClaim, Caller: caller, Pool: poolAddr}, stdout, stderr)
}

func runEmission(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("emission", stderr)
	ledgerOpts := addLedgerFlags(fs)
	signer := addSignerFlags(fs)
	emission := addEmissionFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	schedule, err := emission.schedule()
	if err != nil {
		return fail(stderr, err)
	}
	caller, err := signer.address()
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	return execute(l, lpstake.Instruction{Kind: lpstake.KindUpdateEmission, Caller: caller, Pool: poolAddr, Emission: &schedule}, stdout, stderr)
}

func runPause(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pause", stderr)
	ledgerOpts := addLedgerFlags(fs)
	signer := addSignerFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	resume := fs.Bool("resume", false, "clear the pause flag instead of setting it")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	caller, err := signer.address()
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	return execute(l, lpstake.Instruction{Kind: lpstake.KindSetPaused, Caller: caller, Pool: poolAddr, Paused: !*resume}, stdout, stderr)
}

func runPools(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pools", stderr)
	ledgerOpts := addLedgerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	pools, err := l.proc.Pools()
	if err != nil {
		return fail(stderr, err)
	}
	if len(pools) == 0 {
		fmt.Fprintln(stdout, "No pools initialised.")
		return 0
	}
	for _, pool := range pools {
		fmt.Fprintf(stdout, "%s  %s -> %s (rewards in %s)\n", pool.Address, pool.CollateralAsset, pool.ShareAsset, pool.NativeAsset)
	}
	return 0
}

func runPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pool", stderr)
	ledgerOpts := addLedgerFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	pool, err := l.proc.Pool(poolAddr)
	if err != nil {
		return fail(stderr, err)
	}
	rewards, err := l.proc.Rewards(poolAddr)
	if err != nil {
		return fail(stderr, err)
	}
	printPool(stdout, l.proc, pool, rewards)
	return 0
}

func runPosition(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("position", stderr)
	ledgerOpts := addLedgerFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	ownerFlag := fs.String("owner", "", "position owner address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	owner, err := parseAddressFlag("owner", *ownerFlag)
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	pool, err := l.proc.Pool(poolAddr)
	if err != nil {
		return fail(stderr, err)
	}
	pos, err := l.proc.Position(owner, poolAddr)
	if err != nil {
		return fail(stderr, err)
	}
	printPosition(stdout, l.proc, pos, pool)
	return 0
}

func runVault(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("vault", stderr)
	ledgerOpts := addLedgerFlags(fs)
	poolFlag := fs.String("pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	poolAddr, err := parseAddressFlag("pool", *poolFlag)
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	vault, err := l.proc.Vault(poolAddr)
	if err != nil {
		return fail(stderr, err)
	}
	printVault(stdout, l.proc, vault)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	ledgerOpts := addLedgerFlags(fs)
	ownerFlag := fs.String("owner", "", "holder address")
	asset := fs.String("asset", "", "token symbol")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	owner, err := parseAddressFlag("owner", *ownerFlag)
	if err != nil {
		return fail(stderr, err)
	}
	l, err := ledgerOpts.open(stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.close()
	units, err := l.proc.Balance(owner, *asset)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, display(l.proc, units, strings.ToUpper(strings.TrimSpace(*asset))))
	return 0
}
