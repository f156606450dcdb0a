package main

import (
	"fmt"
	"io"
	"os"
)

const (
	defaultDataDir = "./lpstake-data"
	defaultBackend = "leveldb"
	defaultPassEnv = "LPSTAKE_KEY_PASS"
)

type command struct {
	name    string
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var commands []command

func init() {
	commands = []command{
		{"keygen", "generate a keystore for a new ledger address", runKeygen},
		{"address", "print the address held by a keystore", runAddress},
		{"genesis", "apply a TOML genesis to a ledger directory", runGenesis},
		{"init", "initialise a pool", runInitialize},
		{"deposit", "deposit collateral for pool shares", amountCommand("deposit")},
		{"withdraw", "redeem pool shares for collateral", amountCommand("withdraw")},
		{"stake", "stake pool shares", amountCommand("stake")},
		{"unstake", "unstake pool shares", amountCommand("unstake")},
		{"fund", "fund a pool's reward vault", amountCommand("fund")},
		{"claim", "claim pending rewards", runClaim},
		{"emission", "replace a pool's emission schedule", runEmission},
		{"pause", "pause or resume a pool", runPause},
		{"pools", "list pools", runPools},
		{"pool", "show a pool and its reward accumulator", runPool},
		{"position", "show a position with its pending reward", runPosition},
		{"vault", "show a pool's reward vault", runVault},
		{"balance", "show a token balance", runBalance},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return 0
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", args[0])
	printUsage(stderr)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lpstakectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Keystore passphrases are read from $%s or prompted for on a terminal.\n", defaultPassEnv)
}
