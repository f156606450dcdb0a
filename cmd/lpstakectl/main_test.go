package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestOfflineLifecycle(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse battery staple")
	dir := t.TempDir()
	keystore := filepath.Join(dir, "alice.json")
	data := filepath.Join(dir, "ledger")

	code, out, errOut := runCLI(t, "keygen", "-keystore", keystore)
	require.Equal(t, 0, code, errOut)
	alice := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(alice, "lp1"), alice)

	code, out, _ = runCLI(t, "address", "-keystore", keystore)
	require.Equal(t, 0, code)
	require.Equal(t, alice, strings.TrimSpace(out))

	code, _, errOut = runCLI(t, "keygen", "-keystore", keystore)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "already exists")

	genesis := filepath.Join(dir, "genesis.toml")
	require.NoError(t, os.WriteFile(genesis, []byte(fmt.Sprintf(`
[[tokens]]
Symbol = "USDC"
[[tokens]]
Symbol = "NATIVE"
[[balances]]
Address = %[1]q
Asset = "USDC"
Amount = 50000000000
[[balances]]
Address = %[1]q
Asset = "NATIVE"
Amount = 5000000000
[[pools]]
Authority = %[1]q
CollateralAsset = "USDC"
ShareAsset = "LPUSDC"
NativeAsset = "NATIVE"
EmissionRate = 1000
VaultFunding = 1000000000
`, alice)), 0o600))

	code, out, errOut = runCLI(t, "genesis", "-data", data, "-file", genesis, "-now", "1000")
	require.Equal(t, 0, code, errOut)
	pool := strings.TrimSpace(out)
	require.NotEmpty(t, pool)

	code, out, errOut = runCLI(t, "deposit", "-data", data, "-keystore", keystore, "-pool", pool, "-amount", "10", "-now", "1000")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Minted:      10.000000000 LPUSDC")
	require.Contains(t, out, "Event:       lpstake.deposited")

	code, _, errOut = runCLI(t, "stake", "-data", data, "-keystore", keystore, "-pool", pool, "-amount", "4", "-now", "1000")
	require.Equal(t, 0, code, errOut)

	code, out, errOut = runCLI(t, "position", "-data", data, "-pool", pool, "-owner", alice, "-now", "1100")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Staked:      4.000000000 LPUSDC")
	require.Contains(t, out, "Unstaked:    6.000000000 LPUSDC")
	require.Contains(t, out, "Pending:     0.000100000 NATIVE")

	code, out, errOut = runCLI(t, "claim", "-data", data, "-keystore", keystore, "-pool", pool, "-now", "1100")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Claimed:     0.000100000 NATIVE")

	code, out, _ = runCLI(t, "vault", "-data", data, "-pool", pool)
	require.Equal(t, 0, code)
	require.Contains(t, out, "Balance:     0.999900000 NATIVE")

	code, _, errOut = runCLI(t, "withdraw", "-data", data, "-keystore", keystore, "-pool", pool, "-amount", "100", "-now", "1100")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "[insufficient_balance]")

	code, out, _ = runCLI(t, "balance", "-data", data, "-owner", alice, "-asset", "usdc")
	require.Equal(t, 0, code)
	require.Equal(t, "40.000000000 USDC", strings.TrimSpace(out))

	code, out, _ = runCLI(t, "pools", "-data", data)
	require.Equal(t, 0, code)
	require.Contains(t, out, pool)
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "unknown command")

	code, out, _ := runCLI(t)
	require.Equal(t, 0, code)
	require.Contains(t, out, "Usage: lpstakectl")
}

func TestAmountCommandRequiresPool(t *testing.T) {
	code, _, errOut := runCLI(t, "deposit", "-amount", "1")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "--pool is required")
}
