package bank

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"lpstaking/core/state"
	"lpstaking/crypto"
	"lpstaking/storage"
)

func makeAddress(b byte) crypto.Address {
	return crypto.MustAddress(bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(state.NewManager(storage.NewMemDB()))
}

func TestMintRequiresAuthority(t *testing.T) {
	ledger := newLedger(t)
	authority := makeAddress(0xaa)
	alice := makeAddress(0x01)

	require.NoError(t, ledger.RegisterToken("LP", "Pool Share", 6, authority))

	err := ledger.Mint("LP", alice, alice, 10)
	require.ErrorIs(t, err, ErrMintAuthority)

	require.NoError(t, ledger.Mint("lp", authority, alice, 10))
	bal, err := ledger.Balance(alice, "LP")
	require.NoError(t, err)
	require.EqualValues(t, 10, bal)

	supply, err := ledger.Supply("LP")
	require.NoError(t, err)
	require.EqualValues(t, 10, supply)

	require.NoError(t, ledger.Burn("LP", authority, alice, 4))
	supply, err = ledger.Supply("LP")
	require.NoError(t, err)
	require.EqualValues(t, 6, supply)

	err = ledger.Burn("LP", authority, alice, 7)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestTransfer(t *testing.T) {
	ledger := newLedger(t)
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)

	require.NoError(t, ledger.RegisterToken("USDC", "USD Coin", 6, crypto.Address{}))
	require.NoError(t, ledger.Mint("USDC", alice, alice, 100))

	require.NoError(t, ledger.Transfer("USDC", alice, bob, 60))
	err := ledger.Transfer("USDC", alice, bob, 41)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	aliceBal, err := ledger.Balance(alice, "USDC")
	require.NoError(t, err)
	bobBal, err := ledger.Balance(bob, "USDC")
	require.NoError(t, err)
	require.EqualValues(t, 40, aliceBal)
	require.EqualValues(t, 60, bobBal)

	err = ledger.Transfer("DOGE", alice, bob, 1)
	require.ErrorIs(t, err, ErrUnknownToken)
}
