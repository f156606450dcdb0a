package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := []byte("collateral")
	b := []byte("share")

	first := Derive("pool_state", a, b)
	second := Derive("pool_state", a, b)
	require.True(t, first.Equal(second))

	swapped := Derive("pool_state", b, a)
	require.False(t, first.Equal(swapped))

	otherSeed := Derive("reward_vault", a, b)
	require.False(t, first.Equal(otherSeed))
	require.Len(t, first.Bytes(), AddressLength)
}

func TestAddressRoundTrip(t *testing.T) {
	addr := MustAddress(bytes.Repeat([]byte{0x42}, AddressLength))
	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "lp1"))

	decoded, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))

	fromHex, err := ParseAddress("0x" + addr.Hex())
	require.NoError(t, err)
	require.True(t, addr.Equal(fromHex))

	var viaText Address
	require.NoError(t, viaText.UnmarshalText([]byte(encoded)))
	require.True(t, addr.Equal(viaText))

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadFromKeystore(path, "secret")
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(loaded.PubKey().Address()))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
