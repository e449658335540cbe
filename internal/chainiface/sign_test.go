package chainiface

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
)

func signBody(t *testing.T, priv *secp256k1.PrivateKey, body []byte) []byte {
	t.Helper()

	digest := keccak256(body)
	sig := ecdsa.SignCompact(priv, digest, false)

	// SignCompact places the recovery id first; the wallet wire format used
	// by RecoverAddress expects it last.
	out := make([]byte, 65)
	copy(out[:64], sig[1:])
	out[64] = sig[0]
	return out
}

func TestAddressFromPrivateKey_MatchesRecoverAddress(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	hexKey := "0x" + hex.EncodeToString(raw)

	derived, err := AddressFromPrivateKey(hexKey)
	require.NoError(t, err)
	require.False(t, derived.IsZero())

	body := []byte(`{"hello":"world"}`)
	sig := signBody(t, priv, body)

	recovered, err := RecoverAddress(body, sig)
	require.NoError(t, err)

	require.Equal(t, derived, recovered)
}

func TestAddressFromPrivateKey_AcceptsBareHex(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 9)
	}
	hexKey := hex.EncodeToString(raw)

	withPrefix, err := AddressFromPrivateKey("0x" + hexKey)
	require.NoError(t, err)
	bare, err := AddressFromPrivateKey(hexKey)
	require.NoError(t, err)

	require.Equal(t, withPrefix, bare)
}

func TestAddressFromPrivateKey_RejectsInvalidHex(t *testing.T) {
	_, err := AddressFromPrivateKey("not-hex")
	require.Error(t, err)
}

func TestRecoverAddress_RejectsShortSignature(t *testing.T) {
	_, err := RecoverAddress([]byte("body"), []byte{1, 2, 3})
	require.Error(t, err)
}
