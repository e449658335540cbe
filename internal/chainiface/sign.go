package chainiface

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// DecodeSignature parses a 0x-prefixed or bare hex-encoded 65-byte
// signature, the wire format the X-Signature header and messaging
// transport both carry.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.TrimPrefix(s, "0X")
	return hex.DecodeString(s)
}

// RecoverAddress recovers the Address that produced sig over body: the
// digest is Keccak256 of the raw body bytes (no message prefix is added),
// followed by ECDSA public-key recovery. The HTTP transport calls this
// through internal/middleware.WalletAuthMiddleware and the messaging
// transport through verifySignedMessage, before trusting req.Requester, per spec §4.5
// ("verification is the transport's responsibility; handlers trust
// req.requester").
func RecoverAddress(body []byte, sig []byte) (Address, error) {
	if len(sig) != 65 {
		return Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	digest := keccak256(body)

	// secp256k1's compact-signature recovery expects the recovery id in the
	// leading byte; wallet signatures conventionally place it last.
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return addressFromPubKey(pub), nil
}

// AddressFromPrivateKey derives the Address a hex-encoded secp256k1 private
// key controls, used at startup to resolve each configured
// PROVIDER_PRIVATE_KEY_<tag>/OPERATOR_PRIVATE_KEY_<tag> into the owner and
// operator addresses a Provider Runtime is built from.
func AddressFromPrivateKey(hexKey string) (Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return addressFromPubKey(priv.PubKey()), nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// addressFromPubKey derives a 20-byte address as the low 20 bytes of the
// Keccak256 hash of the uncompressed public key's X||Y coordinates — the
// same derivation used by EVM-style wallets, consistent with the spec's
// "0x"-prefixed 32-byte-key / 20-byte-address wallet model.
func addressFromPubKey(pub *secp256k1.PublicKey) Address {
	uncompressed := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix
	hash := keccak256(uncompressed)

	var addr Address
	copy(addr[:], hash[len(hash)-20:])
	return addr
}
