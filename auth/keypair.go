package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/juju/errors"
	"golang.org/x/crypto/sha3"
)

// authorizeMessage is the fixed message signed to obtain an API token.
var authorizeMessage = []byte("AUTHORIZE")

// KeyPair is an ed25519 key pair used to sign authorization requests and
// trading intents.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// NewKeyPairFromHex creates a key pair from a 32-byte private key seed in
// hex, with or without the 0x prefix.
func NewKeyPairFromHex(privateKeyHex string) (*KeyPair, error) {
	seed, err := hex.DecodeString(StripHexPrefix(privateKeyHex))
	if err != nil {
		return nil, errors.Annotatef(err, "decoding private key hex")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateKeyPair creates a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &KeyPair{priv: priv}, nil
}

// PrivateKey returns the private key seed as 0x-prefixed hex.
func (kp *KeyPair) PrivateKey() string {
	return "0x" + hex.EncodeToString(kp.priv.Seed())
}

// PublicKey returns the public key as 0x-prefixed hex.
func (kp *KeyPair) PublicKey() string {
	return "0x" + hex.EncodeToString(kp.priv.Public().(ed25519.PublicKey))
}

// Address derives the account address: the last 20 bytes of the Keccak256
// hash of the public key, as 0x-prefixed hex.
func (kp *KeyPair) Address() string {
	h := sha3.NewLegacyKeccak256()
	h.Write(kp.priv.Public().(ed25519.PublicKey))
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// Sign signs the message and returns the signature as 0x-prefixed hex.
func (kp *KeyPair) Sign(message []byte) string {
	return "0x" + hex.EncodeToString(ed25519.Sign(kp.priv, message))
}

// SignAuthorize signs the fixed authorization message.
func (kp *KeyPair) SignAuthorize() string {
	return kp.Sign(authorizeMessage)
}

// VerifySignature reports whether sig is a valid signature of message by the
// holder of the hex-encoded public key.
func VerifySignature(message []byte, signatureHex, publicKeyHex string) (bool, error) {
	sig, err := hex.DecodeString(StripHexPrefix(signatureHex))
	if err != nil {
		return false, errors.Annotatef(err, "decoding signature hex")
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errors.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}

	pub, err := hex.DecodeString(StripHexPrefix(publicKeyHex))
	if err != nil {
		return false, errors.Annotatef(err, "decoding public key hex")
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	return ed25519.Verify(ed25519.PublicKey(pub), message, sig), nil
}

// AddressFromPublicKey derives the account address from a hex public key.
func AddressFromPublicKey(publicKeyHex string) (string, error) {
	pub, err := hex.DecodeString(StripHexPrefix(publicKeyHex))
	if err != nil {
		return "", errors.Annotatef(err, "decoding public key hex")
	}
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:]), nil
}

// Keccak256 hashes data with Keccak256.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
