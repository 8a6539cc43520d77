package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// Keypair is an ed25519 signing identity.
type Keypair struct {
	private ed25519.PrivateKey
	pubkey  Pubkey
}

// NewKeypair generates a random keypair.
func NewKeypair() (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return keypairFromPrivate(priv), nil
}

// MustNewKeypair generates a random keypair or panics.
func MustNewKeypair() Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

// KeypairFromSeed derives a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// KeypairFromName derives a deterministic keypair from a name.
// The same name always yields the same keypair, which keeps test output reproducible.
func KeypairFromName(name string) Keypair {
	seed := sha256.Sum256([]byte(name))
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed[:]))
}

func keypairFromPrivate(priv ed25519.PrivateKey) Keypair {
	var pk Pubkey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return Keypair{private: priv, pubkey: pk}
}

// Pubkey returns the public key.
func (k Keypair) Pubkey() Pubkey {
	return k.pubkey
}

// IsZero reports whether the keypair was never initialized.
func (k Keypair) IsZero() bool {
	return len(k.private) == 0
}

// Sign signs a message.
func (k Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// String returns the base58 public key.
func (k Keypair) String() string {
	return k.pubkey.String()
}
