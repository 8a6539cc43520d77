package types

import (
	"bytes"
	"errors"
	"testing"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	kp := KeypairFromName("alice")
	p, err := PubkeyFromBase58(kp.Pubkey().String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p != kp.Pubkey() {
		t.Fatalf("round trip mismatch: %s != %s", p, kp.Pubkey())
	}

	if _, err := PubkeyFromBase58("0OIl"); err == nil {
		t.Fatal("expected decode error for invalid base58")
	}
	if _, err := PubkeyFromBase58("1111"); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected ErrInvalidPubkey, got %v", err)
	}
}

func TestPubkeyFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, PubkeySize)
	p, err := PubkeyFromBytes(raw)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if !bytes.Equal(p.Bytes(), raw) {
		t.Fatal("bytes mismatch")
	}
	if _, err := PubkeyFromBytes(raw[:31]); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected ErrInvalidPubkey, got %v", err)
	}
	if !(Pubkey{}).IsZero() || p.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestPubkeyText(t *testing.T) {
	want := TokenProgramAddr
	text, err := want.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(text) != "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA" {
		t.Fatalf("unexpected text %q", text)
	}
	var got Pubkey
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if err := got.UnmarshalText([]byte("abc")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestSignAndVerify(t *testing.T) {
	kp := MustNewKeypair()
	msg := []byte("transfer 1 SOL")
	sig := kp.Sign(msg)
	if sig.IsZero() {
		t.Fatal("signature is zero")
	}
	if !sig.Verify(kp.Pubkey(), msg) {
		t.Fatal("signature does not verify")
	}
	if sig.Verify(kp.Pubkey(), []byte("transfer 2 SOL")) {
		t.Fatal("signature verifies a different message")
	}
	if sig.Verify(KeypairFromName("mallory").Pubkey(), msg) {
		t.Fatal("signature verifies under a different key")
	}

	parsed, err := SignatureFromBase58(sig.String())
	if err != nil {
		t.Fatalf("parse signature: %v", err)
	}
	if parsed != sig {
		t.Fatal("signature round trip mismatch")
	}
	if _, err := SignatureFromBase58(kp.Pubkey().String()); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestKeypairDerivation(t *testing.T) {
	a, b := KeypairFromName("vault"), KeypairFromName("vault")
	if a.Pubkey() != b.Pubkey() {
		t.Fatal("KeypairFromName is not deterministic")
	}
	if a.Pubkey() == KeypairFromName("vault2").Pubkey() {
		t.Fatal("different names produced the same key")
	}
	if a.String() != a.Pubkey().String() {
		t.Fatal("String should render the public key")
	}

	seed := bytes.Repeat([]byte{1}, 32)
	s1, err := KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	s2, _ := KeypairFromSeed(seed)
	if s1.Pubkey() != s2.Pubkey() {
		t.Fatal("KeypairFromSeed is not deterministic")
	}
	if _, err := KeypairFromSeed(seed[:16]); err == nil {
		t.Fatal("expected error for short seed")
	}
	if !(Keypair{}).IsZero() || s1.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestHash(t *testing.T) {
	h := ComputeHash([]byte("abc"))
	if got := h.Hex(); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256: %s", got)
	}
	parsed, err := HashFromBase58(h.String())
	if err != nil {
		t.Fatalf("parse hash: %v", err)
	}
	if parsed != h {
		t.Fatal("hash round trip mismatch")
	}
	if _, err := HashFromBase58("2"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if h.IsZero() || !(Hash{}).IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestReservedAddresses(t *testing.T) {
	tests := []struct {
		name       string
		key        Pubkey
		native     bool
		sysvar     bool
		precompile bool
	}{
		{"system", SystemProgramAddr, true, false, false},
		{"compute budget", ComputeBudgetProgramAddr, true, false, false},
		{"ed25519", Ed25519PrecompileAddr, true, false, true},
		{"secp256k1", Secp256k1PrecompileAddr, true, false, true},
		{"clock", SysvarClockAddr, false, true, false},
		{"rent", SysvarRentAddr, false, true, false},
		{"instructions", SysvarInstructionsAddr, false, true, false},
		{"token", TokenProgramAddr, false, false, false},
		{"memo", MemoProgramAddr, false, false, false},
		{"wallet", KeypairFromName("alice").Pubkey(), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNativeProgram(tt.key); got != tt.native {
				t.Errorf("IsNativeProgram = %v, want %v", got, tt.native)
			}
			if got := IsSysvar(tt.key); got != tt.sysvar {
				t.Errorf("IsSysvar = %v, want %v", got, tt.sysvar)
			}
			if got := IsPrecompile(tt.key); got != tt.precompile {
				t.Errorf("IsPrecompile = %v, want %v", got, tt.precompile)
			}
		})
	}
}

func TestMustPubkeyFromBase58Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustPubkeyFromBase58("not-a-key")
}
