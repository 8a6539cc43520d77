package addressbook

import (
	"encoding/hex"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// DerivedPDA is a program derived address together with the seeds that
// produced it.
type DerivedPDA struct {
	Key         types.Pubkey
	Bump        uint8
	SeedStrings []string
	Seeds       [][]byte
}

// Verify reports whether re-deriving from the seeds under program gives the
// same key and bump.
func (d DerivedPDA) Verify(program types.Pubkey) bool {
	key, bump, err := svm.FindProgramAddress(d.Seeds, program)
	return err == nil && key == d.Key && bump == d.Bump
}

// DerivePDA finds the canonical PDA for seeds under program.
func DerivePDA(program types.Pubkey, seeds ...[]byte) (DerivedPDA, error) {
	key, bump, err := svm.FindProgramAddress(seeds, program)
	if err != nil {
		return DerivedPDA{}, fmt.Errorf("derive pda under %s: %w", program, err)
	}
	d := DerivedPDA{
		Key:         key,
		Bump:        bump,
		SeedStrings: make([]string, len(seeds)),
		Seeds:       make([][]byte, len(seeds)),
	}
	for i, s := range seeds {
		d.SeedStrings[i] = SeedString(s)
		d.Seeds[i] = append([]byte(nil), s...)
	}
	return d, nil
}

// SeedString renders a seed for display: printable ASCII as text, 32 byte
// seeds as a base58 key and anything else as hex.
func SeedString(seed []byte) string {
	if len(seed) > 0 && isPrintable(seed) {
		return string(seed)
	}
	if len(seed) == types.PubkeySize {
		var k types.Pubkey
		copy(k[:], seed)
		return k.String()
	}
	return hex.EncodeToString(seed)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < ' ' || c > '~' {
			return false
		}
	}
	return true
}

// FindPDA derives a PDA and registers it under label.
func (b *AddressBook) FindPDA(label string, program types.Pubkey, seeds ...[]byte) (DerivedPDA, error) {
	d, err := DerivePDA(program, seeds...)
	if err != nil {
		return DerivedPDA{}, err
	}
	if err := b.AddPDA(d.Key, label, d.SeedStrings, d.Bump, program); err != nil {
		return DerivedPDA{}, err
	}
	return d, nil
}
