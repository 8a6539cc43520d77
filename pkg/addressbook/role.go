package addressbook

import (
	"fmt"
	"strings"

	"github.com/fortiblox/testsvm/pkg/types"
)

// RoleKind identifies a role variant.
type RoleKind int

// Role kinds.
const (
	RoleWallet RoleKind = iota
	RoleMint
	RoleTokenAccount
	RolePDA
	RoleProgram
	RoleCustom
)

// String returns the short name used in role tags.
func (k RoleKind) String() string {
	switch k {
	case RoleWallet:
		return "wallet"
	case RoleMint:
		return "mint"
	case RoleTokenAccount:
		return "ata"
	case RolePDA:
		return "pda"
	case RoleProgram:
		return "program"
	case RoleCustom:
		return "custom"
	default:
		return fmt.Sprintf("RoleKind(%d)", int(k))
	}
}

// Role is the semantic category of a registered key. The set of roles is
// closed: WalletRole, MintRole, TokenAccountRole, PDARole, ProgramRole and
// CustomRole are the only implementations.
type Role interface {
	Kind() RoleKind

	// Tag is the bracketed annotation shown next to a label.
	Tag() string

	validate() error
}

// WalletRole marks a keypair-controlled account.
type WalletRole struct{}

// MintRole marks a token mint.
type MintRole struct{}

// TokenAccountRole marks a token account holding Mint on behalf of Owner.
type TokenAccountRole struct {
	Mint  types.Pubkey
	Owner types.Pubkey
}

// PDARole marks a program derived address. Seeds holds the readable form of
// each seed.
type PDARole struct {
	Seeds   []string
	Bump    uint8
	Program types.Pubkey
}

// ProgramRole marks an executable program.
type ProgramRole struct{}

// CustomRole marks anything else; Tag names the category.
type CustomRole struct {
	Name string
}

func (WalletRole) Kind() RoleKind       { return RoleWallet }
func (MintRole) Kind() RoleKind         { return RoleMint }
func (TokenAccountRole) Kind() RoleKind { return RoleTokenAccount }
func (PDARole) Kind() RoleKind          { return RolePDA }
func (ProgramRole) Kind() RoleKind      { return RoleProgram }
func (CustomRole) Kind() RoleKind       { return RoleCustom }

func (WalletRole) Tag() string       { return "[wallet]" }
func (MintRole) Tag() string         { return "[mint]" }
func (TokenAccountRole) Tag() string { return "[ata]" }
func (ProgramRole) Tag() string      { return "[program]" }
func (r CustomRole) Tag() string     { return "[" + r.Name + "]" }

func (r PDARole) Tag() string {
	if len(r.Seeds) == 0 {
		return "[pda]"
	}
	return "[pda:" + r.Seeds[0] + "]"
}

func (WalletRole) validate() error  { return nil }
func (MintRole) validate() error    { return nil }
func (ProgramRole) validate() error { return nil }

func (r TokenAccountRole) validate() error {
	if r.Mint.IsZero() {
		return fmt.Errorf("%w: token account without mint", ErrInvalidRole)
	}
	if r.Owner.IsZero() {
		return fmt.Errorf("%w: token account without owner", ErrInvalidRole)
	}
	return nil
}

func (r PDARole) validate() error {
	if len(r.Seeds) == 0 {
		return fmt.Errorf("%w: pda without seeds", ErrInvalidRole)
	}
	if r.Program.IsZero() {
		return fmt.Errorf("%w: pda without program", ErrInvalidRole)
	}
	return nil
}

func (r CustomRole) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty custom role", ErrInvalidRole)
	}
	return nil
}

// RolesEqual reports whether two roles are the same variant with the same
// payload.
func RolesEqual(a, b Role) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	pa, ok := a.(PDARole)
	if !ok {
		return a == b
	}
	pb := b.(PDARole)
	if pa.Bump != pb.Bump || pa.Program != pb.Program || len(pa.Seeds) != len(pb.Seeds) {
		return false
	}
	for i := range pa.Seeds {
		if pa.Seeds[i] != pb.Seeds[i] {
			return false
		}
	}
	return true
}

// describeRole renders the role payload for dumps, resolving keys through label.
func describeRole(r Role, label func(types.Pubkey) string) string {
	switch r := r.(type) {
	case TokenAccountRole:
		return fmt.Sprintf("mint:%s owner:%s", label(r.Mint), label(r.Owner))
	case PDARole:
		return fmt.Sprintf("seeds:%s bump:%d program:%s", strings.Join(r.Seeds, ","), r.Bump, label(r.Program))
	default:
		return ""
	}
}
