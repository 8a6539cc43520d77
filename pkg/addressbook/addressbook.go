// Package addressbook labels public keys for test diagnostics.
//
// An AddressBook binds every interesting key of a scenario (wallets, mints,
// token accounts, program derived addresses, programs) to a unique label and
// a role, and rewrites raw base58 keys in transaction logs into those labels.
package addressbook

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/fortiblox/testsvm/pkg/types"
)

// AddressBook is a Registry with role-aware formatting. It is not safe for
// concurrent use; give each scenario its own book or Clone one.
type AddressBook struct {
	*Registry

	out   io.Writer
	color bool
}

// New returns an empty address book writing dumps to stdout. Colour follows
// terminal detection.
func New() *AddressBook {
	return &AddressBook{
		Registry: NewRegistry(),
		out:      os.Stdout,
		color:    !color.NoColor,
	}
}

// Clone returns an independent copy sharing the output settings.
func (b *AddressBook) Clone() *AddressBook {
	return &AddressBook{Registry: b.Registry.Clone(), out: b.out, color: b.color}
}

// SetOutput sets the writer used by PrintAll.
func (b *AddressBook) SetOutput(w io.Writer) {
	b.out = w
}

// SetColor turns ANSI colouring on or off for this book.
func (b *AddressBook) SetColor(enabled bool) {
	b.color = enabled
}

// Colored reports whether formatting emits ANSI colours.
func (b *AddressBook) Colored() bool {
	return b.color
}

// AddWallet registers a wallet.
func (b *AddressBook) AddWallet(key types.Pubkey, label string) error {
	return b.Register(key, label, WalletRole{})
}

// AddMint registers a token mint.
func (b *AddressBook) AddMint(key types.Pubkey, label string) error {
	return b.Register(key, label, MintRole{})
}

// AddTokenAccount registers a token account of mint held by owner.
func (b *AddressBook) AddTokenAccount(key types.Pubkey, label string, mint, owner types.Pubkey) error {
	return b.Register(key, label, TokenAccountRole{Mint: mint, Owner: owner})
}

// AddPDA registers a program derived address from already derived parts.
// Use FindPDA to derive and register in one step.
func (b *AddressBook) AddPDA(key types.Pubkey, label string, seeds []string, bump uint8, program types.Pubkey) error {
	return b.Register(key, label, PDARole{Seeds: seeds, Bump: bump, Program: program})
}

// AddProgram registers a program.
func (b *AddressBook) AddProgram(key types.Pubkey, label string) error {
	return b.Register(key, label, ProgramRole{})
}

// AddCustom registers a key under a caller-defined role name.
func (b *AddressBook) AddCustom(key types.Pubkey, label, role string) error {
	return b.Register(key, label, CustomRole{Name: role})
}

var wellKnownPrograms = []struct {
	key   types.Pubkey
	label string
}{
	{types.SystemProgramAddr, "system_program"},
	{types.TokenProgramAddr, "token_program"},
	{types.Token2022ProgramAddr, "token_2022_program"},
	{types.AssociatedTokenProgramAddr, "associated_token_program"},
	{types.ComputeBudgetProgramAddr, "compute_budget_program"},
	{types.MemoProgramAddr, "memo_program"},
}

var wellKnownSysvars = []struct {
	key   types.Pubkey
	label string
}{
	{types.SysvarClockAddr, "sysvar_clock"},
	{types.SysvarRentAddr, "sysvar_rent"},
}

// SeedWellKnownDefaults registers the native and SPL programs and the clock
// and rent sysvars. Calling it more than once is harmless.
func (b *AddressBook) SeedWellKnownDefaults() error {
	for _, p := range wellKnownPrograms {
		if err := b.AddProgram(p.key, p.label); err != nil {
			return err
		}
	}
	for _, s := range wellKnownSysvars {
		if err := b.AddCustom(s.key, s.label, "sysvar"); err != nil {
			return err
		}
	}
	return nil
}

// GetLabel returns the label for key, or its base58 encoding when unregistered.
func (b *AddressBook) GetLabel(key types.Pubkey) string {
	if a, ok := b.LookupByKey(key); ok {
		return a.Label
	}
	return key.String()
}

func roleColor(k RoleKind) []color.Attribute {
	switch k {
	case RoleWallet:
		return []color.Attribute{color.FgHiCyan, color.Bold}
	case RoleMint:
		return []color.Attribute{color.FgHiGreen}
	case RoleTokenAccount:
		return []color.Attribute{color.FgHiYellow}
	case RolePDA:
		return []color.Attribute{color.FgHiMagenta}
	case RoleProgram:
		return []color.Attribute{color.FgHiBlue}
	default:
		return []color.Attribute{color.FgHiWhite}
	}
}

func (b *AddressBook) paint(s string, attrs ...color.Attribute) string {
	if !b.color {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

// label renders the coloured label of a registration without its tag.
func (b *AddressBook) label(a RegisteredAddress) string {
	return b.paint(a.Label, roleColor(a.Role.Kind())...)
}

// FormatAddress renders key for terminal display: the coloured label followed
// by a dimmed role tag, or the raw key in red when unregistered.
func (b *AddressBook) FormatAddress(key types.Pubkey) string {
	a, ok := b.LookupByKey(key)
	if !ok {
		return b.paint(key.String(), color.FgRed)
	}
	return b.label(a) + " " + b.paint(a.Role.Tag(), color.Faint)
}

func isTokenByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// ReplaceInText substitutes the label of every registered key found in text.
// A key only matches as a whole token: it must start and end on a
// non-alphanumeric boundary, so a key is never replaced inside a longer
// token. Candidates are tried longest encoding first.
func (b *AddressBook) ReplaceInText(text string) string {
	if b.Len() == 0 {
		return text
	}
	type candidate struct {
		enc  string
		addr RegisteredAddress
	}
	cands := make([]candidate, 0, b.Len())
	for _, a := range b.entries {
		cands = append(cands, candidate{enc: a.Key.String(), addr: a})
	}
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].enc) != len(cands[j].enc) {
			return len(cands[i].enc) > len(cands[j].enc)
		}
		return cands[i].enc < cands[j].enc
	})

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		if !isTokenByte(text[i]) {
			sb.WriteByte(text[i])
			i++
			continue
		}
		matched := false
		for _, c := range cands {
			end := i + len(c.enc)
			if end > len(text) || text[i:end] != c.enc {
				continue
			}
			if end < len(text) && isTokenByte(text[end]) {
				continue
			}
			sb.WriteString(b.label(c.addr))
			i = end
			matched = true
			break
		}
		if matched {
			continue
		}
		end := i
		for end < len(text) && isTokenByte(text[end]) {
			end++
		}
		sb.WriteString(text[i:end])
		i = end
	}
	return sb.String()
}

// PrintAll writes every registration to the book's output.
func (b *AddressBook) PrintAll() {
	b.WriteAll(b.out)
}

// WriteAll writes every registration to w in registration order.
func (b *AddressBook) WriteAll(w io.Writer) {
	if b.Len() == 0 {
		fmt.Fprintln(w, "Address book is empty")
		return
	}
	rule := b.paint(strings.Repeat("═", 80), color.Faint)
	fmt.Fprintf(w, "\n%s\n%s (%d entries):\n%s\n", rule,
		b.paint("Address Book", color.Bold), b.Len(), b.paint(strings.Repeat("─", 80), color.Faint))
	for _, a := range b.entries {
		line := fmt.Sprintf("  %s %s %s", b.label(a), b.paint(a.Role.Tag(), color.Faint), b.paint(a.Key.String(), color.Faint))
		if extra := describeRole(a.Role, b.GetLabel); extra != "" {
			line += " " + b.paint(extra, color.Faint)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, rule)
}
