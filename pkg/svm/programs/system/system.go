// Package system implements the native System Program.
//
// Supported instructions: CreateAccount, Assign, Transfer, Allocate and their
// *WithSeed variants. Nonce accounts are not supported.
package system

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount = iota
	InstructionAssign
	InstructionTransfer
	InstructionCreateAccountWithSeed
	InstructionAdvanceNonceAccount
	InstructionWithdrawNonceAccount
	InstructionInitializeNonceAccount
	InstructionAuthorizeNonceAccount
	InstructionAllocate
	InstructionAllocateWithSeed
	InstructionAssignWithSeed
	InstructionTransferWithSeed
	InstructionUpgradeNonceAccount
)

// System program custom error codes.
const (
	ErrAccountAlreadyInUse uint32 = iota
	ErrResultWithNegativeLamports
	ErrInvalidProgramId
	ErrInvalidAccountDataLength
	ErrMaxSeedLengthExceeded
	ErrAddressWithSeedMismatch
	ErrNonceNoRecentBlockhashes
	ErrNonceBlockhashNotExpired
	ErrNonceUnexpectedBlockhashValue
)

// ErrorNames maps the program's custom error codes to their names.
var ErrorNames = map[uint32]string{
	ErrAccountAlreadyInUse:           "AccountAlreadyInUse",
	ErrResultWithNegativeLamports:    "ResultWithNegativeLamports",
	ErrInvalidProgramId:              "InvalidProgramId",
	ErrInvalidAccountDataLength:      "InvalidAccountDataLength",
	ErrMaxSeedLengthExceeded:         "MaxSeedLengthExceeded",
	ErrAddressWithSeedMismatch:       "AddressWithSeedMismatch",
	ErrNonceNoRecentBlockhashes:      "NonceNoRecentBlockhashes",
	ErrNonceBlockhashNotExpired:      "NonceBlockhashNotExpired",
	ErrNonceUnexpectedBlockhashValue: "NonceUnexpectedBlockhashValue",
}

// MaxSeedLen bounds the seed of the *WithSeed instructions.
const MaxSeedLen = 32

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.Meter().Consume(svm.CUSystemProgramDefault); err != nil {
		return err
	}
	if len(data) < 4 {
		return svm.NewInstructionError(svm.InvalidInstructionData)
	}

	r := &reader{buf: data[4:]}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.createAccount(ctx, r)
	case InstructionAssign:
		return p.assign(ctx, r)
	case InstructionTransfer:
		return p.transfer(ctx, r)
	case InstructionCreateAccountWithSeed:
		return p.createAccountWithSeed(ctx, r)
	case InstructionAllocate:
		return p.allocate(ctx, r)
	case InstructionAllocateWithSeed:
		return p.allocateWithSeed(ctx, r)
	case InstructionAssignWithSeed:
		return p.assignWithSeed(ctx, r)
	case InstructionTransferWithSeed:
		return p.transferWithSeed(ctx, r)
	default:
		return svm.NewInstructionError(svm.InvalidInstructionData)
	}
}

// createAccount: [0] funder (signer, writable), [1] new account (signer, writable).
func (p *Processor) createAccount(ctx svm.InvokeContext, r *reader) error {
	lamports, space, owner := r.u64(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}
	funder, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	if !to.IsSigner {
		ctx.Log("Create Account: account %s must sign", to.Key)
		return svm.NewInstructionError(svm.MissingRequiredSignature)
	}
	if to.Lamports > 0 {
		ctx.Log("Create Account: account %s already in use", to.Key)
		return svm.CustomError(ErrAccountAlreadyInUse)
	}
	if err := p.allocateAndAssign(ctx, to, space, owner); err != nil {
		return err
	}
	return p.move(ctx, funder, to, lamports)
}

// createAccountWithSeed: [0] funder, [1] derived account, [2] base (optional).
func (p *Processor) createAccountWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed := r.pubkey(), r.str()
	lamports, space, owner := r.u64(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}
	funder, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	if err := checkSeedAddress(ctx, to.Key, base, seed, owner); err != nil {
		return err
	}
	if to.Lamports > 0 {
		ctx.Log("Create Account: account %s already in use", to.Key)
		return svm.CustomError(ErrAccountAlreadyInUse)
	}
	if err := p.allocateAndAssign(ctx, to, space, owner); err != nil {
		return err
	}
	return p.move(ctx, funder, to, lamports)
}

// assign: [0] account (signer, writable).
func (p *Processor) assign(ctx svm.InvokeContext, r *reader) error {
	owner := r.pubkey()
	if r.err != nil {
		return r.err
	}
	acc, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return err
	}
	if acc.Owner == owner {
		return nil
	}
	if !acc.IsSigner {
		ctx.Log("Assign: account %s must sign", acc.Key)
		return svm.NewInstructionError(svm.MissingRequiredSignature)
	}
	acc.Owner = owner
	return nil
}

// assignWithSeed: [0] derived account, [1] base (signer).
func (p *Processor) assignWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed, owner := r.pubkey(), r.str(), r.pubkey()
	if r.err != nil {
		return r.err
	}
	acc, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return err
	}
	if err := checkSeedAddress(ctx, acc.Key, base, seed, owner); err != nil {
		return err
	}
	acc.Owner = owner
	return nil
}

// allocate: [0] account (signer, writable).
func (p *Processor) allocate(ctx svm.InvokeContext, r *reader) error {
	space := r.u64()
	if r.err != nil {
		return r.err
	}
	acc, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return err
	}
	if !acc.IsSigner {
		ctx.Log("Allocate: 'to' account %s must sign", acc.Key)
		return svm.NewInstructionError(svm.MissingRequiredSignature)
	}
	return p.allocateSpace(ctx, acc, space)
}

// allocateWithSeed: [0] derived account, [1] base (signer).
func (p *Processor) allocateWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed, space, owner := r.pubkey(), r.str(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}
	acc, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return err
	}
	if err := checkSeedAddress(ctx, acc.Key, base, seed, owner); err != nil {
		return err
	}
	return p.allocateAndAssign(ctx, acc, space, owner)
}

// transfer: [0] from (signer, writable), [1] to (writable).
func (p *Processor) transfer(ctx svm.InvokeContext, r *reader) error {
	lamports := r.u64()
	if r.err != nil {
		return r.err
	}
	from, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	return p.move(ctx, from, to, lamports)
}

// transferWithSeed: [0] derived from, [1] base (signer), [2] to.
func (p *Processor) transferWithSeed(ctx svm.InvokeContext, r *reader) error {
	lamports, seed, fromOwner := r.u64(), r.str(), r.pubkey()
	if r.err != nil {
		return r.err
	}
	from, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return err
	}
	base, err := svm.AccountAt(ctx, 1)
	if err != nil {
		return err
	}
	to, err := svm.AccountAt(ctx, 2)
	if err != nil {
		return err
	}
	if !base.IsSigner {
		ctx.Log("Transfer: `from` account %s must sign", base.Key)
		return svm.NewInstructionError(svm.MissingRequiredSignature)
	}
	if err := checkSeedAddress(ctx, from.Key, base.Key, seed, fromOwner); err != nil {
		return err
	}
	return p.debit(ctx, from, to, lamports)
}

// move transfers lamports out of a signing, system-owned, data-less account.
func (p *Processor) move(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		ctx.Log("Transfer: `from` account %s must sign", from.Key)
		return svm.NewInstructionError(svm.MissingRequiredSignature)
	}
	if len(from.Data) != 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return svm.NewInstructionError(svm.InvalidArgument)
	}
	return p.debit(ctx, from, to, lamports)
}

func (p *Processor) debit(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if from.Lamports < lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return svm.CustomError(ErrResultWithNegativeLamports)
	}
	if to.Lamports > ^uint64(0)-lamports {
		return svm.NewInstructionError(svm.ArithmeticOverflow)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func (p *Processor) allocateAndAssign(ctx svm.InvokeContext, acc *svm.AccountInfo, space uint64, owner types.Pubkey) error {
	if err := p.allocateSpace(ctx, acc, space); err != nil {
		return err
	}
	acc.Owner = owner
	return nil
}

// allocateSpace sizes a fresh system-owned account.
func (p *Processor) allocateSpace(ctx svm.InvokeContext, acc *svm.AccountInfo, space uint64) error {
	if len(acc.Data) != 0 || acc.Owner != ProgramID {
		ctx.Log("Allocate: account %s already in use", acc.Key)
		return svm.CustomError(ErrAccountAlreadyInUse)
	}
	if space > accounts.MaxAccountDataSize {
		ctx.Log("Allocate: requested %d, max allowed %d", space, accounts.MaxAccountDataSize)
		return svm.CustomError(ErrInvalidAccountDataLength)
	}
	acc.Data = make([]byte, space)
	return nil
}

func twoAccounts(ctx svm.InvokeContext) (*svm.AccountInfo, *svm.AccountInfo, error) {
	a, err := svm.AccountAt(ctx, 0)
	if err != nil {
		return nil, nil, err
	}
	b, err := svm.AccountAt(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func checkSeedAddress(ctx svm.InvokeContext, got, base types.Pubkey, seed string, owner types.Pubkey) error {
	if len(seed) > MaxSeedLen {
		return svm.CustomError(ErrMaxSeedLengthExceeded)
	}
	if want := CreateWithSeed(base, seed, owner); want != got {
		ctx.Log("Create: address %s does not match derived address %s", got, want)
		return svm.CustomError(ErrAddressWithSeedMismatch)
	}
	return nil
}

// CreateWithSeed derives sha256(base || seed || owner).
func CreateWithSeed(base types.Pubkey, seed string, owner types.Pubkey) types.Pubkey {
	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])

	var out types.Pubkey
	copy(out[:], h.Sum(nil))
	return out
}

// reader decodes bincode-style little endian instruction payloads.
// The first decoding failure sticks in err.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = svm.NewInstructionError(svm.InvalidInstructionData)
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], r.take(types.PubkeySize))
	return pk
}

func (r *reader) str() string {
	n := r.u64()
	if n > MaxSeedLen*4 {
		r.err = svm.NewInstructionError(svm.InvalidInstructionData)
		return ""
	}
	return string(r.take(int(n)))
}
