package system

import (
	"encoding/binary"

	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// Transfer builds a Transfer instruction.
func Transfer(from, to types.Pubkey, lamports uint64) svm.Instruction {
	w := newWriter(InstructionTransfer)
	w.u64(lamports)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(from, true),
			svm.NewAccountMeta(to, false),
		},
		Data: w.buf,
	}
}

// CreateAccount builds a CreateAccount instruction. Both accounts must sign.
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) svm.Instruction {
	w := newWriter(InstructionCreateAccount)
	w.u64(lamports)
	w.u64(space)
	w.pubkey(owner)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(from, true),
			svm.NewAccountMeta(newAccount, true),
		},
		Data: w.buf,
	}
}

// CreateAccountWithSeed builds a CreateAccountWithSeed instruction for the
// address CreateWithSeed(base, seed, owner).
func CreateAccountWithSeed(from, base types.Pubkey, seed string, lamports, space uint64, owner types.Pubkey) svm.Instruction {
	w := newWriter(InstructionCreateAccountWithSeed)
	w.pubkey(base)
	w.str(seed)
	w.u64(lamports)
	w.u64(space)
	w.pubkey(owner)

	metas := []svm.AccountMeta{
		svm.NewAccountMeta(from, true),
		svm.NewAccountMeta(CreateWithSeed(base, seed, owner), false),
	}
	if base != from {
		metas = append(metas, svm.NewReadonlyAccountMeta(base, true))
	}
	return svm.Instruction{ProgramID: ProgramID, Accounts: metas, Data: w.buf}
}

// Assign builds an Assign instruction.
func Assign(account, owner types.Pubkey) svm.Instruction {
	w := newWriter(InstructionAssign)
	w.pubkey(owner)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.NewAccountMeta(account, true)},
		Data:      w.buf,
	}
}

// Allocate builds an Allocate instruction.
func Allocate(account types.Pubkey, space uint64) svm.Instruction {
	w := newWriter(InstructionAllocate)
	w.u64(space)
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.NewAccountMeta(account, true)},
		Data:      w.buf,
	}
}

type writer struct {
	buf []byte
}

func newWriter(discriminant uint32) *writer {
	return &writer{buf: binary.LittleEndian.AppendUint32(nil, discriminant)}
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) pubkey(p types.Pubkey) {
	w.buf = append(w.buf, p[:]...)
}

func (w *writer) str(s string) {
	w.u64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}
