// Package memo implements the SPL Memo program natively.
package memo

import (
	"strconv"
	"unicode/utf8"

	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// ProgramID is the Memo program address.
var ProgramID = types.MemoProgramAddr

// Processor logs memos. Every account passed in must have signed.
type Processor struct{}

// NewProcessor returns a Memo processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process validates signers, checks the memo is UTF-8 and logs it.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.Meter().Consume(svm.CUMemoProgramDefault + uint64(len(data))); err != nil {
		return err
	}
	for i := 0; i < ctx.NumAccounts(); i++ {
		acc, err := ctx.Account(i)
		if err != nil {
			return err
		}
		if !acc.IsSigner {
			ctx.Log("Missing required signature")
			return svm.NewInstructionError(svm.MissingRequiredSignature)
		}
		ctx.Log("Signed by %s", acc.Key)
	}
	if !utf8.Valid(data) {
		ctx.Log("Invalid UTF-8, from byte %d", validPrefix(data))
		return svm.NewInstructionError(svm.InvalidInstructionData)
	}
	ctx.Log("Memo (len %d): %s", len(data), strconv.Quote(string(data)))
	return nil
}

func validPrefix(data []byte) int {
	n := 0
	for n < len(data) {
		r, size := utf8.DecodeRune(data[n:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		n += size
	}
	return n
}

// Memo builds a memo instruction signed by the given keys.
func Memo(text string, signers ...types.Pubkey) svm.Instruction {
	metas := make([]svm.AccountMeta, 0, len(signers))
	for _, s := range signers {
		metas = append(metas, svm.NewReadonlyAccountMeta(s, true))
	}
	return svm.Instruction{ProgramID: ProgramID, Accounts: metas, Data: []byte(text)}
}
