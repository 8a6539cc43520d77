package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// AddProgram installs a native Go program under id. Its invocations are
// logged like deployed programs, including compute unit consumption.
func (l *Ledger) AddProgram(id types.Pubkey, program svm.Program) error {
	return l.installProgram(id, program, false)
}

func (l *Ledger) addBuiltin(id types.Pubkey, program svm.Program) error {
	return l.installProgram(id, program, true)
}

func (l *Ledger) installProgram(id types.Pubkey, program svm.Program, builtin bool) error {
	acc, err := l.db.GetAccount(id)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		acc = &accounts.Account{
			Lamports:   l.MinimumBalanceForRentExemption(0),
			Owner:      types.NativeLoaderAddr,
			Executable: true,
		}
		if err := l.db.SetAccount(id, acc); err != nil {
			return fmt.Errorf("store program %s: %w", id, err)
		}
	case err != nil:
		return fmt.Errorf("load program %s: %w", id, err)
	case !acc.Executable:
		return fmt.Errorf("%w: %s", ErrProgramExists, id)
	}

	l.programs[id] = registeredProgram{impl: program, builtin: builtin}
	l.log.Debug("program added", zap.Stringer("program", id), zap.Bool("builtin", builtin))
	return nil
}

// AddProgramFromFile deploys a compiled program binary under id. Files ending
// in .zst are zstd-compressed. The ledger cannot execute sBPF, so invoking
// such a program fails with UnsupportedProgramId unless a native
// implementation is later installed with AddProgram.
func (l *Ledger) AddProgramFromFile(id types.Pubkey, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read program %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".zst") {
		raw, err = decompress(raw)
		if err != nil {
			return fmt.Errorf("decompress program %s: %w", path, err)
		}
	}
	return l.AddProgramBytes(id, raw)
}

// AddProgramBytes deploys an ELF program image under id.
func (l *Ledger) AddProgramBytes(id types.Pubkey, elf []byte) error {
	if !bytes.HasPrefix(elf, elfMagic) {
		return fmt.Errorf("%w: missing ELF header", ErrInvalidProgram)
	}
	acc := &accounts.Account{
		Lamports:   l.MinimumBalanceForRentExemption(uint64(len(elf))),
		Data:       append([]byte(nil), elf...),
		Owner:      types.BPFLoader2Addr,
		Executable: true,
	}
	if err := l.db.SetAccount(id, acc); err != nil {
		return fmt.Errorf("store program %s: %w", id, err)
	}
	l.log.Debug("program deployed", zap.Stringer("program", id), zap.Int("bytes", len(elf)))
	return nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Compute Budget instruction discriminants.
const (
	computeBudgetRequestHeapFrame               = 1
	computeBudgetSetComputeUnitLimit            = 2
	computeBudgetSetComputeUnitPrice            = 3
	computeBudgetSetLoadedAccountsDataSizeLimit = 4
)

// SetComputeUnitLimit builds a Compute Budget instruction that sets the
// transaction's compute unit limit.
func SetComputeUnitLimit(units uint32) svm.Instruction {
	data := binary.LittleEndian.AppendUint32([]byte{computeBudgetSetComputeUnitLimit}, units)
	return svm.Instruction{ProgramID: types.ComputeBudgetProgramAddr, Data: data}
}

// SetComputeUnitPrice builds a Compute Budget instruction that sets the
// priority fee in micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) svm.Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{computeBudgetSetComputeUnitPrice}, microLamports)
	return svm.Instruction{ProgramID: types.ComputeBudgetProgramAddr, Data: data}
}

// computeBudget is the transaction's resolved compute budget.
type computeBudget struct {
	limit uint64
	price uint64
}

// priorityFee returns ceil(price * limit / 1e6) lamports, saturating at
// math.MaxUint64.
func (b computeBudget) priorityFee() uint64 {
	hi, lo := bits.Mul64(b.price, b.limit)
	if hi >= MicroLamportsPerLamport {
		return math.MaxUint64
	}
	fee, rem := bits.Div64(hi, lo, MicroLamportsPerLamport)
	if rem != 0 {
		if fee == math.MaxUint64 {
			return fee
		}
		fee++
	}
	return fee
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// resolveComputeBudget scans Compute Budget instructions before execution,
// the way the runtime does while sanitizing.
func (l *Ledger) resolveComputeBudget(msg *Message) (computeBudget, *TransactionError) {
	var (
		b                  computeBudget
		limitSet, priceSet bool
		heapSet, sizeSet   bool
	)
	for i, ix := range msg.Instructions {
		if msg.AccountKeys[ix.ProgramIDIndex] != types.ComputeBudgetProgramAddr {
			continue
		}
		invalid := instructionFailed(i, svm.NewInstructionError(svm.InvalidInstructionData))
		if len(ix.Data) == 0 {
			return b, invalid
		}
		body := ix.Data[1:]
		var seen *bool
		switch ix.Data[0] {
		case computeBudgetRequestHeapFrame:
			if len(body) != 4 {
				return b, invalid
			}
			seen = &heapSet
		case computeBudgetSetComputeUnitLimit:
			if len(body) != 4 {
				return b, invalid
			}
			b.limit = uint64(binary.LittleEndian.Uint32(body))
			seen = &limitSet
		case computeBudgetSetComputeUnitPrice:
			if len(body) != 8 {
				return b, invalid
			}
			b.price = binary.LittleEndian.Uint64(body)
			seen = &priceSet
		case computeBudgetSetLoadedAccountsDataSizeLimit:
			if len(body) != 4 {
				return b, invalid
			}
			seen = &sizeSet
		default:
			return b, invalid
		}
		if *seen {
			return b, &TransactionError{Kind: DuplicateInstruction, Index: i}
		}
		*seen = true
	}

	if !limitSet {
		b.limit = uint64(len(msg.Instructions)) * l.cfg.ComputeUnitLimit
	}
	if b.limit > svm.CUMax {
		b.limit = svm.CUMax
	}
	return b, nil
}

// computeBudgetProgram only charges compute; its instructions take effect
// before execution in resolveComputeBudget.
type computeBudgetProgram struct{}

func (computeBudgetProgram) Process(ctx svm.InvokeContext, _ []byte) error {
	return ctx.Meter().Consume(svm.CUComputeBudgetDefault)
}
