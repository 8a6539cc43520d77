// Package svm holds the execution primitives shared by the simulated ledger
// and its native programs: instructions, the invoke context programs run
// against, instruction errors, compute metering and program derived
// address derivation.
package svm

import (
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/types"
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute units exceeded")

	// ErrComputeInvalidLimit is returned for an out-of-range compute unit limit.
	ErrComputeInvalidLimit = errors.New("invalid compute unit limit")

	// ErrAccountIndex is returned by InvokeContext.Account for an index past the
	// instruction's account list.
	ErrAccountIndex = errors.New("account index out of range")
)

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta returns a writable meta.
func NewAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only meta.
func NewReadonlyAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner}
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// AccountInfo is the mutable view of an account a program sees while it runs.
// Changes are only kept if the instruction succeeds.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// Clock mirrors the Clock sysvar.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

// InvokeContext is what a native program sees while processing one instruction.
type InvokeContext interface {
	// ProgramID returns the id of the executing program.
	ProgramID() types.Pubkey

	// NumAccounts returns the number of accounts passed to the instruction.
	NumAccounts() int

	// Account returns the account at the given instruction index.
	Account(index int) (*AccountInfo, error)

	// RentMinimum returns the rent-exempt minimum balance for dataLen bytes.
	RentMinimum(dataLen uint64) uint64

	// Clock returns the current clock sysvar.
	Clock() Clock

	// Meter returns the transaction's compute meter.
	Meter() *ComputeMeter

	// Log appends a "Program log:" line.
	Log(format string, args ...any)
}

// Program is a native program implemented in Go.
type Program interface {
	Process(ctx InvokeContext, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx InvokeContext, data []byte) error

// Process calls f(ctx, data).
func (f ProgramFunc) Process(ctx InvokeContext, data []byte) error {
	return f(ctx, data)
}

// AccountAt is a convenience wrapper that maps a missing account to
// NotEnoughAccountKeys.
func AccountAt(ctx InvokeContext, index int) (*AccountInfo, error) {
	acc, err := ctx.Account(index)
	if err != nil {
		return nil, NewInstructionError(NotEnoughAccountKeys)
	}
	return acc, nil
}

func (m AccountMeta) String() string {
	return fmt.Sprintf("%s (signer=%t, writable=%t)", m.Pubkey, m.IsSigner, m.IsWritable)
}
