package ledger

import (
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/svm"
)

var (
	// ErrInvalidAirdrop is returned for a zero-lamport airdrop.
	ErrInvalidAirdrop = errors.New("airdrop amount must be positive")

	// ErrInvalidProgram is returned when a program file is not an ELF binary.
	ErrInvalidProgram = errors.New("invalid program binary")

	// ErrProgramExists is returned when a program id is already an account that
	// is not executable.
	ErrProgramExists = errors.New("program id already used by a non-executable account")

	// ErrInsufficientFundsForRent is returned by Airdrop when the credited
	// balance stays below the rent-exempt minimum.
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")
)

// TransactionErrorKind enumerates transaction-level failures.
type TransactionErrorKind int

// Transaction error kinds, named after the runtime's variants.
const (
	AccountNotFound TransactionErrorKind = iota
	ProgramAccountNotFound
	InsufficientFundsForFee
	InvalidAccountForFee
	AlreadyProcessed
	BlockhashNotFound
	InstructionFailed
	SignatureFailure
	SanitizeFailure
	MissingSignatureForFee
	InvalidProgramForExecution
	DuplicateInstruction
	InsufficientFundsForRent
)

var txKindInfo = map[TransactionErrorKind]struct{ name, msg string }{
	AccountNotFound:            {"AccountNotFound", "Attempt to debit an account but found no record of a prior credit."},
	ProgramAccountNotFound:     {"ProgramAccountNotFound", "Attempt to load a program that does not exist"},
	InsufficientFundsForFee:    {"InsufficientFundsForFee", "Insufficient funds for fee"},
	InvalidAccountForFee:       {"InvalidAccountForFee", "This account may not be used to pay transaction fees"},
	AlreadyProcessed:           {"AlreadyProcessed", "This transaction has already been processed"},
	BlockhashNotFound:          {"BlockhashNotFound", "Blockhash not found"},
	InstructionFailed:          {"InstructionError", "Error processing Instruction"},
	SignatureFailure:           {"SignatureFailure", "Transaction did not pass signature verification"},
	SanitizeFailure:            {"SanitizeFailure", "Transaction failed to sanitize accounts offsets correctly"},
	MissingSignatureForFee:     {"MissingSignatureForFee", "Transaction requires a fee but has no signature present"},
	InvalidProgramForExecution: {"InvalidProgramForExecution", "Transaction loads a program account that is not executable"},
	DuplicateInstruction:       {"DuplicateInstruction", "Transaction contains a duplicate instruction that is not allowed"},
	InsufficientFundsForRent:   {"InsufficientFundsForRent", "Transaction results in an account with insufficient funds for rent"},
}

// String returns the variant name.
func (k TransactionErrorKind) String() string {
	if info, ok := txKindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("TransactionErrorKind(%d)", int(k))
}

// TransactionError is a classified transaction failure.
type TransactionError struct {
	Kind TransactionErrorKind

	// Index is the failing instruction for InstructionFailed and
	// DuplicateInstruction, and the offending account for InsufficientFundsForRent.
	Index int

	// Instruction is set for InstructionFailed.
	Instruction *svm.InstructionError
}

func instructionFailed(index int, err *svm.InstructionError) *TransactionError {
	return &TransactionError{Kind: InstructionFailed, Index: index, Instruction: err}
}

// Error renders the runtime's display message.
func (e *TransactionError) Error() string {
	switch e.Kind {
	case InstructionFailed:
		return fmt.Sprintf("Error processing Instruction %d: %v", e.Index, e.Instruction)
	case DuplicateInstruction:
		return fmt.Sprintf("Transaction contains a duplicate instruction (%d) that is not allowed", e.Index)
	case InsufficientFundsForRent:
		return fmt.Sprintf("Transaction results in an account (%d) with insufficient funds for rent", e.Index)
	}
	return txKindInfo[e.Kind].msg
}

// Debug renders the runtime's debug form, e.g. "InstructionError(0, Custom(6000))".
func (e *TransactionError) Debug() string {
	switch e.Kind {
	case InstructionFailed:
		return fmt.Sprintf("InstructionError(%d, %s)", e.Index, e.Instruction.Debug())
	case DuplicateInstruction, InsufficientFundsForRent:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Index)
	}
	return e.Kind.String()
}

// Unwrap exposes the instruction error so errors.Is can match it.
func (e *TransactionError) Unwrap() error {
	if e.Instruction == nil {
		return nil
	}
	return e.Instruction
}

// Is matches transaction errors of the same kind.
func (e *TransactionError) Is(target error) bool {
	t, ok := target.(*TransactionError)
	return ok && t.Kind == e.Kind
}

// FailedTransaction is returned by SendTransaction when the transaction
// failed. Meta still carries the logs and the fee that was charged.
type FailedTransaction struct {
	Err  *TransactionError
	Meta TransactionMetadata
}

func (f *FailedTransaction) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", f.Meta.Signature, f.Err)
}

func (f *FailedTransaction) Unwrap() error {
	return f.Err
}
