package svm

import (
	"errors"
	"fmt"
)

// InstructionErrorKind enumerates the runtime's built-in instruction errors.
type InstructionErrorKind int

// Instruction error kinds, named after the runtime's variants.
const (
	GenericError InstructionErrorKind = iota
	InvalidArgument
	InvalidInstructionData
	InvalidAccountData
	AccountDataTooSmall
	InsufficientFunds
	IncorrectProgramId
	MissingRequiredSignature
	AccountAlreadyInitialized
	UninitializedAccount
	UnbalancedInstruction
	ModifiedProgramId
	ExternalAccountLamportSpend
	ExternalAccountDataModified
	ReadonlyLamportChange
	ReadonlyDataModified
	ExecutableModified
	NotEnoughAccountKeys
	AccountNotExecutable
	InvalidSeeds
	MaxSeedLengthExceeded
	InvalidAccountOwner
	ComputationalBudgetExceeded
	UnsupportedProgramId
	ProgramFailedToComplete
	ArithmeticOverflow
	Custom
)

var kindInfo = map[InstructionErrorKind]struct{ name, msg string }{
	GenericError:                {"GenericError", "generic instruction error"},
	InvalidArgument:             {"InvalidArgument", "invalid program argument"},
	InvalidInstructionData:      {"InvalidInstructionData", "invalid instruction data"},
	InvalidAccountData:          {"InvalidAccountData", "invalid account data for instruction"},
	AccountDataTooSmall:         {"AccountDataTooSmall", "account data too small for instruction"},
	InsufficientFunds:           {"InsufficientFunds", "insufficient funds for instruction"},
	IncorrectProgramId:          {"IncorrectProgramId", "incorrect program id for instruction"},
	MissingRequiredSignature:    {"MissingRequiredSignature", "missing required signature for instruction"},
	AccountAlreadyInitialized:   {"AccountAlreadyInitialized", "instruction requires an uninitialized account"},
	UninitializedAccount:        {"UninitializedAccount", "instruction requires an initialized account"},
	UnbalancedInstruction:       {"UnbalancedInstruction", "sum of account balances before and after instruction do not match"},
	ModifiedProgramId:           {"ModifiedProgramId", "instruction illegally modified the program id of an account"},
	ExternalAccountLamportSpend: {"ExternalAccountLamportSpend", "instruction spent from the balance of an account it does not own"},
	ExternalAccountDataModified: {"ExternalAccountDataModified", "instruction modified data of an account it does not own"},
	ReadonlyLamportChange:       {"ReadonlyLamportChange", "instruction changed the balance of a read-only account"},
	ReadonlyDataModified:        {"ReadonlyDataModified", "instruction modified data of a read-only account"},
	ExecutableModified:          {"ExecutableModified", "instruction changed executable bit of an account"},
	NotEnoughAccountKeys:        {"NotEnoughAccountKeys", "insufficient account keys for instruction"},
	AccountNotExecutable:        {"AccountNotExecutable", "instruction expected an executable account"},
	InvalidSeeds:                {"InvalidSeeds", "Provided seeds do not result in a valid address"},
	MaxSeedLengthExceeded:       {"MaxSeedLengthExceeded", "Length of the seed is too long for address generation"},
	InvalidAccountOwner:         {"InvalidAccountOwner", "Invalid account owner"},
	ComputationalBudgetExceeded: {"ComputationalBudgetExceeded", "Computational budget exceeded"},
	UnsupportedProgramId:        {"UnsupportedProgramId", "Unsupported program id"},
	ProgramFailedToComplete:     {"ProgramFailedToComplete", "Program failed to complete"},
	ArithmeticOverflow:          {"ArithmeticOverflow", "Program arithmetic overflowed"},
	Custom:                      {"Custom", "custom program error"},
}

// String returns the variant name, e.g. "InsufficientFunds".
func (k InstructionErrorKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("InstructionErrorKind(%d)", int(k))
}

// InstructionError is the error a program returns to reject an instruction.
type InstructionError struct {
	Kind InstructionErrorKind

	// Code is set for Custom errors only.
	Code uint32
}

// NewInstructionError returns a built-in instruction error.
func NewInstructionError(kind InstructionErrorKind) *InstructionError {
	return &InstructionError{Kind: kind}
}

// CustomError returns a program-defined error with the given code.
func CustomError(code uint32) *InstructionError {
	return &InstructionError{Kind: Custom, Code: code}
}

// Error renders the message the runtime prints after "failed: ".
func (e *InstructionError) Error() string {
	if e.Kind == Custom {
		return fmt.Sprintf("custom program error: %#x", e.Code)
	}
	if info, ok := kindInfo[e.Kind]; ok {
		return info.msg
	}
	return e.Kind.String()
}

// Debug renders the error like the runtime's debug form, e.g. "Custom(6000)".
func (e *InstructionError) Debug() string {
	if e.Kind == Custom {
		return fmt.Sprintf("Custom(%d)", e.Code)
	}
	return e.Kind.String()
}

// Is matches instruction errors of the same kind, and for Custom the same code.
func (e *InstructionError) Is(target error) bool {
	var t *InstructionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (e.Kind != Custom || t.Code == e.Code)
}

// AsInstructionError converts any program error into an InstructionError.
// Errors that are not instruction errors become ProgramFailedToComplete, and
// ErrComputeExceeded becomes ComputationalBudgetExceeded.
func AsInstructionError(err error) *InstructionError {
	if err == nil {
		return nil
	}
	var ie *InstructionError
	if errors.As(err, &ie) {
		return ie
	}
	if errors.Is(err, ErrComputeExceeded) {
		return NewInstructionError(ComputationalBudgetExceeded)
	}
	return NewInstructionError(ProgramFailedToComplete)
}

// AnchorErrorOffset is the first code Anchor assigns to program errors.
const AnchorErrorOffset = 6000

// AnchorError logs an Anchor style error line and returns the matching
// custom error, the way Anchor programs report their own errors.
func AnchorError(ctx InvokeContext, name string, code uint32, msg string) *InstructionError {
	ctx.Log("AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", name, code, msg)
	return CustomError(code)
}
