// Package txresult turns ledger execution outcomes into classified results.
package txresult

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fortiblox/testsvm/pkg/addressbook"
	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// Class says at which level a transaction failed.
type Class int

const (
	// TransactionLevel failures reject the whole transaction before or around
	// execution: fees, signatures, blockhash, missing accounts.
	TransactionLevel Class = iota + 1

	// InstructionLevel failures are built-in instruction errors such as
	// InsufficientFunds or MissingRequiredSignature.
	InstructionLevel

	// ProgramLevel failures carry a program-defined custom error code.
	ProgramLevel
)

func (c Class) String() string {
	switch c {
	case TransactionLevel:
		return "transaction"
	case InstructionLevel:
		return "instruction"
	case ProgramLevel:
		return "program"
	default:
		return "none"
	}
}

// ErrorTable maps a program's custom error codes to names.
type ErrorTable map[uint32]string

// Tables holds one ErrorTable per program id. Codes are only resolved
// against the table of the program that failed.
type Tables map[types.Pubkey]ErrorTable

// ErrorClassification describes why a transaction failed.
type ErrorClassification struct {
	Class Class

	// Err is the runtime's transaction error.
	Err *ledger.TransactionError

	// InstructionIndex is the failing instruction, or -1 for transaction
	// level failures.
	InstructionIndex int

	// ProgramID is the program of the failing instruction.
	ProgramID types.Pubkey

	// ProgramErrorCode is set for ProgramLevel failures.
	ProgramErrorCode *uint32

	// ErrorName is the code's name from the caller's ErrorTable.
	ErrorName string

	// AnchorErrorName is recovered from an AnchorError log line.
	AnchorErrorName string
}

// TransactionErrorKind returns the runtime's top level error kind.
func (c *ErrorClassification) TransactionErrorKind() ledger.TransactionErrorKind {
	return c.Err.Kind
}

// InstructionError returns the instruction error, or nil for transaction
// level failures.
func (c *ErrorClassification) InstructionError() *svm.InstructionError {
	return c.Err.Instruction
}

// Name returns the most specific error name known: the Anchor name, then
// the table name.
func (c *ErrorClassification) Name() string {
	if c.AnchorErrorName != "" {
		return c.AnchorErrorName
	}
	return c.ErrorName
}

// HasName reports whether name matches the table or Anchor name.
func (c *ErrorClassification) HasName(name string) bool {
	return name != "" && (c.ErrorName == name || c.AnchorErrorName == name)
}

// String renders the runtime debug form followed by the resolved name, e.g.
// "InstructionError(1, Custom(6000)) [Unauthorized]".
func (c *ErrorClassification) String() string {
	s := c.Err.Debug()
	if name := c.Name(); name != "" {
		s += " [" + name + "]"
	}
	return s
}

// anchorErrorLine matches the line Anchor programs log before returning a
// custom error.
var anchorErrorLine = regexp.MustCompile(`AnchorError.*Error Code: (\w+)\. Error Number: (\d+)\.`)

// anchorErrorName scans logs backwards for the Anchor error reporting code.
func anchorErrorName(logs []string, code uint32) string {
	for i := len(logs) - 1; i >= 0; i-- {
		m := anchorErrorLine.FindStringSubmatch(logs[i])
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[2], 10, 32)
		if err == nil && uint32(n) == code {
			return m[1]
		}
	}
	return ""
}

// Classify builds the classification of a failed transaction. tables may be
// nil; an unknown code only leaves ErrorName empty.
func Classify(tx *ledger.Transaction, failed *ledger.FailedTransaction, tables Tables) *ErrorClassification {
	c := &ErrorClassification{Err: failed.Err, InstructionIndex: -1, Class: TransactionLevel}
	if failed.Err.Kind != ledger.InstructionFailed || failed.Err.Instruction == nil {
		return c
	}

	c.InstructionIndex = failed.Err.Index
	if msg := tx.Message; msg != nil && c.InstructionIndex < len(msg.Instructions) {
		c.ProgramID = msg.AccountKeys[msg.Instructions[c.InstructionIndex].ProgramIDIndex]
	}

	ixErr := failed.Err.Instruction
	if ixErr.Kind != svm.Custom {
		c.Class = InstructionLevel
		return c
	}
	c.Class = ProgramLevel
	code := ixErr.Code
	c.ProgramErrorCode = &code
	if name, ok := tables[c.ProgramID][code]; ok {
		c.ErrorName = name
	}
	c.AnchorErrorName = anchorErrorName(failed.Meta.Logs, code)
	return c
}

// TxResult is the outcome of one submitted transaction. Failure is nil when
// the transaction succeeded.
type TxResult struct {
	Transaction *ledger.Transaction
	Meta        ledger.TransactionMetadata
	Failure     *ErrorClassification

	// Book is the address book in scope when the transaction was sent.
	Book *addressbook.AddressBook
}

// New classifies the result of ledger.SendTransaction. Errors that are not
// transaction failures are returned as is.
func New(tx *ledger.Transaction, meta *ledger.TransactionMetadata, err error, tables Tables, book *addressbook.AddressBook) (*TxResult, error) {
	r := &TxResult{Transaction: tx, Book: book}
	if err == nil {
		r.Meta = *meta
		return r, nil
	}
	var failed *ledger.FailedTransaction
	if !errors.As(err, &failed) {
		return nil, err
	}
	r.Meta = failed.Meta
	r.Failure = Classify(tx, failed, tables)
	return r, nil
}

// IsSuccess reports whether the transaction succeeded.
func (r *TxResult) IsSuccess() bool {
	return r.Failure == nil
}

// Signature returns the transaction signature.
func (r *TxResult) Signature() types.Signature {
	return r.Meta.Signature
}

// Logs returns the program log lines in execution order.
func (r *TxResult) Logs() []string {
	return r.Meta.Logs
}

// ComputeUnits returns the compute units consumed.
func (r *TxResult) ComputeUnits() uint64 {
	return r.Meta.ComputeUnitsConsumed
}

// Fee returns the lamports charged.
func (r *TxResult) Fee() uint64 {
	return r.Meta.Fee
}

// Err returns the transaction error, or nil on success.
func (r *TxResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.Err
}

// Code returns the custom program error code of a ProgramLevel failure.
func (r *TxResult) Code() (uint32, bool) {
	if r.Failure == nil || r.Failure.ProgramErrorCode == nil {
		return 0, false
	}
	return *r.Failure.ProgramErrorCode, true
}

// Describe summarises the outcome on one line.
func (r *TxResult) Describe() string {
	if r.Failure == nil {
		return fmt.Sprintf("success (%d compute units)", r.Meta.ComputeUnitsConsumed)
	}
	return fmt.Sprintf("%s failure: %s", r.Failure.Class, r.Failure)
}

// PrettyLogs returns the logs joined by newlines.
func (r *TxResult) PrettyLogs() string {
	return strings.Join(r.Meta.Logs, "\n")
}

// LabeledLogs returns the logs with registered keys replaced by labels.
func (r *TxResult) LabeledLogs() []string {
	if r.Book == nil {
		return r.Meta.Logs
	}
	out := make([]string, len(r.Meta.Logs))
	for i, line := range r.Meta.Logs {
		out[i] = r.Book.ReplaceInText(line)
	}
	return out
}
