// Package assertions checks transaction results against expected outcomes
// and renders diagnostic reports for mismatches.
//
// Every report relabels raw keys in the logs through the address book that
// was in scope when the transaction was sent. The full address book is only
// dumped for outcomes nobody expected: a success where a failure was
// expected, or a failure where a success was expected. A failure that only
// differs from the expected one in its error code or name gets a report
// without the dump.
package assertions

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/txresult"
)

// AssertionFailure is returned when a result does not match the expectation.
type AssertionFailure struct {
	// Headline states what went wrong in one line.
	Headline string

	// Expected and Actual describe the two outcomes.
	Expected string
	Actual   string

	// Detail narrows the mismatch down, e.g. "expected 1, got 6000".
	Detail string

	// Logs are the transaction logs with keys replaced by labels.
	Logs []string

	// Instructions lists the submitted instructions and their accounts.
	Instructions string

	// DumpedAddressBook is set when the address book was written to the
	// engine's output.
	DumpedAddressBook bool

	Result *txresult.TxResult
}

// Error renders the full report.
func (f *AssertionFailure) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Headline)
	fmt.Fprintf(&sb, "\n  expected: %s\n  actual:   %s", f.Expected, f.Actual)
	if f.Detail != "" {
		fmt.Fprintf(&sb, "\n  %s", f.Detail)
	}
	sb.WriteString("\nTransaction logs:")
	if len(f.Logs) == 0 {
		sb.WriteString("\n  (no logs)")
	}
	for _, line := range f.Logs {
		sb.WriteString("\n  ")
		sb.WriteString(line)
	}
	if f.Instructions != "" {
		sb.WriteString("\nInstructions:\n")
		sb.WriteString(f.Instructions)
	}
	return sb.String()
}

// Engine evaluates expectations. Out receives address book dumps; nil
// discards them.
type Engine struct {
	Out io.Writer
}

// New returns an engine writing dumps to out.
func New(out io.Writer) *Engine {
	return &Engine{Out: out}
}

// ExpectSuccess fails unless the transaction succeeded.
func (e *Engine) ExpectSuccess(r *txresult.TxResult) error {
	if r == nil {
		return &AssertionFailure{Headline: "No transaction result", Expected: "success", Actual: "nil result"}
	}
	if r.IsSuccess() {
		return nil
	}
	return e.fail(r, "Transaction failed unexpectedly", "success", true)
}

// ExpectFailure fails unless the transaction failed, for any reason.
func (e *Engine) ExpectFailure(r *txresult.TxResult) error {
	if r == nil {
		return &AssertionFailure{Headline: "No transaction result", Expected: "failure", Actual: "nil result"}
	}
	if !r.IsSuccess() {
		return nil
	}
	return e.fail(r, "Transaction succeeded unexpectedly", "failure", true)
}

// ExpectFailureWithCode fails unless the transaction failed with custom
// program error code.
func (e *Engine) ExpectFailureWithCode(r *txresult.TxResult, code uint32) error {
	expected := fmt.Sprintf("custom program error %d", code)
	if err := e.expectFailed(r, expected); err != nil {
		return err
	}
	got, ok := r.Code()
	if ok && got == code {
		return nil
	}
	f := e.fail(r, "Transaction failed with a different error", expected, false)
	if ok {
		f.Detail = fmt.Sprintf("code: expected %d, got %d", code, got)
	} else {
		f.Detail = fmt.Sprintf("code: expected %d, got no custom code", code)
	}
	return f
}

// ExpectFailureWithNamedError fails unless the transaction failed with a
// custom error named name, either in a registered error table or in an
// Anchor error log line.
func (e *Engine) ExpectFailureWithNamedError(r *txresult.TxResult, name string) error {
	expected := fmt.Sprintf("error %s", name)
	if err := e.expectFailed(r, expected); err != nil {
		return err
	}
	if r.Failure.HasName(name) {
		return nil
	}
	f := e.fail(r, "Transaction failed with a different error", expected, false)
	if got := r.Failure.Name(); got != "" {
		f.Detail = fmt.Sprintf("name: expected %s, got %s", name, got)
	} else {
		f.Detail = fmt.Sprintf("name: expected %s, got an unnamed error", name)
	}
	return f
}

// ExpectFailureWithInstructionError fails unless an instruction failed with
// the given built-in error kind.
func (e *Engine) ExpectFailureWithInstructionError(r *txresult.TxResult, kind svm.InstructionErrorKind) error {
	expected := fmt.Sprintf("instruction error %s", kind)
	if err := e.expectFailed(r, expected); err != nil {
		return err
	}
	ixErr := r.Failure.InstructionError()
	if ixErr != nil && ixErr.Kind == kind {
		return nil
	}
	f := e.fail(r, "Transaction failed with a different error", expected, false)
	if ixErr != nil {
		f.Detail = fmt.Sprintf("instruction error: expected %s, got %s", kind, ixErr.Debug())
	} else {
		f.Detail = fmt.Sprintf("instruction error: expected %s, got transaction error %s", kind, r.Failure.TransactionErrorKind())
	}
	return f
}

// ExpectFailureWithTransactionError fails unless the transaction failed with
// the given top level error kind.
func (e *Engine) ExpectFailureWithTransactionError(r *txresult.TxResult, kind ledger.TransactionErrorKind) error {
	expected := fmt.Sprintf("transaction error %s", kind)
	if err := e.expectFailed(r, expected); err != nil {
		return err
	}
	if r.Failure.TransactionErrorKind() == kind {
		return nil
	}
	f := e.fail(r, "Transaction failed with a different error", expected, false)
	f.Detail = fmt.Sprintf("transaction error: expected %s, got %s", kind, r.Failure.TransactionErrorKind())
	return f
}

// expectFailed reports an unexpected success for the expect-failure family.
func (e *Engine) expectFailed(r *txresult.TxResult, expected string) error {
	if r == nil {
		return &AssertionFailure{Headline: "No transaction result", Expected: expected, Actual: "nil result"}
	}
	if r.IsSuccess() {
		f := e.fail(r, "Transaction succeeded unexpectedly", expected, true)
		f.Detail = "expected failure, got success"
		return f
	}
	return nil
}

func (e *Engine) fail(r *txresult.TxResult, headline, expected string, unexpected bool) *AssertionFailure {
	f := &AssertionFailure{
		Headline:     headline,
		Expected:     expected,
		Actual:       r.Describe(),
		Logs:         r.LabeledLogs(),
		Instructions: describeInstructions(r),
		Result:       r,
	}
	if unexpected && r.Book != nil && e.Out != nil {
		r.Book.WriteAll(e.Out)
		f.DumpedAddressBook = true
	}
	return f
}

// describeInstructions lists each instruction's program and accounts with
// signer and writable flags.
func describeInstructions(r *txresult.TxResult) string {
	if r.Transaction == nil || r.Transaction.Message == nil {
		return ""
	}
	msg := r.Transaction.Message
	format := func(i uint8) string { return msg.AccountKeys[i].String() }
	paint := func(s string, _ color.Attribute) string { return s }
	if r.Book != nil {
		format = func(i uint8) string { return r.Book.FormatAddress(msg.AccountKeys[i]) }
		if r.Book.Colored() {
			paint = func(s string, a color.Attribute) string {
				c := color.New(a)
				c.EnableColor()
				return c.Sprint(s)
			}
		}
	}

	var sb strings.Builder
	for i, ix := range msg.Instructions {
		fmt.Fprintf(&sb, "  Instruction %d: %s\n", i, format(ix.ProgramIDIndex))
		fmt.Fprintf(&sb, "    Accounts: %d total\n", len(ix.Accounts))
		for j, idx := range ix.Accounts {
			var flags []string
			if msg.IsSigner(int(idx)) {
				flags = append(flags, paint("signer", color.FgGreen))
			}
			if msg.IsWritable(int(idx)) {
				flags = append(flags, paint("writable", color.FgYellow))
			}
			line := fmt.Sprintf("      Account %d: %s", j, format(idx))
			if len(flags) > 0 {
				line += " [" + strings.Join(flags, ", ") + "]"
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RequireSuccess stops the test unless r succeeded.
func (e *Engine) RequireSuccess(t testing.TB, r *txresult.TxResult) {
	t.Helper()
	if err := e.ExpectSuccess(r); err != nil {
		t.Fatal(err)
	}
}

// RequireFailure stops the test unless r failed.
func (e *Engine) RequireFailure(t testing.TB, r *txresult.TxResult) {
	t.Helper()
	if err := e.ExpectFailure(r); err != nil {
		t.Fatal(err)
	}
}

// RequireFailureWithCode stops the test unless r failed with code.
func (e *Engine) RequireFailureWithCode(t testing.TB, r *txresult.TxResult, code uint32) {
	t.Helper()
	if err := e.ExpectFailureWithCode(r, code); err != nil {
		t.Fatal(err)
	}
}

// RequireFailureWithNamedError stops the test unless r failed with name.
func (e *Engine) RequireFailureWithNamedError(t testing.TB, r *txresult.TxResult, name string) {
	t.Helper()
	if err := e.ExpectFailureWithNamedError(r, name); err != nil {
		t.Fatal(err)
	}
}

// RequireFailureWithInstructionError stops the test unless an instruction
// failed with kind.
func (e *Engine) RequireFailureWithInstructionError(t testing.TB, r *txresult.TxResult, kind svm.InstructionErrorKind) {
	t.Helper()
	if err := e.ExpectFailureWithInstructionError(r, kind); err != nil {
		t.Fatal(err)
	}
}

// RequireFailureWithTransactionError stops the test unless r failed with kind.
func (e *Engine) RequireFailureWithTransactionError(t testing.TB, r *txresult.TxResult, kind ledger.TransactionErrorKind) {
	t.Helper()
	if err := e.ExpectFailureWithTransactionError(r, kind); err != nil {
		t.Fatal(err)
	}
}
