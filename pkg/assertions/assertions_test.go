package assertions_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fortiblox/testsvm/pkg/assertions"
	"github.com/fortiblox/testsvm/pkg/config"
	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/testsvm"
	"github.com/fortiblox/testsvm/pkg/txresult"
	"github.com/fortiblox/testsvm/pkg/types"
)

var vaultID = types.KeypairFromName("vault program").Pubkey()

// vault rejects a withdrawal (data byte 1) from anyone with code 6000.
var vault = svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
	if len(data) > 0 && data[0] == 1 {
		caller, err := svm.AccountAt(ctx, 0)
		if err != nil {
			return err
		}
		ctx.Log("withdraw requested by %s", caller.Key)
		return svm.AnchorError(ctx, "Unauthorized", svm.AnchorErrorOffset, "Caller is not the vault authority")
	}
	ctx.Log("Instruction: Deposit")
	return nil
})

type env struct {
	svm    *testsvm.TestSVM
	engine *assertions.Engine
	dump   *bytes.Buffer
	alice  types.Keypair
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Color = config.ColorNever

	var dump bytes.Buffer
	s, err := testsvm.New(
		testsvm.WithConfig(cfg),
		testsvm.WithLogger(zaptest.NewLogger(t)),
		testsvm.WithOutput(&dump),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.AddProgram("vault", vaultID, vault))
	s.RegisterErrorTable(vaultID, txresult.ErrorTable{6000: "Unauthorized", 6001: "Paused"})
	alice, err := s.NewWallet("alice")
	require.NoError(t, err)

	return &env{svm: s, engine: s.Assertions(), dump: &dump, alice: alice}
}

func (e *env) withdraw(t *testing.T) *txresult.TxResult {
	t.Helper()
	r, err := e.svm.SendTransaction([]svm.Instruction{{
		ProgramID: vaultID,
		Accounts:  []svm.AccountMeta{svm.NewReadonlyAccountMeta(e.alice.Pubkey(), true)},
		Data:      []byte{1},
	}}, e.alice)
	require.NoError(t, err)
	return r
}

func (e *env) deposit(t *testing.T) *txresult.TxResult {
	t.Helper()
	r, err := e.svm.SendTransaction([]svm.Instruction{{ProgramID: vaultID, Data: []byte{0}}})
	require.NoError(t, err)
	return r
}

func asFailure(t *testing.T, err error) *assertions.AssertionFailure {
	t.Helper()
	var f *assertions.AssertionFailure
	require.True(t, errors.As(err, &f), "expected *AssertionFailure, got %v", err)
	return f
}

func TestExpectSuccess(t *testing.T) {
	e := newEnv(t)

	assert.NoError(t, e.engine.ExpectSuccess(e.deposit(t)))
	assert.Zero(t, e.dump.Len())
}

// An unexpected failure under ExpectSuccess dumps the address book.
func TestExpectSuccessOnFailure(t *testing.T) {
	e := newEnv(t)

	f := asFailure(t, e.engine.ExpectSuccess(e.withdraw(t)))
	assert.Equal(t, "Transaction failed unexpectedly", f.Headline)
	assert.True(t, f.DumpedAddressBook)
	assert.Contains(t, e.dump.String(), "wallet:alice")
	assert.Contains(t, e.dump.String(), "default_fee_payer")
	assert.Contains(t, f.Error(), "InstructionError(0, Custom(6000)) [Unauthorized]")
}

func TestExpectFailure(t *testing.T) {
	e := newEnv(t)

	assert.NoError(t, e.engine.ExpectFailure(e.withdraw(t)))
	assert.Zero(t, e.dump.Len())
}

// A success under ExpectFailure reports the full relabelled success log.
func TestExpectFailureOnSuccess(t *testing.T) {
	e := newEnv(t)
	r := e.deposit(t)

	f := asFailure(t, e.engine.ExpectFailure(r))
	assert.Equal(t, "Transaction succeeded unexpectedly", f.Headline)
	assert.Equal(t, []string{
		"Program vault invoke [1]",
		"Program log: Instruction: Deposit",
		"Program vault consumed 0 of 200000 compute units",
		"Program vault success",
	}, f.Logs)
	assert.Contains(t, f.Error(), "Program log: Instruction: Deposit")
	assert.NotContains(t, f.Error(), vaultID.String())
	assert.True(t, f.DumpedAddressBook)
	assert.Contains(t, e.dump.String(), "vault [program]")
}

func TestExpectFailureWithCode(t *testing.T) {
	e := newEnv(t)
	r := e.withdraw(t)

	assert.NoError(t, e.engine.ExpectFailureWithCode(r, 6000))

	f := asFailure(t, e.engine.ExpectFailureWithCode(r, 1))
	report := f.Error()
	assert.Contains(t, report, "expected 1, got 6000")
	assert.Contains(t, report, "Program log: withdraw requested by wallet:alice")
	assert.Contains(t, report, "Program vault failed: custom program error: 0x1770")
	assert.Contains(t, report, "Account 0: wallet:alice [wallet] [signer]")
	assert.NotContains(t, report, e.alice.Pubkey().String())

	// The failure was expected; only the code differs, so no dump.
	assert.False(t, f.DumpedAddressBook)
	assert.Zero(t, e.dump.Len())
}

func TestExpectFailureWithCodeOnSuccess(t *testing.T) {
	e := newEnv(t)

	f := asFailure(t, e.engine.ExpectFailureWithCode(e.deposit(t), 6000))
	assert.Equal(t, "expected failure, got success", f.Detail)
	assert.True(t, f.DumpedAddressBook)
}

func TestExpectFailureWithCodeOnBuiltinError(t *testing.T) {
	e := newEnv(t)
	poor, err := e.svm.CreateFundedAccount(types.LamportsPerSOL)
	require.NoError(t, err)

	r, err := e.svm.Transfer(poor, e.alice.Pubkey(), 2*types.LamportsPerSOL)
	require.NoError(t, err)

	// The System program reports insufficient lamports as custom code 1.
	assert.NoError(t, e.engine.ExpectFailureWithCode(r, system.ErrResultWithNegativeLamports))
	assert.NoError(t, e.engine.ExpectFailureWithNamedError(r, "ResultWithNegativeLamports"))

	r, err = e.svm.SendTransaction([]svm.Instruction{system.Transfer(poor.Pubkey(), e.alice.Pubkey(), 1)})
	require.NoError(t, err)
	f := asFailure(t, e.engine.ExpectFailureWithCode(r, 1))
	assert.Equal(t, "code: expected 1, got no custom code", f.Detail)
	assert.Contains(t, f.Actual, "SignatureFailure")
}

func TestExpectFailureWithNamedError(t *testing.T) {
	e := newEnv(t)
	r := e.withdraw(t)

	assert.NoError(t, e.engine.ExpectFailureWithNamedError(r, "Unauthorized"))

	f := asFailure(t, e.engine.ExpectFailureWithNamedError(r, "Paused"))
	assert.Equal(t, "name: expected Paused, got Unauthorized", f.Detail)
	assert.False(t, f.DumpedAddressBook)
}

func TestExpectFailureWithInstructionError(t *testing.T) {
	e := newEnv(t)
	r, err := e.svm.SendTransaction([]svm.Instruction{{
		ProgramID: vaultID,
		Accounts:  []svm.AccountMeta{svm.NewReadonlyAccountMeta(e.alice.Pubkey(), false)},
		Data:      []byte{1},
	}})
	require.NoError(t, err)
	assert.NoError(t, e.engine.ExpectFailure(r))

	empty, err := e.svm.SendTransaction([]svm.Instruction{{ProgramID: vaultID, Data: []byte{1}}})
	require.NoError(t, err)
	assert.NoError(t, e.engine.ExpectFailureWithInstructionError(empty, svm.NotEnoughAccountKeys))

	f := asFailure(t, e.engine.ExpectFailureWithInstructionError(r, svm.NotEnoughAccountKeys))
	assert.Equal(t, "instruction error: expected NotEnoughAccountKeys, got Custom(6000)", f.Detail)
}

func TestExpectFailureWithTransactionError(t *testing.T) {
	e := newEnv(t)
	unfunded := types.MustNewKeypair()

	r, err := e.svm.SendTransactionWithPayer([]svm.Instruction{{ProgramID: vaultID}}, unfunded)
	require.NoError(t, err)

	assert.NoError(t, e.engine.ExpectFailureWithTransactionError(r, ledger.AccountNotFound))
	f := asFailure(t, e.engine.ExpectFailureWithTransactionError(r, ledger.InsufficientFundsForFee))
	assert.Equal(t, "transaction error: expected InsufficientFundsForFee, got AccountNotFound", f.Detail)
	assert.Contains(t, f.Error(), "(no logs)")
}

func TestNilResult(t *testing.T) {
	engine := assertions.New(nil)
	assert.Error(t, engine.ExpectSuccess(nil))
	assert.Error(t, engine.ExpectFailure(nil))
	assert.Error(t, engine.ExpectFailureWithCode(nil, 1))
}

func TestRequireAdapters(t *testing.T) {
	e := newEnv(t)
	e.engine.RequireSuccess(t, e.deposit(t))
	r := e.withdraw(t)
	e.engine.RequireFailure(t, r)
	e.engine.RequireFailureWithCode(t, r, 6000)
	e.engine.RequireFailureWithNamedError(t, r, "Unauthorized")
	e.engine.RequireFailureWithInstructionError(t, r, svm.Custom)
	e.engine.RequireFailureWithTransactionError(t, r, ledger.InstructionFailed)
}
