package txresult

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fortiblox/testsvm/pkg/addressbook"
	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/types"
)

var (
	payer   = types.KeypairFromName("payer")
	bob     = types.KeypairFromName("bob").Pubkey()
	program = types.KeypairFromName("program").Pubkey()
)

// vault rejects instruction data byte 1 with an Anchor error, byte 2 with a
// bare custom code and byte 3 with a built-in error.
var vault = svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
	if len(data) == 0 {
		ctx.Log("Instruction: Noop")
		return nil
	}
	switch data[0] {
	case 1:
		return svm.AnchorError(ctx, "Unauthorized", svm.AnchorErrorOffset, "Caller is not the vault authority")
	case 2:
		return svm.CustomError(42)
	default:
		return svm.NewInstructionError(svm.InvalidInstructionData)
	}
})

type fixture struct {
	l    *ledger.Ledger
	book *addressbook.AddressBook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := ledger.DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	l, err := ledger.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	require.NoError(t, l.Airdrop(payer.Pubkey(), 10*types.LamportsPerSOL))
	require.NoError(t, l.AddProgram(program, vault))

	book := addressbook.New()
	book.SetColor(false)
	require.NoError(t, book.AddWallet(payer.Pubkey(), "payer"))
	require.NoError(t, book.AddProgram(program, "vault"))
	return &fixture{l: l, book: book}
}

func (f *fixture) send(t *testing.T, tables Tables, ixs ...svm.Instruction) *TxResult {
	t.Helper()
	tx, err := ledger.NewTransaction(ixs, payer.Pubkey(), f.l.LatestBlockhash())
	require.NoError(t, err)
	tx.PartialSign(payer)
	meta, err := f.l.SendTransaction(tx)
	r, err := New(tx, meta, err, tables, f.book)
	require.NoError(t, err)
	return r
}

func TestSuccess(t *testing.T) {
	f := newFixture(t)
	r := f.send(t, nil, system.Transfer(payer.Pubkey(), bob, 1_000_000))

	assert.True(t, r.IsSuccess())
	assert.NoError(t, r.Err())
	assert.Equal(t, svm.CUSystemProgramDefault, r.ComputeUnits())
	assert.Equal(t, ledger.DefaultLamportsPerSignature, r.Fee())
	assert.Len(t, r.Logs(), 2)
	_, ok := r.Code()
	assert.False(t, ok)
	assert.Equal(t, "success (150 compute units)", r.Describe())
}

func TestProgramLevelWithAnchorName(t *testing.T) {
	f := newFixture(t)
	tables := Tables{program: {6000: "Unauthorized"}}
	r := f.send(t, tables,
		system.Transfer(payer.Pubkey(), bob, 1_000_000),
		svm.Instruction{ProgramID: program, Data: []byte{1}},
	)

	require.False(t, r.IsSuccess())
	c := r.Failure
	assert.Equal(t, ProgramLevel, c.Class)
	assert.Equal(t, 1, c.InstructionIndex)
	assert.Equal(t, program, c.ProgramID)
	code, ok := r.Code()
	require.True(t, ok)
	assert.Equal(t, uint32(6000), code)
	assert.Equal(t, "Unauthorized", c.ErrorName)
	assert.Equal(t, "Unauthorized", c.AnchorErrorName)
	assert.True(t, c.HasName("Unauthorized"))
	assert.Equal(t, ledger.InstructionFailed, c.TransactionErrorKind())
	assert.Equal(t, "program failure: InstructionError(1, Custom(6000)) [Unauthorized]", r.Describe())
	assert.ErrorIs(t, r.Err(), svm.CustomError(6000))
}

// Codes are resolved against the failing program's table only.
func TestProgramLevelTablePerProgram(t *testing.T) {
	f := newFixture(t)
	tables := Tables{system.ProgramID: {42: "NotMine"}}
	r := f.send(t, tables, svm.Instruction{ProgramID: program, Data: []byte{2}})

	c := r.Failure
	require.NotNil(t, c)
	assert.Equal(t, ProgramLevel, c.Class)
	assert.Empty(t, c.ErrorName)
	assert.Empty(t, c.AnchorErrorName)
	assert.Equal(t, "InstructionError(0, Custom(42))", c.String())
}

func TestInstructionLevel(t *testing.T) {
	f := newFixture(t)
	r := f.send(t, nil, svm.Instruction{ProgramID: program, Data: []byte{3}})

	c := r.Failure
	require.NotNil(t, c)
	assert.Equal(t, InstructionLevel, c.Class)
	assert.Nil(t, c.ProgramErrorCode)
	assert.Equal(t, svm.InvalidInstructionData, c.InstructionError().Kind)
	assert.NotEmpty(t, r.Logs())
}

func TestTransactionLevel(t *testing.T) {
	f := newFixture(t)
	poor := types.KeypairFromName("poor")

	tx, err := ledger.NewTransaction([]svm.Instruction{system.Transfer(poor.Pubkey(), bob, 1)}, poor.Pubkey(), f.l.LatestBlockhash())
	require.NoError(t, err)
	tx.PartialSign(poor)
	meta, err := f.l.SendTransaction(tx)
	r, err := New(tx, meta, err, nil, f.book)
	require.NoError(t, err)

	c := r.Failure
	require.NotNil(t, c)
	assert.Equal(t, TransactionLevel, c.Class)
	assert.Equal(t, -1, c.InstructionIndex)
	assert.Equal(t, ledger.AccountNotFound, c.TransactionErrorKind())
	assert.Nil(t, c.InstructionError())
	assert.Equal(t, "transaction failure: AccountNotFound", r.Describe())
}

func TestNewPassesThroughInternalErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := New(&ledger.Transaction{}, nil, boom, nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestAnchorErrorNameRequiresMatchingCode(t *testing.T) {
	logs := []string{
		"Program log: AnchorError occurred. Error Code: First. Error Number: 6000. Error Message: a.",
		"Program log: AnchorError thrown in programs/vault/src/lib.rs:12. Error Code: Second. Error Number: 6001. Error Message: b.",
	}
	assert.Equal(t, "First", anchorErrorName(logs, 6000))
	assert.Equal(t, "Second", anchorErrorName(logs, 6001))
	assert.Empty(t, anchorErrorName(logs, 6002))
}

func TestLabeledLogs(t *testing.T) {
	f := newFixture(t)
	r := f.send(t, nil, svm.Instruction{ProgramID: program})

	assert.Equal(t, []string{
		"Program vault invoke [1]",
		"Program log: Instruction: Noop",
		"Program vault consumed 0 of 200000 compute units",
		"Program vault success",
	}, r.LabeledLogs())
	assert.Contains(t, r.PrettyLogs(), program.String())

	r.Book = nil
	assert.Equal(t, r.Logs(), r.LabeledLogs())
}
