package system

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// mockContext runs one instruction against in-memory account infos.
type mockContext struct {
	accounts []*svm.AccountInfo
	meter    *svm.ComputeMeter
	logs     []string
}

func newMockContext(ix svm.Instruction, lamports map[types.Pubkey]uint64) *mockContext {
	ctx := &mockContext{meter: svm.NewComputeMeter(svm.CUDefault)}
	for _, m := range ix.Accounts {
		ctx.accounts = append(ctx.accounts, &svm.AccountInfo{
			Key:        m.Pubkey,
			Owner:      ProgramID,
			Lamports:   lamports[m.Pubkey],
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}
	return ctx
}

func (m *mockContext) ProgramID() types.Pubkey { return ProgramID }
func (m *mockContext) NumAccounts() int        { return len(m.accounts) }
func (m *mockContext) Account(i int) (*svm.AccountInfo, error) {
	if i < 0 || i >= len(m.accounts) {
		return nil, svm.ErrAccountIndex
	}
	return m.accounts[i], nil
}
func (m *mockContext) RentMinimum(n uint64) uint64 { return (128 + n) * 6960 }
func (m *mockContext) Clock() svm.Clock            { return svm.Clock{} }
func (m *mockContext) Meter() *svm.ComputeMeter    { return m.meter }
func (m *mockContext) Log(format string, args ...any) {
	m.logs = append(m.logs, fmt.Sprintf(format, args...))
}

func TestTransfer(t *testing.T) {
	alice := types.KeypairFromName("alice").Pubkey()
	bob := types.KeypairFromName("bob").Pubkey()

	ix := Transfer(alice, bob, 400)
	ctx := newMockContext(ix, map[types.Pubkey]uint64{alice: 1000})

	require.NoError(t, NewProcessor().Process(ctx, ix.Data))
	assert.Equal(t, uint64(600), ctx.accounts[0].Lamports)
	assert.Equal(t, uint64(400), ctx.accounts[1].Lamports)
	assert.Equal(t, svm.CUSystemProgramDefault, ctx.meter.Consumed())
}

func TestTransferInsufficientLamports(t *testing.T) {
	alice := types.KeypairFromName("alice").Pubkey()
	bob := types.KeypairFromName("bob").Pubkey()

	ix := Transfer(alice, bob, 5000)
	ctx := newMockContext(ix, map[types.Pubkey]uint64{alice: 1000})

	err := NewProcessor().Process(ctx, ix.Data)
	assert.ErrorIs(t, err, svm.CustomError(ErrResultWithNegativeLamports))
	assert.Equal(t, []string{"Transfer: insufficient lamports 1000, need 5000"}, ctx.logs)
	assert.Equal(t, uint64(1000), ctx.accounts[0].Lamports)
}

func TestTransferRequiresSigner(t *testing.T) {
	alice := types.KeypairFromName("alice").Pubkey()
	bob := types.KeypairFromName("bob").Pubkey()

	ix := Transfer(alice, bob, 1)
	ix.Accounts[0].IsSigner = false
	ctx := newMockContext(ix, map[types.Pubkey]uint64{alice: 10})

	err := NewProcessor().Process(ctx, ix.Data)
	assert.ErrorIs(t, err, svm.NewInstructionError(svm.MissingRequiredSignature))
}

func TestCreateAccount(t *testing.T) {
	payer := types.KeypairFromName("payer").Pubkey()
	fresh := types.KeypairFromName("fresh").Pubkey()
	owner := types.MemoProgramAddr

	ix := CreateAccount(payer, fresh, 2_000_000, 64, owner)
	ctx := newMockContext(ix, map[types.Pubkey]uint64{payer: 10_000_000})

	require.NoError(t, NewProcessor().Process(ctx, ix.Data))
	created := ctx.accounts[1]
	assert.Equal(t, owner, created.Owner)
	assert.Len(t, created.Data, 64)
	assert.Equal(t, uint64(2_000_000), created.Lamports)
	assert.Equal(t, uint64(8_000_000), ctx.accounts[0].Lamports)
}

func TestCreateAccountAlreadyInUse(t *testing.T) {
	payer := types.KeypairFromName("payer").Pubkey()
	fresh := types.KeypairFromName("fresh").Pubkey()

	ix := CreateAccount(payer, fresh, 1, 0, types.MemoProgramAddr)
	ctx := newMockContext(ix, map[types.Pubkey]uint64{payer: 10, fresh: 1})

	err := NewProcessor().Process(ctx, ix.Data)
	assert.ErrorIs(t, err, svm.CustomError(ErrAccountAlreadyInUse))
}

func TestCreateAccountWithSeed(t *testing.T) {
	payer := types.KeypairFromName("payer").Pubkey()
	owner := types.MemoProgramAddr

	ix := CreateAccountWithSeed(payer, payer, "vault", 500, 8, owner)
	require.Len(t, ix.Accounts, 2)
	assert.Equal(t, CreateWithSeed(payer, "vault", owner), ix.Accounts[1].Pubkey)

	ctx := newMockContext(ix, map[types.Pubkey]uint64{payer: 1000})
	require.NoError(t, NewProcessor().Process(ctx, ix.Data))
	assert.Equal(t, owner, ctx.accounts[1].Owner)

	// Tamper with the derived address.
	ix.Accounts[1].Pubkey = types.KeypairFromName("other").Pubkey()
	ctx = newMockContext(ix, map[types.Pubkey]uint64{payer: 1000})
	err := NewProcessor().Process(ctx, ix.Data)
	assert.ErrorIs(t, err, svm.CustomError(ErrAddressWithSeedMismatch))
}

func TestAssignAndAllocate(t *testing.T) {
	acc := types.KeypairFromName("acc").Pubkey()

	ix := Allocate(acc, 16)
	ctx := newMockContext(ix, nil)
	require.NoError(t, NewProcessor().Process(ctx, ix.Data))
	assert.Len(t, ctx.accounts[0].Data, 16)

	ix = Assign(acc, types.MemoProgramAddr)
	ctx = newMockContext(ix, nil)
	require.NoError(t, NewProcessor().Process(ctx, ix.Data))
	assert.Equal(t, types.MemoProgramAddr, ctx.accounts[0].Owner)
}

func TestInvalidInstructionData(t *testing.T) {
	ctx := &mockContext{meter: svm.NewComputeMeter(svm.CUDefault)}
	tests := [][]byte{
		nil,
		{1, 2},
		{99, 0, 0, 0},
		{2, 0, 0, 0, 1}, // truncated transfer amount
	}
	for _, data := range tests {
		err := NewProcessor().Process(ctx, data)
		var ie *svm.InstructionError
		if assert.True(t, errors.As(err, &ie), "data %v", data) {
			assert.Equal(t, svm.InvalidInstructionData, ie.Kind)
		}
	}
}

func TestMissingAccounts(t *testing.T) {
	ix := Transfer(types.KeypairFromName("a").Pubkey(), types.KeypairFromName("b").Pubkey(), 1)
	ctx := &mockContext{meter: svm.NewComputeMeter(svm.CUDefault)}

	err := NewProcessor().Process(ctx, ix.Data)
	assert.ErrorIs(t, err, svm.NewInstructionError(svm.NotEnoughAccountKeys))
}
