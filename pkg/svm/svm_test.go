package svm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/testsvm/pkg/types"
)

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := types.KeypairFromName("program").Pubkey()
	seeds := [][]byte{[]byte("vault"), []byte("user")}

	pda1, bump1, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	pda2, bump2, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)

	assert.Equal(t, pda1, pda2)
	assert.Equal(t, bump1, bump2)
	assert.False(t, IsOnCurve(pda1[:]), "PDA must be off curve")

	// The bump found reproduces the same address.
	again, err := CreateProgramAddress(append(seeds, []byte{bump1}), program)
	require.NoError(t, err)
	assert.Equal(t, pda1, again)
}

func TestFindProgramAddressSeedOrderMatters(t *testing.T) {
	program := types.KeypairFromName("program").Pubkey()

	a, _, err := FindProgramAddress([][]byte{[]byte("a"), []byte("b")}, program)
	require.NoError(t, err)
	b, _, err := FindProgramAddress([][]byte{[]byte("b"), []byte("a")}, program)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	other, _, err := FindProgramAddress([][]byte{[]byte("a"), []byte("b")}, types.MemoProgramAddr)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestSeedLimits(t *testing.T) {
	program := types.SystemProgramAddr

	_, _, err := FindProgramAddress([][]byte{make([]byte, MaxSeedLen+1)}, program)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded)

	seeds := make([][]byte, MaxSeeds)
	_, _, err = FindProgramAddress(seeds, program)
	assert.ErrorIs(t, err, ErrMaxSeedsExceeded)
}

func TestIsOnCurve(t *testing.T) {
	kp := types.KeypairFromName("alice")
	assert.True(t, IsOnCurve(kp.Pubkey().Bytes()), "ed25519 public keys are on curve")
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}

func TestComputeMeter(t *testing.T) {
	cm := NewComputeMeter(1000)
	require.NoError(t, cm.Consume(400))
	assert.Equal(t, uint64(600), cm.Remaining())
	assert.Equal(t, uint64(400), cm.Consumed())

	err := cm.Consume(700)
	assert.ErrorIs(t, err, ErrComputeExceeded)
	assert.True(t, cm.IsExhausted())
	assert.Equal(t, uint64(1000), cm.Consumed())

	assert.Equal(t, CUMax, NewComputeMeter(CUMax*2).Limit())
}

func TestComputeMeterSetLimit(t *testing.T) {
	cm := NewComputeMeter(CUDefault)
	require.NoError(t, cm.Consume(100))
	require.NoError(t, cm.SetLimit(500))
	assert.Equal(t, uint64(400), cm.Remaining())

	assert.ErrorIs(t, cm.SetLimit(0), ErrComputeInvalidLimit)
	assert.ErrorIs(t, cm.SetLimit(CUMax+1), ErrComputeInvalidLimit)
}

func TestInstructionErrorFormatting(t *testing.T) {
	custom := CustomError(6000)
	assert.Equal(t, "custom program error: 0x1770", custom.Error())
	assert.Equal(t, "Custom(6000)", custom.Debug())
	assert.Equal(t, "insufficient funds for instruction", NewInstructionError(InsufficientFunds).Error())
	assert.Equal(t, "MissingRequiredSignature", NewInstructionError(MissingRequiredSignature).Debug())
}

func TestInstructionErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("deposit: %w", CustomError(6001))

	assert.ErrorIs(t, wrapped, CustomError(6001))
	assert.NotErrorIs(t, wrapped, CustomError(6000))
	assert.NotErrorIs(t, wrapped, NewInstructionError(InsufficientFunds))
}

func TestAsInstructionError(t *testing.T) {
	assert.Nil(t, AsInstructionError(nil))
	assert.Equal(t, ComputationalBudgetExceeded, AsInstructionError(ErrComputeExceeded).Kind)
	assert.Equal(t, ProgramFailedToComplete, AsInstructionError(errors.New("boom")).Kind)
	assert.Equal(t, uint32(7), AsInstructionError(fmt.Errorf("x: %w", CustomError(7))).Code)
}
