package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fortiblox/testsvm/pkg/types"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 1000*types.LamportsPerSOL, cfg.FeePayerLamports)
	assert.Equal(t, 10*types.LamportsPerSOL, cfg.WalletLamports)
	assert.Equal(t, "memory", cfg.Accounts)
	assert.Equal(t, uint64(5000), cfg.LamportsPerSignature)
	assert.Equal(t, uint64(200_000), cfg.ComputeUnitLimit)
	assert.True(t, cfg.SigVerify)
	assert.True(t, cfg.BlockhashCheck)
	assert.Equal(t, ColorAuto, cfg.Color)

	_, ok, err := cfg.Level()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testsvm.toml")
	content := `
accounts = "badger"
wallet_lamports = 42000000
color = "never"
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Accounts)
	assert.Equal(t, uint64(42_000_000), cfg.WalletLamports)
	assert.False(t, cfg.ColorEnabled(true))

	level, ok, err := cfg.Level()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testsvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(`accounts = "badger"`), 0644))

	t.Setenv("TESTSVM_ACCOUNTS", "bolt")
	t.Setenv("TESTSVM_FEE_PAYER_LAMPORTS", "123456789")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Accounts)
	assert.Equal(t, uint64(123_456_789), cfg.FeePayerLamports)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"unknown backend", "TESTSVM_ACCOUNTS", "rocksdb"},
		{"bad color", "TESTSVM_COLOR", "sometimes"},
		{"bad level", "TESTSVM_LOG_LEVEL", "loud"},
		{"zero compute", "TESTSVM_COMPUTE_UNIT_LIMIT", "0"},
		{"compute over max", "TESTSVM_COMPUTE_UNIT_LIMIT", "1400001"},
		{"no history", "TESTSVM_TRANSACTION_HISTORY", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Default()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestColorEnabled(t *testing.T) {
	cfg := &Config{Color: ColorAuto}
	assert.True(t, cfg.ColorEnabled(true))
	assert.False(t, cfg.ColorEnabled(false))
	cfg.Color = ColorAlways
	assert.True(t, cfg.ColorEnabled(false))
}
