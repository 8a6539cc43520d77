// Package config loads harness settings from defaults, an optional config
// file and TESTSVM_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. TESTSVM_LOG_LEVEL.
const EnvPrefix = "TESTSVM"

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds harness settings.
type Config struct {
	// FeePayerLamports funds the default fee payer.
	FeePayerLamports uint64 `mapstructure:"fee_payer_lamports"`

	// WalletLamports funds wallets created by name.
	WalletLamports uint64 `mapstructure:"wallet_lamports"`

	// Accounts is the accounts backend: memory, badger or bolt.
	Accounts string `mapstructure:"accounts"`

	LamportsPerSignature uint64 `mapstructure:"lamports_per_signature"`
	ComputeUnitLimit     uint64 `mapstructure:"compute_unit_limit"`
	SigVerify            bool   `mapstructure:"sig_verify"`
	BlockhashCheck       bool   `mapstructure:"blockhash_check"`
	GenesisUnixTimestamp int64  `mapstructure:"genesis_unix_timestamp"`
	TransactionHistory   int    `mapstructure:"transaction_history"`

	// Color is auto, always or never.
	Color string `mapstructure:"color"`

	// LogLevel is a zap level name. Logging is off unless set.
	LogLevel string `mapstructure:"log_level"`

	// FixturesDir overrides the search for a fixtures directory.
	FixturesDir string `mapstructure:"fixtures_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fee_payer_lamports", 1000*types.LamportsPerSOL)
	v.SetDefault("wallet_lamports", 10*types.LamportsPerSOL)
	v.SetDefault("accounts", string(accounts.BackendMemory))
	v.SetDefault("lamports_per_signature", 5000)
	v.SetDefault("compute_unit_limit", 200_000)
	v.SetDefault("sig_verify", true)
	v.SetDefault("blockhash_check", true)
	v.SetDefault("genesis_unix_timestamp", 0)
	v.SetDefault("transaction_history", 10_000)
	v.SetDefault("color", ColorAuto)
	v.SetDefault("log_level", "")
	v.SetDefault("fixtures_dir", "")
}

// Default returns the built-in settings with environment overrides applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads path (toml, yaml or json) when non-empty, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch accounts.Backend(c.Accounts) {
	case accounts.BackendMemory, accounts.BackendBadger, accounts.BackendBolt:
	default:
		return fmt.Errorf("%w: accounts backend %q", ErrInvalidConfig, c.Accounts)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%w: color %q", ErrInvalidConfig, c.Color)
	}
	if c.FeePayerLamports == 0 {
		return fmt.Errorf("%w: fee payer lamports must be positive", ErrInvalidConfig)
	}
	if c.WalletLamports == 0 {
		return fmt.Errorf("%w: wallet lamports must be positive", ErrInvalidConfig)
	}
	if c.ComputeUnitLimit == 0 || c.ComputeUnitLimit > 1_400_000 {
		return fmt.Errorf("%w: compute unit limit %d", ErrInvalidConfig, c.ComputeUnitLimit)
	}
	if c.TransactionHistory <= 0 {
		return fmt.Errorf("%w: transaction history must be positive", ErrInvalidConfig)
	}
	if _, _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. ok is false when logging is off.
func (c *Config) Level() (level zapcore.Level, ok bool, err error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, false, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, false, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, true, nil
}

// ColorEnabled resolves the colour mode; auto defers to terminal detection.
func (c *Config) ColorEnabled(auto bool) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return auto
	}
}
