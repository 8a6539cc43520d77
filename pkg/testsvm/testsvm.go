// Package testsvm is the entry point for program integration tests. A TestSVM
// owns a simulated ledger, a funded default fee payer and the address book of
// the scenario, and turns every submitted transaction into a classified
// txresult.TxResult.
//
// A TestSVM is single threaded. Tests that run in parallel each build their
// own.
package testsvm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/addressbook"
	"github.com/fortiblox/testsvm/pkg/assertions"
	"github.com/fortiblox/testsvm/pkg/config"
	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/memo"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/txresult"
	"github.com/fortiblox/testsvm/pkg/types"
)

// SlotDuration is the wall time one slot is assumed to take.
const SlotDuration = 450 * time.Millisecond

// DefaultFeePayerLabel is the address book label of the default fee payer.
const DefaultFeePayerLabel = "default_fee_payer"

var (
	// ErrFunding wraps ledger errors raised while funding a new account.
	ErrFunding = errors.New("funding failed")

	// ErrFixtureNotFound is returned when a program fixture cannot be located.
	ErrFixtureNotFound = errors.New("program fixture not found")
)

type options struct {
	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	feePayer *types.Keypair
}

// Option customises New.
type Option func(*options)

// WithConfig replaces the settings loaded from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. It takes precedence over the configured level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput sets where diagnostic reports and address book dumps go.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFeePayer uses kp as the default fee payer instead of a fresh keypair.
func WithFeePayer(kp types.Keypair) Option {
	return func(o *options) { o.feePayer = &kp }
}

// TestSVM drives a simulated ledger for one test scenario.
type TestSVM struct {
	cfg      *config.Config
	log      *zap.Logger
	ledger   *ledger.Ledger
	feePayer types.Keypair
	book     *addressbook.AddressBook
	tables   txresult.Tables
	engine   *assertions.Engine

	// Time advanced but not yet reflected in the clock.
	secondRemainder time.Duration
	slotRemainder   time.Duration
}

// New builds a ledger, funds a default fee payer and seeds an address book
// with the well-known programs.
func New(opts ...Option) (*TestSVM, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		cfg, err := config.Default()
		if err != nil {
			return nil, err
		}
		o.cfg = cfg
	}
	log, err := newLogger(o.cfg, o.logger)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(ledger.Config{
		Accounts:             accounts.Backend(o.cfg.Accounts),
		LamportsPerSignature: o.cfg.LamportsPerSignature,
		ComputeUnitLimit:     o.cfg.ComputeUnitLimit,
		SigVerify:            o.cfg.SigVerify,
		BlockhashCheck:       o.cfg.BlockhashCheck,
		GenesisUnixTimestamp: o.cfg.GenesisUnixTimestamp,
		TransactionHistory:   o.cfg.TransactionHistory,
		Logger:               log.Named("ledger"),
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	if err := l.AddProgram(memo.ProgramID, memo.NewProcessor()); err != nil {
		l.Close()
		return nil, err
	}

	book := addressbook.New()
	book.SetColor(o.cfg.ColorEnabled(book.Colored()))
	book.SetOutput(o.out)
	if err := book.SeedWellKnownDefaults(); err != nil {
		l.Close()
		return nil, err
	}

	t := newTestSVM(o.cfg, log, l, book, o.out)
	payer := o.feePayer
	if payer == nil {
		kp, err := types.NewKeypair()
		if err != nil {
			l.Close()
			return nil, err
		}
		payer = &kp
	}
	if err := t.fund(payer.Pubkey(), o.cfg.FeePayerLamports); err != nil {
		l.Close()
		return nil, err
	}
	if err := book.AddWallet(payer.Pubkey(), DefaultFeePayerLabel); err != nil {
		l.Close()
		return nil, err
	}
	t.feePayer = *payer

	log.Debug("testsvm ready",
		zap.Stringer("fee_payer", payer.Pubkey()),
		zap.Uint64("fee_payer_lamports", o.cfg.FeePayerLamports))
	return t, nil
}

// NewFromLedger wraps an existing ledger. feePayer must already be funded or
// every submission fails with AccountNotFound. A nil book gets a fresh one
// seeded with the well-known defaults.
func NewFromLedger(l *ledger.Ledger, feePayer types.Keypair, book *addressbook.AddressBook, opts ...Option) (*TestSVM, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		cfg, err := config.Default()
		if err != nil {
			return nil, err
		}
		o.cfg = cfg
	}
	log, err := newLogger(o.cfg, o.logger)
	if err != nil {
		return nil, err
	}
	if book == nil {
		book = addressbook.New()
		book.SetColor(o.cfg.ColorEnabled(book.Colored()))
		book.SetOutput(o.out)
		if err := book.SeedWellKnownDefaults(); err != nil {
			return nil, err
		}
	}
	if !book.Contains(feePayer.Pubkey()) {
		if err := book.AddWallet(feePayer.Pubkey(), DefaultFeePayerLabel); err != nil {
			return nil, err
		}
	}
	t := newTestSVM(o.cfg, log, l, book, o.out)
	t.feePayer = feePayer
	return t, nil
}

func newTestSVM(cfg *config.Config, log *zap.Logger, l *ledger.Ledger, book *addressbook.AddressBook, out io.Writer) *TestSVM {
	return &TestSVM{
		cfg:    cfg,
		log:    log,
		ledger: l,
		book:   book,
		tables: txresult.Tables{system.ProgramID: system.ErrorNames},
		engine: assertions.New(out),
	}
}

func newLogger(cfg *config.Config, l *zap.Logger) (*zap.Logger, error) {
	if l != nil {
		return l, nil
	}
	level, ok, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if !ok {
		return zap.NewNop(), nil
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Close releases the ledger's storage.
func (t *TestSVM) Close() error {
	return t.ledger.Close()
}

// Ledger returns the underlying ledger.
func (t *TestSVM) Ledger() *ledger.Ledger { return t.ledger }

// AddressBook returns the scenario's address book.
func (t *TestSVM) AddressBook() *addressbook.AddressBook { return t.book }

// FeePayer returns the default fee payer.
func (t *TestSVM) FeePayer() types.Keypair { return t.feePayer }

// Assertions returns an engine writing reports to the configured output.
func (t *TestSVM) Assertions() *assertions.Engine { return t.engine }

func (t *TestSVM) fund(key types.Pubkey, lamports uint64) error {
	if err := t.ledger.Airdrop(key, lamports); err != nil {
		return fmt.Errorf("%w: %w", ErrFunding, err)
	}
	return nil
}

// CreateFundedAccount creates a keypair holding lamports. Ledger rejections,
// such as an amount below the rent-exempt minimum, are wrapped in ErrFunding.
func (t *TestSVM) CreateFundedAccount(lamports uint64) (types.Keypair, error) {
	kp, err := types.NewKeypair()
	if err != nil {
		return types.Keypair{}, err
	}
	if err := t.fund(kp.Pubkey(), lamports); err != nil {
		return types.Keypair{}, err
	}
	t.log.Debug("funded account", zap.Stringer("key", kp.Pubkey()), zap.Uint64("lamports", lamports))
	return kp, nil
}

// NewWallet creates a funded wallet labelled "wallet:<name>".
func (t *TestSVM) NewWallet(name string) (types.Keypair, error) {
	kp, err := t.CreateFundedAccount(t.cfg.WalletLamports)
	if err != nil {
		return types.Keypair{}, err
	}
	if err := t.book.AddWallet(kp.Pubkey(), "wallet:"+name); err != nil {
		return types.Keypair{}, err
	}
	return kp, nil
}

// Clock returns the ledger clock.
func (t *TestSVM) Clock() svm.Clock {
	return t.ledger.Clock()
}

// AdvanceClock moves the unix timestamp forward by d and the slot by the
// number of whole slots d spans. Fractions of a second or of a slot carry
// over to the next call, so repeated small advances add up.
func (t *TestSVM) AdvanceClock(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("advance clock by %s: negative duration", d)
	}
	secs := t.secondRemainder + d
	slots := t.slotRemainder + d

	c := t.ledger.Clock()
	c.UnixTimestamp += int64(secs / time.Second)
	c.Slot += uint64(slots / SlotDuration)
	c.Epoch = c.Slot / ledger.SlotsPerEpoch
	c.LeaderScheduleEpoch = c.Epoch + 1
	if err := t.ledger.SetClock(c); err != nil {
		return err
	}
	t.secondRemainder = secs % time.Second
	t.slotRemainder = slots % SlotDuration
	t.log.Debug("clock advanced", zap.Duration("by", d), zap.Uint64("slot", c.Slot), zap.Int64("unix_timestamp", c.UnixTimestamp))
	return nil
}

// AdvanceTime moves the clock forward by seconds.
func (t *TestSVM) AdvanceTime(seconds uint64) error {
	return t.AdvanceClock(time.Duration(seconds) * time.Second)
}

// AdvanceSlots warps n slots ahead without moving the unix timestamp.
func (t *TestSVM) AdvanceSlots(n uint64) error {
	return t.ledger.WarpToSlot(t.ledger.Clock().Slot + n)
}

// ExpireBlockhash rolls the blockhash so an identical transaction can be
// sent again.
func (t *TestSVM) ExpireBlockhash() {
	t.ledger.ExpireBlockhash()
}

// GetAccount returns an account from the ledger.
func (t *TestSVM) GetAccount(key types.Pubkey) (*accounts.Account, error) {
	return t.ledger.GetAccount(key)
}

// Balance returns an account's lamports.
func (t *TestSVM) Balance(key types.Pubkey) (uint64, error) {
	return t.ledger.Balance(key)
}

// FindPDA derives a program derived address and labels it.
func (t *TestSVM) FindPDA(label string, program types.Pubkey, seeds ...[]byte) (addressbook.DerivedPDA, error) {
	return t.book.FindPDA(label, program, seeds...)
}

// RegisterErrorTable names the custom error codes of program. A later table
// for the same program replaces the earlier one.
func (t *TestSVM) RegisterErrorTable(program types.Pubkey, table txresult.ErrorTable) {
	t.tables[program] = table
}
