// Package ledger is an in-process simulated Solana ledger.
//
// It keeps account state, a clock and a recent blockhash queue, and executes
// signed transactions against native programs written in Go. Execution is
// synchronous and single threaded; a Ledger must not be shared between
// goroutines.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/types"
)

// Runtime constants.
const (
	DefaultLamportsPerSignature = uint64(5000)
	SlotsPerEpoch               = uint64(432_000)

	// Rent: lamports per byte-year times a two year exemption threshold,
	// charged on the data plus 128 bytes of account overhead.
	LamportsPerByteYear       = uint64(3480)
	ExemptionThresholdYears   = 2
	AccountStorageOverhead    = uint64(128)
	MaxRecentBlockhashes      = 150
	MicroLamportsPerLamport   = uint64(1_000_000)
	DefaultTransactionHistory = 10_000
)

// Config configures a Ledger.
type Config struct {
	// Accounts selects the storage backend.
	Accounts accounts.Backend

	// LamportsPerSignature is the base fee per required signature.
	LamportsPerSignature uint64

	// ComputeUnitLimit is the default budget per instruction when the
	// transaction does not set one explicitly.
	ComputeUnitLimit uint64

	// SigVerify enables ed25519 signature verification.
	SigVerify bool

	// BlockhashCheck rejects transactions whose blockhash is not recent.
	BlockhashCheck bool

	// TransactionHistory is how many processed transactions are remembered
	// for duplicate detection and GetTransaction.
	TransactionHistory int

	// GenesisUnixTimestamp seeds the clock sysvar.
	GenesisUnixTimestamp int64

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns the configuration used by New when none is given.
func DefaultConfig() Config {
	return Config{
		Accounts:             accounts.BackendMemory,
		LamportsPerSignature: DefaultLamportsPerSignature,
		ComputeUnitLimit:     svm.CUDefault,
		SigVerify:            true,
		BlockhashCheck:       true,
		TransactionHistory:   DefaultTransactionHistory,
	}
}

type registeredProgram struct {
	impl    svm.Program
	builtin bool
}

// Ledger is the simulated runtime.
type Ledger struct {
	cfg Config
	log *zap.Logger
	db  accounts.DB

	clock     svm.Clock
	blockhash types.Hash
	recent    []types.Hash

	programs  map[types.Pubkey]registeredProgram
	processed *lru.Cache[types.Signature, *TransactionMetadata]
}

// New creates a ledger with the System and Compute Budget builtins installed
// and the clock and rent sysvars populated.
func New(cfg Config) (*Ledger, error) {
	if cfg.LamportsPerSignature == 0 {
		cfg.LamportsPerSignature = DefaultLamportsPerSignature
	}
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = svm.CUDefault
	}
	if cfg.TransactionHistory <= 0 {
		cfg.TransactionHistory = DefaultTransactionHistory
	}
	processed, err := lru.New[types.Signature, *TransactionMetadata](cfg.TransactionHistory)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	db, err := accounts.Open(cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("open accounts: %w", err)
	}

	l := &Ledger{
		cfg:       cfg,
		log:       log,
		db:        db,
		clock:     svm.Clock{UnixTimestamp: cfg.GenesisUnixTimestamp, EpochStartTimestamp: cfg.GenesisUnixTimestamp},
		programs:  make(map[types.Pubkey]registeredProgram),
		processed: processed,
	}
	l.pushBlockhash(blake3.Sum256([]byte("testsvm genesis")))

	if err := l.addBuiltin(system.ProgramID, system.NewProcessor()); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.addBuiltin(types.ComputeBudgetProgramAddr, computeBudgetProgram{}); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.writeSysvars(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("ledger created",
		zap.String("accounts", string(cfg.Accounts)),
		zap.Uint64("lamports_per_signature", cfg.LamportsPerSignature),
		zap.Stringer("blockhash", l.blockhash))
	return l, nil
}

// Close releases the accounts backend.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// GetAccount returns a copy of an account, or accounts.ErrAccountNotFound.
func (l *Ledger) GetAccount(key types.Pubkey) (*accounts.Account, error) {
	return l.db.GetAccount(key)
}

// SetAccount overwrites an account directly, bypassing execution.
func (l *Ledger) SetAccount(key types.Pubkey, acc *accounts.Account) error {
	return l.db.SetAccount(key, acc)
}

// Balance returns an account's lamports, zero when it does not exist.
func (l *Ledger) Balance(key types.Pubkey) (uint64, error) {
	acc, err := l.db.GetAccount(key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// MinimumBalanceForRentExemption returns the rent-exempt minimum for dataLen bytes.
func (l *Ledger) MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * LamportsPerByteYear * ExemptionThresholdYears
}

// Airdrop credits lamports to an account, creating it if needed.
// The resulting balance must be rent exempt for the account's data size.
func (l *Ledger) Airdrop(key types.Pubkey, lamports uint64) error {
	if lamports == 0 {
		return ErrInvalidAirdrop
	}
	acc, err := l.db.GetAccount(key)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		acc = &accounts.Account{Owner: system.ProgramID}
	case err != nil:
		return fmt.Errorf("load %s: %w", key, err)
	}
	if acc.Lamports > math.MaxUint64-lamports {
		return fmt.Errorf("airdrop to %s: %w", key, svm.NewInstructionError(svm.ArithmeticOverflow))
	}
	acc.Lamports += lamports
	if minBalance := l.MinimumBalanceForRentExemption(uint64(len(acc.Data))); acc.Lamports < minBalance {
		return fmt.Errorf("airdrop %d lamports to %s (rent-exempt minimum %d): %w",
			lamports, key, minBalance, ErrInsufficientFundsForRent)
	}
	if err := l.db.SetAccount(key, acc); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	l.log.Debug("airdrop", zap.Stringer("to", key), zap.Uint64("lamports", lamports))
	return nil
}

// Clock returns the clock sysvar.
func (l *Ledger) Clock() svm.Clock {
	return l.clock
}

// SetClock replaces the clock sysvar. A slot change rolls the blockhash.
func (l *Ledger) SetClock(c svm.Clock) error {
	slotChanged := c.Slot != l.clock.Slot
	l.clock = c
	if slotChanged {
		l.advanceBlockhash()
	}
	return l.writeSysvars()
}

// WarpToSlot jumps to a slot, updating the epoch and rolling the blockhash.
// The unix timestamp is left alone.
func (l *Ledger) WarpToSlot(slot uint64) error {
	c := l.clock
	c.Slot = slot
	c.Epoch = slot / SlotsPerEpoch
	c.LeaderScheduleEpoch = c.Epoch + 1
	return l.SetClock(c)
}

// LatestBlockhash returns the blockhash new transactions should use.
func (l *Ledger) LatestBlockhash() types.Hash {
	return l.blockhash
}

// ExpireBlockhash rolls a new blockhash without moving the clock, so an
// otherwise identical transaction gets a fresh signature.
func (l *Ledger) ExpireBlockhash() {
	l.advanceBlockhash()
}

// advanceBlockhash chains blake3(previous || slot).
func (l *Ledger) advanceBlockhash() {
	var buf [types.HashSize + 8]byte
	copy(buf[:], l.blockhash[:])
	binary.LittleEndian.PutUint64(buf[types.HashSize:], l.clock.Slot)
	l.pushBlockhash(blake3.Sum256(buf[:]))
}

func (l *Ledger) pushBlockhash(h types.Hash) {
	l.blockhash = h
	l.recent = append(l.recent, h)
	if len(l.recent) > MaxRecentBlockhashes {
		l.recent = l.recent[len(l.recent)-MaxRecentBlockhashes:]
	}
}

func (l *Ledger) isRecentBlockhash(h types.Hash) bool {
	for _, r := range l.recent {
		if r == h {
			return true
		}
	}
	return false
}

// GetTransaction returns the metadata of a processed transaction.
func (l *Ledger) GetTransaction(sig types.Signature) (*TransactionMetadata, bool) {
	return l.processed.Get(sig)
}

func (l *Ledger) recordProcessed(meta *TransactionMetadata) {
	l.processed.Add(meta.Signature, meta)
}

// writeSysvars stores the clock and rent sysvar accounts.
func (l *Ledger) writeSysvars() error {
	clock := make([]byte, 40)
	binary.LittleEndian.PutUint64(clock[0:], l.clock.Slot)
	binary.LittleEndian.PutUint64(clock[8:], uint64(l.clock.EpochStartTimestamp))
	binary.LittleEndian.PutUint64(clock[16:], l.clock.Epoch)
	binary.LittleEndian.PutUint64(clock[24:], l.clock.LeaderScheduleEpoch)
	binary.LittleEndian.PutUint64(clock[32:], uint64(l.clock.UnixTimestamp))

	rent := make([]byte, 17)
	binary.LittleEndian.PutUint64(rent[0:], LamportsPerByteYear)
	binary.LittleEndian.PutUint64(rent[8:], math.Float64bits(ExemptionThresholdYears))
	rent[16] = 50 // burn percent

	for key, data := range map[types.Pubkey][]byte{
		types.SysvarClockAddr: clock,
		types.SysvarRentAddr:  rent,
	} {
		err := l.db.SetAccount(key, &accounts.Account{
			Lamports: l.MinimumBalanceForRentExemption(uint64(len(data))),
			Data:     data,
			Owner:    types.SysvarOwnerAddr,
		})
		if err != nil {
			return fmt.Errorf("write sysvar %s: %w", key, err)
		}
	}
	return nil
}
