// Package accounts stores account state for the simulated ledger.
//
// Every backend keeps only current state. The ledger stages a transaction's
// writes in memory and flushes them here once the transaction commits, so
// backends never see partial transactions.
package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when stored account bytes are malformed.
	ErrInvalidData = errors.New("invalid account data")

	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown accounts backend")
)

// MaxAccountDataSize is the largest account data the runtime allows (10 MiB).
const MaxAccountDataSize = 10 * 1024 * 1024

// accountHeaderSize is the fixed part of a serialized account:
// lamports (8) + data_len (8) + owner (32) + executable (1) + rent_epoch (8).
const accountHeaderSize = 8 + 8 + 32 + 1 + 8

// Account is a single ledger account.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       data,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero reports whether the account holds no lamports and no data.
// Zero accounts are removed from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Serialize encodes the account for storage.
// Layout: lamports | data_len | data | owner | executable | rent_epoch, little endian.
func (a *Account) Serialize() []byte {
	buf := make([]byte, accountHeaderSize+len(a.Data))
	binary.LittleEndian.PutUint64(buf[0:], a.Lamports)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(a.Data)))
	off := 16 + copy(buf[16:], a.Data)
	off += copy(buf[off:], a.Owner[:])
	if a.Executable {
		buf[off] = 1
	}
	binary.LittleEndian.PutUint64(buf[off+1:], a.RentEpoch)
	return buf
}

// DeserializeAccount decodes an account produced by Serialize.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < accountHeaderSize {
		return nil, ErrInvalidData
	}
	dataLen := binary.LittleEndian.Uint64(data[8:])
	if dataLen > MaxAccountDataSize || uint64(len(data)) != accountHeaderSize+dataLen {
		return nil, ErrInvalidData
	}

	acc := &Account{
		Lamports: binary.LittleEndian.Uint64(data[0:]),
		Data:     make([]byte, dataLen),
	}
	off := 16 + copy(acc.Data, data[16:16+dataLen])
	off += copy(acc.Owner[:], data[off:off+32])
	acc.Executable = data[off] != 0
	acc.RentEpoch = binary.LittleEndian.Uint64(data[off+1:])
	return acc, nil
}

// DB is the accounts database interface.
type DB interface {
	// GetAccount returns a copy of the account, or ErrAccountNotFound.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores an account. Zero accounts are deleted instead.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// DeleteAccount removes an account. Deleting a missing account is not an error.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// AccountsCount returns the number of stored accounts.
	AccountsCount() (uint64, error)

	// Close releases the database. Further calls return ErrClosed.
	Close() error
}

// Backend names an accounts storage implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
	BackendBolt   Backend = "bolt"
)

// Open creates an empty accounts database for the named backend.
// Badger runs fully in memory; bolt uses a temporary file that is removed on Close.
func Open(backend Backend) (DB, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryDB(), nil
	case BackendBadger:
		return NewBadgerDB(DefaultBadgerDBConfig())
	case BackendBolt:
		return NewBoltDB("")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// MemoryDB is a map-backed DB.
type MemoryDB struct {
	accounts map[types.Pubkey]*Account
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	if m.closed {
		return ErrClosed
	}
	if account.IsZero() {
		delete(m.accounts, pubkey)
		return nil
	}
	m.accounts[pubkey] = account.Clone()
	return nil
}

// DeleteAccount removes an account.
func (m *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, pubkey)
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.closed = true
	m.accounts = nil
	return nil
}
