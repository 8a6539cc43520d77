package accounts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/testsvm/pkg/types"
)

// prefixAccount namespaces account keys: prefixAccount + pubkey (32 bytes).
var prefixAccount = []byte{0x01}

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; nothing touches disk.
	InMemory bool

	// NumMemtables is the number of memtables.
	NumMemtables int

	// Logger is an optional badger logger. Nil disables badger's logging.
	Logger badger.Logger
}

// DefaultBadgerDBConfig returns an in-memory configuration sized for tests.
func DefaultBadgerDBConfig() BadgerDBConfig {
	return BadgerDBConfig{
		InMemory:     true,
		NumMemtables: 2,
	}
}

// BadgerDB is a BadgerDB-backed accounts database.
// Accounts are stored under their pubkey in the compact Serialize format.
type BadgerDB struct {
	db *badger.DB

	mu     sync.Mutex
	count  uint64
	closed bool
}

// NewBadgerDB opens a BadgerDB-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithLogger(cfg.Logger)
	if cfg.NumMemtables > 0 {
		opts = opts.WithNumMemtables(cfg.NumMemtables)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	b := &BadgerDB{db: db}
	if err := b.loadCount(); err != nil {
		db.Close()
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	return b, nil
}

// loadCount walks the account keyspace once so AccountsCount stays O(1).
func (b *BadgerDB) loadCount() error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			b.count++
		}
		return nil
	})
}

func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, 1+types.PubkeySize)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

// GetAccount retrieves an account by public key.
func (b *BadgerDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var account *Account
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			account, err = DeserializeAccount(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetAccount stores an account, deleting it when zero.
func (b *BadgerDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	if account.IsZero() {
		return b.DeleteAccount(pubkey)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	var created bool
	err := b.db.Update(func(txn *badger.Txn) error {
		key := accountKey(pubkey)
		_, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			created = true
		case err != nil:
			return err
		}
		return txn.Set(key, account.Serialize())
	})
	if err != nil {
		return fmt.Errorf("set account %s: %w", pubkey, err)
	}
	if created {
		b.count++
	}
	return nil
}

// DeleteAccount removes an account.
func (b *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	var existed bool
	err := b.db.Update(func(txn *badger.Txn) error {
		key := accountKey(pubkey)
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", pubkey, err)
	}
	if existed {
		b.count--
	}
	return nil
}

// HasAccount checks if an account exists.
func (b *BadgerDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}

	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// AccountsCount returns the total number of accounts.
func (b *BadgerDB) AccountsCount() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	return b.count, nil
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
