package accounts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/testsvm/pkg/types"
)

var bucketAccounts = []byte("accounts")

// BoltDB is a bbolt-backed accounts database.
// When created without a path it lives in a private temp directory that
// Close removes.
type BoltDB struct {
	db      *bolt.DB
	tempDir string

	mu     sync.Mutex
	closed bool
}

// NewBoltDB opens a bbolt accounts database at path, or in a fresh temp
// directory when path is empty.
func NewBoltDB(path string) (*BoltDB, error) {
	var tempDir string
	if path == "" {
		dir, err := os.MkdirTemp("", "testsvm-accounts-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		tempDir = dir
		path = filepath.Join(dir, "accounts.db")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: time.Second,
		NoSync:  true,
	})
	if err != nil {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
		return err
	})
	if err != nil {
		db.Close()
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltDB{db: db, tempDir: tempDir}, nil
}

// GetAccount retrieves an account by public key.
func (b *BoltDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var account *Account
	err := b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketAccounts).Get(pubkey[:])
		if val == nil {
			return ErrAccountNotFound
		}
		// val is only valid inside the transaction; DeserializeAccount copies.
		var err error
		account, err = DeserializeAccount(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetAccount stores an account, deleting it when zero.
func (b *BoltDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	if account.IsZero() {
		return b.DeleteAccount(pubkey)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put(pubkey[:], account.Serialize())
	})
	if err != nil {
		return fmt.Errorf("set account %s: %w", pubkey, err)
	}
	return nil
}

// DeleteAccount removes an account.
func (b *BoltDB) DeleteAccount(pubkey types.Pubkey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Delete(pubkey[:])
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", pubkey, err)
	}
	return nil
}

// HasAccount checks if an account exists.
func (b *BoltDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}

	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketAccounts).Get(pubkey[:]) != nil
		return nil
	})
	return exists, err
}

// AccountsCount returns the total number of accounts.
func (b *BoltDB) AccountsCount() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketAccounts).Stats().KeyN
		return nil
	})
	return uint64(n), err
}

// Close closes the database and removes its temp directory, if any.
func (b *BoltDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.db.Close()
	if b.tempDir != "" {
		if rmErr := os.RemoveAll(b.tempDir); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
