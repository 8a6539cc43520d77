package accounts

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/fortiblox/testsvm/pkg/types"
)

func TestAccountSerialization(t *testing.T) {
	account := &Account{
		Lamports:   types.LamportsPerSOL,
		Data:       []byte("test data"),
		Owner:      types.TokenProgramAddr,
		Executable: true,
		RentEpoch:  100,
	}

	restored, err := DeserializeAccount(account.Serialize())
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	if restored.Lamports != account.Lamports {
		t.Errorf("Lamports mismatch: got %d, want %d", restored.Lamports, account.Lamports)
	}
	if !bytes.Equal(restored.Data, account.Data) {
		t.Errorf("Data mismatch: got %v, want %v", restored.Data, account.Data)
	}
	if restored.Owner != account.Owner {
		t.Errorf("Owner mismatch: got %v, want %v", restored.Owner, account.Owner)
	}
	if !restored.Executable {
		t.Error("Executable flag lost")
	}
	if restored.RentEpoch != account.RentEpoch {
		t.Errorf("RentEpoch mismatch: got %d, want %d", restored.RentEpoch, account.RentEpoch)
	}
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	data := (&Account{Lamports: 1, Data: []byte("abc")}).Serialize()

	for _, n := range []int{0, 10, len(data) - 1} {
		if _, err := DeserializeAccount(data[:n]); !errors.Is(err, ErrInvalidData) {
			t.Errorf("len %d: got %v, want ErrInvalidData", n, err)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Account{Lamports: 5, Data: []byte{1, 2, 3}}
	c := orig.Clone()
	c.Data[0] = 9
	c.Lamports = 6

	if orig.Data[0] != 1 || orig.Lamports != 5 {
		t.Fatal("mutating the clone changed the original")
	}
}

// openBackends returns one fresh DB per backend.
func openBackends(t *testing.T) map[Backend]DB {
	t.Helper()
	dbs := make(map[Backend]DB)
	for _, b := range []Backend{BackendMemory, BackendBadger, BackendBolt} {
		db, err := Open(b)
		if err != nil {
			t.Fatalf("open %s: %v", b, err)
		}
		t.Cleanup(func() { db.Close() })
		dbs[b] = db
	}
	return dbs
}

func TestBackendsCRUD(t *testing.T) {
	key := types.KeypairFromName("crud").Pubkey()

	for name, db := range openBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			if _, err := db.GetAccount(key); !errors.Is(err, ErrAccountNotFound) {
				t.Fatalf("expected ErrAccountNotFound, got %v", err)
			}

			acc := &Account{Lamports: 42, Data: []byte("payload"), Owner: types.SystemProgramAddr}
			if err := db.SetAccount(key, acc); err != nil {
				t.Fatalf("SetAccount failed: %v", err)
			}

			exists, err := db.HasAccount(key)
			if err != nil || !exists {
				t.Fatalf("HasAccount = %v, %v; want true", exists, err)
			}

			got, err := db.GetAccount(key)
			if err != nil {
				t.Fatalf("GetAccount failed: %v", err)
			}
			if got.Lamports != 42 || !bytes.Equal(got.Data, acc.Data) {
				t.Errorf("got %+v, want %+v", got, acc)
			}

			// Returned accounts are copies.
			got.Lamports = 0
			again, _ := db.GetAccount(key)
			if again.Lamports != 42 {
				t.Error("GetAccount returned a shared reference")
			}

			// Overwrite must not bump the count.
			if err := db.SetAccount(key, &Account{Lamports: 7}); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			if n, _ := db.AccountsCount(); n != 1 {
				t.Errorf("AccountsCount = %d, want 1", n)
			}

			// Zero accounts are deleted.
			if err := db.SetAccount(key, &Account{}); err != nil {
				t.Fatalf("zero SetAccount failed: %v", err)
			}
			if exists, _ := db.HasAccount(key); exists {
				t.Error("zero account should be deleted")
			}
			if n, _ := db.AccountsCount(); n != 0 {
				t.Errorf("AccountsCount = %d, want 0", n)
			}

			if err := db.DeleteAccount(key); err != nil {
				t.Errorf("deleting a missing account: %v", err)
			}
		})
	}
}

func TestClosedDB(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			db.Close()
			if _, err := db.GetAccount(types.SystemProgramAddr); !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestBoltTempDirRemoved(t *testing.T) {
	db, err := NewBoltDB("")
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	dir := db.tempDir
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir missing: %v", err)
	}
	db.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still present after Close: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("leveldb"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}
