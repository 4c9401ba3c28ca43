package upgradetest

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/store"
	"github.com/iov-one/upgrade/store/iavl"
)

// CommitKVStore returns a store instance that is using a filesystem backend
// engine to store the data.
// This implementation should be used instead of MemStore when you want the
// exact same storage implementation as the production instance is using.
func CommitKVStore(t testing.TB) (db *iavl.CommitStore, cleanup func()) {
	t.Helper()
	dbpath, err := ioutil.TempDir("", "upgradetest-")
	if err != nil {
		t.Fatalf("cannot create a temporary directory: %s", err)
	}
	db, err = iavl.NewCommitStore(dbpath, "db")
	if err != nil {
		os.RemoveAll(dbpath)
		t.Fatalf("cannot create commit store: %s", err)
	}
	return db, func() {
		db.Close()
		os.RemoveAll(dbpath)
	}
}

// FailingStore wraps a store and rejects writes once a given number of them
// succeeded. Reads are always passed to the wrapped store.
type FailingStore struct {
	upgrade.KVStore
	// Allowed is the number of writes that succeed before the store
	// starts failing.
	Allowed int
	// Writes counts successful writes.
	Writes int
	// Err is returned for a rejected write. ErrDatabase is used when nil.
	Err error
}

var _ upgrade.KVStore = (*FailingStore)(nil)

// NewFailingStore returns a store that accepts allowed writes and fails all
// following ones.
func NewFailingStore(db upgrade.KVStore, allowed int) *FailingStore {
	return &FailingStore{KVStore: db, Allowed: allowed}
}

func (f *FailingStore) Set(key, value []byte) error {
	if err := f.next(); err != nil {
		return err
	}
	return f.KVStore.Set(key, value)
}

func (f *FailingStore) Delete(key []byte) error {
	if err := f.next(); err != nil {
		return err
	}
	return f.KVStore.Delete(key)
}

// NewBatch returns a batch that writes each operation through this store, so
// batched writes fail the same way.
func (f *FailingStore) NewBatch() upgrade.Batch {
	return store.NewNonAtomicBatch(f)
}

func (f *FailingStore) next() error {
	if f.Writes >= f.Allowed {
		if f.Err != nil {
			return f.Err
		}
		return errors.Wrap(errors.ErrDatabase, "write rejected")
	}
	f.Writes++
	return nil
}
