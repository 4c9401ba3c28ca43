package iavl

import (
	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"

	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/store"
)

// cacheSize is the number of tree nodes kept in memory.
const cacheSize = 10000

// CommitStore manages a iavl committed state. All writes are done to the
// working tree and become durable only once Commit is called.
type CommitStore struct {
	tree *iavl.MutableTree
	db   dbm.DB
}

var _ store.CommitKVStore = (*CommitStore)(nil)

// NewCommitStore creates a new store with a leveldb disk backing. Database
// files are kept in dir/name.db
func NewCommitStore(dir, name string) (*CommitStore, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %s in %s: %s", name, dir, err)
	}
	return &CommitStore{
		tree: iavl.NewMutableTree(db, cacheSize),
		db:   db,
	}, nil
}

// MockCommitStore creates a new store that is backed by an in-memory
// database. Nothing survives the process.
func MockCommitStore() *CommitStore {
	db := dbm.NewMemDB()
	return &CommitStore{
		tree: iavl.NewMutableTree(db, cacheSize),
		db:   db,
	}
}

// Get returns the value at last committed state
// returns nil iff key doesn't exist.
func (s *CommitStore) Get(key []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.Wrap(errors.ErrInput, "nil key")
	}
	_, val := s.tree.GetVersioned(key, s.tree.Version())
	return val, nil
}

// Commit the next version to disk, and returns info
func (s *CommitStore) Commit() (store.CommitID, error) {
	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return store.CommitID{}, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return store.CommitID{
		Version: version,
		Hash:    hash,
	}, nil
}

// LoadLatestVersion loads the latest persisted version.
// If there was a crash during the last commit, it is guaranteed
// to return a stable state, even if older.
func (s *CommitStore) LoadLatestVersion() error {
	if _, err := s.tree.Load(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// LatestVersion returns info on the latest version saved to disk
func (s *CommitStore) LatestVersion() (store.CommitID, error) {
	return store.CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}, nil
}

// CacheWrap gives us a savepoint to perform actions. Once written, the
// changes are applied to the working tree and wait for the next Commit.
func (s *CommitStore) CacheWrap() store.KVCacheWrap {
	a := s.Adapter()
	return store.NewBTreeCacheWrap(a, a.NewBatch(), nil)
}

// Adapter returns a store that reads from and writes directly to the working
// (not yet committed) tree.
func (s *CommitStore) Adapter() store.CacheableKVStore {
	return store.BTreeCacheable{KVStore: adapter{tree: s.tree}}
}

// Close releases the underlying database.
func (s *CommitStore) Close() {
	s.db.Close()
}

// adapter exposes the working tree as a KVStore
type adapter struct {
	tree *iavl.MutableTree
}

var _ store.KVStore = adapter{}

// Get returns nil iff key doesn't exist.
func (a adapter) Get(key []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.Wrap(errors.ErrInput, "nil key")
	}
	_, val := a.tree.Get(key)
	return val, nil
}

// Has checks if a key exists.
func (a adapter) Has(key []byte) (bool, error) {
	if key == nil {
		return false, errors.Wrap(errors.ErrInput, "nil key")
	}
	return a.tree.Has(key), nil
}

// Set adds a new value. The tree does not allow nil values.
func (a adapter) Set(key, value []byte) error {
	if key == nil {
		return errors.Wrap(errors.ErrInput, "nil key")
	}
	if value == nil {
		value = []byte{}
	}
	a.tree.Set(key, value)
	return nil
}

// Delete removes from the tree
func (a adapter) Delete(key []byte) error {
	if key == nil {
		return errors.Wrap(errors.ErrInput, "nil key")
	}
	a.tree.Remove(key)
	return nil
}

// NewBatch returns a batch that applies all operations on Write
func (a adapter) NewBatch() store.Batch {
	return store.NewNonAtomicBatch(a)
}

// Iterator over a domain of keys in ascending order. End is exclusive.
func (a adapter) Iterator(start, end []byte) (store.Iterator, error) {
	return a.collect(start, end, true), nil
}

// ReverseIterator over a domain of keys in descending order. End is exclusive.
func (a adapter) ReverseIterator(start, end []byte) (store.Iterator, error) {
	return a.collect(start, end, false), nil
}

// collect reads the whole range upfront, so that writes done while
// iterating never affect the result.
func (a adapter) collect(start, end []byte, ascending bool) store.Iterator {
	var res []store.Model
	a.tree.IterateRange(start, end, ascending, func(key, value []byte) bool {
		res = append(res, store.Model{Key: key, Value: value})
		return false
	})
	return store.NewSliceIterator(res)
}
