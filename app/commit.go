package app

import (
	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
)

// CommitStore handles loading from a CommitKVStore, maintaining a cache for
// the migration run and returning useful state info.
type CommitStore struct {
	committed upgrade.CommitKVStore
	deliver   upgrade.KVCacheWrap
}

// NewCommitStore loads the latest version of the CommitKVStore and sets up
// the deliver cache.
func NewCommitStore(store upgrade.CommitKVStore) (*CommitStore, error) {
	if err := store.LoadLatestVersion(); err != nil {
		return nil, errors.Wrap(err, "load latest version")
	}
	return &CommitStore{
		committed: store,
		deliver:   store.CacheWrap(),
	}, nil
}

// CommitInfo returns the current version and hash
func (cs *CommitStore) CommitInfo() (upgrade.CommitID, error) {
	return cs.committed.LatestVersion()
}

// Commit will flush deliver to the underlying store and commit it
// to disk. It then sets up a new deliver cache.
func (cs *CommitStore) Commit() (upgrade.CommitID, error) {
	if err := cs.deliver.Write(); err != nil {
		return upgrade.CommitID{}, errors.Wrap(err, "write deliver cache")
	}
	res, err := cs.committed.Commit()
	if err != nil {
		return res, err
	}
	cs.deliver = cs.committed.CacheWrap()
	return res, nil
}

// Discard drops all changes done to the deliver store since the last
// commit.
func (cs *CommitStore) Discard() {
	cs.deliver.Discard()
	cs.deliver = cs.committed.CacheWrap()
}

// DeliverStore returns a store implementation that all changes must be done
// with. Nothing is persisted until Commit is called.
func (cs *CommitStore) DeliverStore() upgrade.CacheableKVStore {
	return cs.deliver
}
