package store

import "github.com/iov-one/upgrade"

// Move references for all storage types into this package
// for shorter names everywhere

type (
	ReadOnlyKVStore  = upgrade.ReadOnlyKVStore
	SetDeleter       = upgrade.SetDeleter
	KVStore          = upgrade.KVStore
	Batch            = upgrade.Batch
	Iterator         = upgrade.Iterator
	CacheableKVStore = upgrade.CacheableKVStore
	KVCacheWrap      = upgrade.KVCacheWrap
	CommitKVStore    = upgrade.CommitKVStore
	CommitID         = upgrade.CommitID
)

// Model groups together key and value to return
type Model struct {
	Key   []byte
	Value []byte
}

// Pair constructs a model from a key-value pair
func Pair(key, value []byte) Model {
	return Model{
		Key:   key,
		Value: value,
	}
}
