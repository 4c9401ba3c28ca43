package store

import (
	"bytes"
	"sort"
)

// Recorder is implemented by anything returned from NewRecordingStore.
type Recorder interface {
	// Changes returns all keys that were written or deleted, sorted by
	// key. Deleted keys have a nil value.
	Changes() []Model
}

// RecordingStore is a KVStore that remembers every key it changed.
type RecordingStore interface {
	KVStore
	Recorder
}

// NewRecordingStore wraps given store and records any change operation
// going through it, including those done through a batch.
func NewRecordingStore(db KVStore) RecordingStore {
	return &recordingStore{
		KVStore: db,
		changes: make(map[string][]byte),
	}
}

// recordingStore wraps a normal KVStore and records any change operations
type recordingStore struct {
	KVStore
	// changes is a map from key to the written value or nil for delete
	changes map[string][]byte
}

var _ RecordingStore = (*recordingStore)(nil)

func (r *recordingStore) Changes() []Model {
	res := make([]Model, 0, len(r.changes))
	for k, v := range r.changes {
		res = append(res, Model{Key: []byte(k), Value: v})
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Key, res[j].Key) < 0
	})
	return res
}

// Set records the changes while performing
func (r *recordingStore) Set(key, value []byte) error {
	if err := r.KVStore.Set(key, value); err != nil {
		return err
	}
	r.changes[string(key)] = value
	return nil
}

// Delete records the changes while performing
func (r *recordingStore) Delete(key []byte) error {
	if err := r.KVStore.Delete(key); err != nil {
		return err
	}
	r.changes[string(key)] = nil
	return nil
}

// NewBatch makes sure all writes go through this one
func (r *recordingStore) NewBatch() Batch {
	return &recorderBatch{
		changes: r.changes,
		b:       r.KVStore.NewBatch(),
	}
}

// recorderBatch writes to changes map only once the batch content is
// successfully written.
type recorderBatch struct {
	changes map[string][]byte
	b       Batch
	ops     []Op
}

var _ Batch = (*recorderBatch)(nil)

func (r *recorderBatch) Set(key, value []byte) error {
	if err := r.b.Set(key, value); err != nil {
		return err
	}
	r.ops = append(r.ops, SetOp(key, value))
	return nil
}

func (r *recorderBatch) Delete(key []byte) error {
	if err := r.b.Delete(key); err != nil {
		return err
	}
	r.ops = append(r.ops, DelOp(key))
	return nil
}

func (r *recorderBatch) Write() error {
	if err := r.b.Write(); err != nil {
		return err
	}
	for _, op := range r.ops {
		r.changes[string(op.key)] = op.value
	}
	r.ops = nil
	return nil
}
