package migration

import (
	"github.com/iov-one/upgrade"
)

// meteredStore counts store operations done by a step and remembers the
// first failed write, so that a step failure caused by the store can be told
// apart from a failure of the step logic.
type meteredStore struct {
	upgrade.KVStore
	reads    uint64
	writes   uint64
	writeErr error
}

var _ upgrade.KVStore = (*meteredStore)(nil)

func (m *meteredStore) Get(key []byte) ([]byte, error) {
	m.reads++
	return m.KVStore.Get(key)
}

func (m *meteredStore) Has(key []byte) (bool, error) {
	m.reads++
	return m.KVStore.Has(key)
}

func (m *meteredStore) Iterator(start, end []byte) (upgrade.Iterator, error) {
	it, err := m.KVStore.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	return &meteredIterator{Iterator: it, m: m}, nil
}

func (m *meteredStore) ReverseIterator(start, end []byte) (upgrade.Iterator, error) {
	it, err := m.KVStore.ReverseIterator(start, end)
	if err != nil {
		return nil, err
	}
	return &meteredIterator{Iterator: it, m: m}, nil
}

func (m *meteredStore) Set(key, value []byte) error {
	m.writes++
	return m.failed(m.KVStore.Set(key, value))
}

func (m *meteredStore) Delete(key []byte) error {
	m.writes++
	return m.failed(m.KVStore.Delete(key))
}

func (m *meteredStore) NewBatch() upgrade.Batch {
	return &meteredBatch{Batch: m.KVStore.NewBatch(), m: m}
}

// failed records the first write error and returns it unchanged.
func (m *meteredStore) failed(err error) error {
	if err != nil && m.writeErr == nil {
		m.writeErr = err
	}
	return err
}

type meteredIterator struct {
	upgrade.Iterator
	m *meteredStore
}

func (it *meteredIterator) Next() (key, value []byte, err error) {
	key, value, err = it.Iterator.Next()
	if err == nil {
		it.m.reads++
	}
	return key, value, err
}

type meteredBatch struct {
	upgrade.Batch
	m *meteredStore
}

func (b *meteredBatch) Set(key, value []byte) error {
	b.m.writes++
	return b.m.failed(b.Batch.Set(key, value))
}

func (b *meteredBatch) Delete(key []byte) error {
	b.m.writes++
	return b.m.failed(b.Batch.Delete(key))
}

func (b *meteredBatch) Write() error {
	return b.m.failed(b.Batch.Write())
}
