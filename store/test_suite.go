package store

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/upgradetest/assert"
)

// TestSuite runs the store behaviour that migrations rely on against any
// CacheableKVStore implementation. The in-memory store and the iavl adapter
// share it.
type TestSuite struct {
	makeBase TestStoreConstructor
}

type TestStoreConstructor func() (base CacheableKVStore, cleanup func())

func NewTestSuite(constructor TestStoreConstructor) *TestSuite {
	return &TestSuite{
		makeBase: constructor,
	}
}

// VersionStamps checks that a stamp written through a cache wrap is visible
// in the parent only once the cache is written.
func (s *TestSuite) VersionStamps(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	pools, bounties := []byte("_sv:pools"), []byte("_sv:bounties")
	checkGetHas(t, base, pools, nil)
	assert.Nil(t, base.Set(pools, []byte{0, 0, 0, 1}))
	checkGetHas(t, base, pools, []byte{0, 0, 0, 1})

	cache := base.CacheWrap()
	checkGetHas(t, cache, pools, []byte{0, 0, 0, 1})
	assert.Nil(t, cache.Set(pools, []byte{0, 0, 0, 2}))
	assert.Nil(t, cache.Set(bounties, []byte{0, 0, 0, 4}))
	checkGetHas(t, cache, pools, []byte{0, 0, 0, 2})
	checkGetHas(t, base, pools, []byte{0, 0, 0, 1})
	checkGetHas(t, base, bounties, nil)

	assert.Nil(t, cache.Write())
	checkGetHas(t, base, pools, []byte{0, 0, 0, 2})
	checkGetHas(t, base, bounties, []byte{0, 0, 0, 4})

	// A stamp removed in a nested cache is gone from both layers once
	// written all the way down.
	outer := base.CacheWrap()
	inner := outer.CacheWrap()
	assert.Nil(t, inner.Delete(bounties))
	checkGetHas(t, outer, bounties, []byte{0, 0, 0, 4})
	assert.Nil(t, inner.Write())
	checkGetHas(t, outer, bounties, nil)
	checkGetHas(t, base, bounties, []byte{0, 0, 0, 4})
	assert.Nil(t, outer.Write())
	checkGetHas(t, base, bounties, nil)
}

// CacheOverrides checks that values set or deleted in a cache take
// precedence over the parent and leave the parent untouched until written.
func (s *TestSuite) CacheOverrides(t *testing.T) {
	cases := map[string]struct {
		parent []Op
		child  []Op
		// Want values as seen by the parent before and after the
		// child is written. Nil means absent.
		before []Model
		after  []Model
	}{
		"parameter overwritten": {
			parent: []Op{SetOp([]byte("pools:MaxPools"), []byte("8"))},
			child:  []Op{SetOp([]byte("pools:MaxPools"), []byte("16"))},
			before: []Model{Pair([]byte("pools:MaxPools"), []byte("8"))},
			after:  []Model{Pair([]byte("pools:MaxPools"), []byte("16"))},
		},
		"legacy entry moved": {
			parent: []Op{SetOp([]byte("sched:agenda:a"), []byte("1x"))},
			child: []Op{
				SetOp([]byte("sched:agenda1:a"), []byte("1x")),
				DelOp([]byte("sched:agenda:a")),
			},
			before: []Model{
				Pair([]byte("sched:agenda:a"), []byte("1x")),
				Pair([]byte("sched:agenda1:a"), nil),
			},
			after: []Model{
				Pair([]byte("sched:agenda:a"), nil),
				Pair([]byte("sched:agenda1:a"), []byte("1x")),
			},
		},
		"deleted and set again": {
			parent: []Op{SetOp([]byte("pools:MinJoinBond"), []byte("1"))},
			child: []Op{
				DelOp([]byte("pools:MinJoinBond")),
				SetOp([]byte("pools:MinJoinBond"), []byte("2")),
			},
			before: []Model{Pair([]byte("pools:MinJoinBond"), []byte("1"))},
			after:  []Model{Pair([]byte("pools:MinJoinBond"), []byte("2"))},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			parent, cleanup := s.makeBase()
			defer cleanup()

			for _, op := range tc.parent {
				assert.Nil(t, op.Apply(parent))
			}
			child := parent.CacheWrap()
			for _, op := range tc.child {
				assert.Nil(t, op.Apply(child))
			}

			for _, m := range tc.before {
				checkGetHas(t, parent, m.Key, m.Value)
			}
			for _, m := range tc.after {
				checkGetHas(t, child, m.Key, m.Value)
			}
			assert.Nil(t, child.Write())
			for _, m := range tc.after {
				checkGetHas(t, parent, m.Key, m.Value)
			}
		})
	}
}

// DiscardIsolation ensures that nothing written to a discarded cache wrap,
// including writes done through a batch and a nested cache wrap, ever
// reaches the parent store. Dry-run verification depends on this.
func (s *TestSuite) DiscardIsolation(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	k, v := []byte("_sv:pools"), []byte{0, 0, 0, 1}
	assert.Nil(t, base.Set(k, v))

	cache := base.CacheWrap()
	assert.Nil(t, cache.Set(k, []byte{0, 0, 0, 2}))
	assert.Nil(t, cache.Delete([]byte("pools:MaxPools")))

	batch := cache.NewBatch()
	assert.Nil(t, batch.Set([]byte("pools:MinJoinBond"), []byte("1")))
	assert.Nil(t, batch.Write())

	nested := cache.CacheWrap()
	assert.Nil(t, nested.Set([]byte("pools:MaxPoolMembers"), []byte("1600")))
	assert.Nil(t, nested.Write())

	checkGetHas(t, cache, []byte("pools:MinJoinBond"), []byte("1"))
	checkGetHas(t, cache, []byte("pools:MaxPoolMembers"), []byte("1600"))
	cache.Discard()

	checkGetHas(t, base, k, v)
	checkGetHas(t, base, []byte("pools:MinJoinBond"), nil)
	checkGetHas(t, base, []byte("pools:MaxPoolMembers"), nil)
}

// PrefixIteration checks that a prefix range over a cache returns exactly
// the entries under that prefix, merging the parent content with the
// changes of a half done agenda move.
func (s *TestSuite) PrefixIteration(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	for _, k := range []string{"sched:agenda:a", "sched:agenda:b", "sched:agenda:c", "sched:agendb", "sched:agend"} {
		assert.Nil(t, base.Set([]byte(k), []byte("v"+k)))
	}
	cache := base.CacheWrap()
	assert.Nil(t, cache.Set([]byte("sched:agenda1:a"), []byte("new a")))
	assert.Nil(t, cache.Delete([]byte("sched:agenda:a")))
	assert.Nil(t, cache.Set([]byte("sched:agenda:d"), []byte("late d")))

	legacy := []Model{
		Pair([]byte("sched:agenda:b"), []byte("vsched:agenda:b")),
		Pair([]byte("sched:agenda:c"), []byte("vsched:agenda:c")),
		Pair([]byte("sched:agenda:d"), []byte("late d")),
	}
	start, end := PrefixRange([]byte("sched:agenda:"))
	checkRange(t, cache, rangeQuery{start: start, end: end, expected: legacy})
	checkRange(t, cache, rangeQuery{start: start, end: end, reverse: true, expected: reverseModels(copyModels(legacy))})

	start, end = PrefixRange([]byte("sched:agenda1:"))
	checkRange(t, cache, rangeQuery{start: start, end: end, expected: []Model{
		Pair([]byte("sched:agenda1:a"), []byte("new a")),
	}})
}

// RangeIteration checks bounded and unbounded iteration in both directions
// over a parent and a cache that overwrites and deletes some of its keys.
func (s *TestSuite) RangeIteration(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	// The parent holds entries 00..19, the cache overwrites every third,
	// deletes every fifth and adds 20..24.
	want := make(map[string][]byte)
	for i := 0; i < 20; i++ {
		k := entryKey(i)
		assert.Nil(t, base.Set(k, []byte("parent")))
		want[string(k)] = []byte("parent")
	}
	cache := base.CacheWrap()
	for i := 0; i < 25; i++ {
		k := entryKey(i)
		switch {
		case i%5 == 0:
			assert.Nil(t, cache.Delete(k))
			delete(want, string(k))
		case i%3 == 0 || i >= 20:
			assert.Nil(t, cache.Set(k, []byte("cache")))
			want[string(k)] = []byte("cache")
		}
	}
	all := sortedModels(want)

	cases := map[string]rangeQuery{
		"everything":         {expected: all},
		"everything reverse": {reverse: true, expected: reverseModels(copyModels(all))},
		"from a deleted key": {start: entryKey(10), expected: filterModels(all, entryKey(10), nil)},
		"to a deleted key":   {end: entryKey(15), expected: filterModels(all, nil, entryKey(15))},
		"both bounds": {
			start:    entryKey(3),
			end:      entryKey(21),
			expected: filterModels(all, entryKey(3), entryKey(21)),
		},
		"both bounds reverse": {
			start:    entryKey(3),
			end:      entryKey(21),
			reverse:  true,
			expected: reverseModels(filterModels(all, entryKey(3), entryKey(21))),
		},
		"nothing in range": {start: entryKey(5), end: entryKey(6)},
	}

	for testName, q := range cases {
		t.Run(testName, func(t *testing.T) {
			checkRange(t, cache, q)
		})
	}
}

func entryKey(i int) []byte {
	return []byte(fmt.Sprintf("sched:agenda:%02d", i))
}

func checkGetHas(t testing.TB, kv ReadOnlyKVStore, key, want []byte) {
	t.Helper()
	got, err := kv.Get(key)
	assert.Nil(t, err)
	assert.Equal(t, want, got)
	has, err := kv.Has(key)
	assert.Nil(t, err)
	assert.Equal(t, want != nil, has)
}

// rangeQuery checks the results of iteration
type rangeQuery struct {
	start    []byte
	end      []byte
	reverse  bool
	expected []Model
}

func checkRange(t testing.TB, kv ReadOnlyKVStore, q rangeQuery) {
	t.Helper()

	var it Iterator
	var err error
	if q.reverse {
		it, err = kv.ReverseIterator(q.start, q.end)
	} else {
		it, err = kv.Iterator(q.start, q.end)
	}
	assert.Nil(t, err)
	defer it.Release()

	for i, m := range q.expected {
		key, value, err := it.Next()
		assert.Nil(t, err)
		if !bytes.Equal(m.Key, key) {
			t.Fatalf("want key %d to be %q, got %q", i, m.Key, key)
		}
		assert.Equal(t, m.Value, value)
	}
	if key, _, err := it.Next(); !errors.ErrIteratorDone.Is(err) {
		t.Fatalf("want ErrIteratorDone, got %q, %+v", key, err)
	}
}

func sortedModels(kv map[string][]byte) []Model {
	res := make([]Model, 0, len(kv))
	for k, v := range kv {
		res = append(res, Pair([]byte(k), v))
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Key, res[j].Key) < 0
	})
	return res
}

// filterModels returns models with start <= key < end. Nil bound is open.
func filterModels(ms []Model, start, end []byte) []Model {
	var res []Model
	for _, m := range ms {
		if start != nil && bytes.Compare(m.Key, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(m.Key, end) >= 0 {
			continue
		}
		res = append(res, m)
	}
	return res
}

func copyModels(ms []Model) []Model {
	res := make([]Model, len(ms))
	copy(res, ms)
	return res
}
