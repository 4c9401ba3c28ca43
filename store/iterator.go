package store

import (
	"bytes"

	"github.com/iov-one/upgrade/errors"
)

// combine joins the cached items with the content of the parent iterator,
// taking into consideration overwrites and deletes. The parent iterator is
// fully consumed and released before this function returns, so the
// returned iterator never holds a reference to the backing store.
//
// Cached items must be in ascending order. The parent iterator must iterate
// in the direction requested by reverse.
func combine(parent Iterator, cached []keyer, reverse bool) (Iterator, error) {
	defer parent.Release()

	var fromParent []Model
	for {
		key, value, err := parent.Next()
		if err != nil {
			if errors.ErrIteratorDone.Is(err) {
				break
			}
			return nil, errors.Wrap(err, "parent iterator")
		}
		fromParent = append(fromParent, Model{Key: key, Value: value})
	}
	if reverse {
		// Merging is always done in ascending order.
		fromParent = reverseModels(fromParent)
	}

	res := make([]Model, 0, len(fromParent)+len(cached))
	var p, c int
	for p < len(fromParent) || c < len(cached) {
		var cmp int
		switch {
		case p == len(fromParent):
			cmp = 1
		case c == len(cached):
			cmp = -1
		default:
			cmp = bytes.Compare(fromParent[p].Key, cached[c].Key())
		}

		if cmp < 0 {
			res = append(res, fromParent[p])
			p++
			continue
		}
		// Cached value always takes precedence over the parent.
		if cmp == 0 {
			p++
		}
		if item, ok := cached[c].(setItem); ok {
			res = append(res, Model{Key: item.Key(), Value: item.value})
		}
		c++
	}

	if reverse {
		res = reverseModels(res)
	}
	return NewSliceIterator(res), nil
}

// reverseModels reverses the order of models in place and returns the same
// slice.
func reverseModels(ms []Model) []Model {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
	return ms
}
