package migration

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
)

// Snapshot is a serializable copy of the state that migration steps depend
// on. It holds the versions of units and the values of keys that steps
// declared they read. Nothing else from the store is captured.
type Snapshot struct {
	Versions []UnitVersion
	Entries  []Entry
}

// UnitVersion is the schema version of a unit at the time of capture.
type UnitVersion struct {
	Unit    string
	Version uint32
}

// Entry is a single captured key. Present distinguishes a missing key from a
// key with an empty value.
type Entry struct {
	Key     []byte
	Value   []byte
	Present bool
}

// captureSnapshot reads versions of given units and values of given keys.
// Duplicated keys are captured once.
func captureSnapshot(db upgrade.ReadOnlyKVStore, units []string, keys [][]byte) (*Snapshot, error) {
	snap := &Snapshot{}
	for _, unit := range units {
		v, err := CurrentVersion(db, unit)
		if err != nil {
			return nil, errors.Wrap(err, "snapshot")
		}
		snap.Versions = append(snap.Versions, UnitVersion{Unit: unit, Version: uint32(v)})
	}
	for _, key := range keys {
		if _, ok := snap.entry(key); ok {
			continue
		}
		value, err := db.Get(key)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot key %q", key)
		}
		snap.Entries = append(snap.Entries, Entry{
			Key:     key,
			Value:   value,
			Present: value != nil,
		})
	}
	return snap, nil
}

// Version returns the captured version of a unit. False is returned if the
// unit was not captured.
func (s *Snapshot) Version(unit string) (Version, bool) {
	for _, uv := range s.Versions {
		if uv.Unit == unit {
			return Version(uv.Version), true
		}
	}
	return 0, false
}

// Value returns the captured value of a key and whether the key was present
// in the store. ErrNotFound is returned if the key was not captured at all.
func (s *Snapshot) Value(key []byte) ([]byte, bool, error) {
	e, ok := s.entry(key)
	if !ok {
		return nil, false, errors.Wrapf(errors.ErrNotFound, "key %q not in snapshot", key)
	}
	return e.Value, e.Present, nil
}

func (s *Snapshot) entry(key []byte) (Entry, bool) {
	for _, e := range s.Entries {
		if bytes.Equal(e.Key, key) {
			return e, true
		}
	}
	return Entry{}, false
}

// Marshal serializes the snapshot.
func (s *Snapshot) Marshal() ([]byte, error) {
	return cdc.MarshalBinaryBare(s)
}

// Unmarshal loads the snapshot from its serialized form.
func (s *Snapshot) Unmarshal(raw []byte) error {
	if err := cdc.UnmarshalBinaryBare(raw, s); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	return nil
}

// Fingerprint returns a digest of the serialized snapshot.
func (s *Snapshot) Fingerprint() ([]byte, error) {
	raw, err := s.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal")
	}
	sum := blake2b.Sum256(raw)
	return sum[:], nil
}

// StateHash returns a digest of the whole content of the store. Two stores
// have the same hash only when they hold the same keys with the same values.
func StateHash(db upgrade.ReadOnlyKVStore) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrHuman, err.Error())
	}
	it, err := db.Iterator(nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "iterator")
	}
	defer it.Release()

	var size [8]byte
	for {
		key, value, err := it.Next()
		if err != nil {
			if errors.ErrIteratorDone.Is(err) {
				return h.Sum(nil), nil
			}
			return nil, errors.Wrap(err, "iterate")
		}
		// Length prefix makes the encoding unambiguous.
		binary.BigEndian.PutUint64(size[:], uint64(len(key)))
		h.Write(size[:])
		h.Write(key)
		binary.BigEndian.PutUint64(size[:], uint64(len(value)))
		h.Write(size[:])
		h.Write(value)
	}
}
