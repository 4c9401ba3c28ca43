package gconf

import (
	"github.com/iov-one/upgrade/errors"
)

// ReadStore is a subset of upgrade.ReadOnlyKVStore.
type ReadStore interface {
	Get([]byte) ([]byte, error)
}

// Store is a subset of upgrade.KVStore.
type Store interface {
	ReadStore
	Set([]byte, []byte) error
}

// ValidMarshaler is implemented by object that can serialize itself to a binary
// representation. You must add your own Validate method.
type ValidMarshaler interface {
	Marshal() ([]byte, error)
	Validate() error
}

// Unmarshaler is implemented by object that can load their state from given
// binary representation.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Configuration is implemented by objects that can be both saved and loaded.
type Configuration interface {
	ValidMarshaler
	Unmarshaler
}

// Key returns the database key under which the configuration of given
// package is stored.
func Key(pkg string) []byte {
	return []byte("_c:" + pkg)
}

// Save will Validate the object, before writing it to a special "configuration"
// singleton for that package name.
func Save(db Store, pkg string, src ValidMarshaler) error {
	if pkg == "" {
		return errors.Wrap(errors.ErrEmpty, "package name")
	}
	key := Key(pkg)
	if err := src.Validate(); err != nil {
		return errors.Wrapf(err, "validation: key %q", key)
	}
	raw, err := src.Marshal()
	if err != nil {
		return errors.Wrapf(err, "marshal: key %q", key)
	}
	if err := db.Set(key, raw); err != nil {
		return errors.Wrapf(err, "save: key %q", key)
	}
	return nil
}

// Load reads the configuration singleton of given package into dst.
// ErrNotFound is returned if the configuration was never saved.
func Load(db ReadStore, pkg string, dst Unmarshaler) error {
	key := Key(pkg)
	raw, err := db.Get(key)
	if err != nil {
		return errors.Wrapf(err, "load: key %q", key)
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "key %q", key)
	}
	if err := dst.Unmarshal(raw); err != nil {
		return errors.Wrapf(err, "unmarshal: key %q", key)
	}
	return nil
}

// LoadOrDefault works like Load, but instead of failing when no
// configuration was saved, it uses fallback to set dst. It returns true if
// the configuration was found in the database.
func LoadOrDefault(db ReadStore, pkg string, dst Unmarshaler, fallback func()) (bool, error) {
	switch err := Load(db, pkg, dst); {
	case err == nil:
		return true, nil
	case errors.ErrNotFound.Is(err):
		fallback()
		return false, nil
	default:
		return false, err
	}
}
