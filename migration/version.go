package migration

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
)

// Version is the schema version of a unit. Versions are only ever increased.
type Version uint32

// maxVersion cannot be upgraded from, as there is no version after it.
const maxVersion Version = math.MaxUint32

// stampPrefix is prepended to the unit name to build the stamp key.
const stampPrefix = "_sv:"

// VersionKey returns the key under which the schema version of given unit is
// stored.
func VersionKey(unit string) []byte {
	return []byte(stampPrefix + unit)
}

// CurrentVersion returns the stamped schema version of a unit. Zero is
// returned if the unit was never stamped.
func CurrentVersion(db upgrade.ReadOnlyKVStore, unit string) (Version, error) {
	raw, err := db.Get(VersionKey(unit))
	if err != nil {
		return 0, errors.Wrapf(err, "read %q stamp", unit)
	}
	if raw == nil {
		return 0, nil
	}
	return decodeVersion(unit, raw)
}

// SetVersion stamps the unit with given version. Only a version greater than
// the current one can be written.
func SetVersion(db upgrade.KVStore, unit string, v Version) error {
	current, err := CurrentVersion(db, unit)
	if err != nil {
		return err
	}
	if v <= current {
		return errors.Wrapf(errors.ErrNonMonotonicVersion,
			"unit %q is at version %d, cannot set %d", unit, current, v)
	}
	if err := db.Set(VersionKey(unit), encodeVersion(v)); err != nil {
		return errors.Wrapf(errors.ErrWriteFailure, "stamp %q with %d: %s", unit, v, err)
	}
	return nil
}

func encodeVersion(v Version) []byte {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, uint32(v))
	return raw
}

func decodeVersion(unit string, raw []byte) (Version, error) {
	if len(raw) != 4 {
		return 0, errors.Wrapf(errors.ErrState, "corrupted %q stamp: %X", unit, raw)
	}
	return Version(binary.BigEndian.Uint32(raw)), nil
}

// validateUnitName returns an error if given name cannot be used as a unit
// identifier.
func validateUnitName(unit string) error {
	switch {
	case unit == "":
		return errors.Wrap(errors.ErrEmpty, "unit name")
	case strings.Contains(unit, ":"):
		return errors.Wrapf(errors.ErrInput, "unit name %q must not contain a colon", unit)
	}
	return nil
}
