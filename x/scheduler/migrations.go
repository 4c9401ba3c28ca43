package scheduler

import (
	"context"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
	"github.com/iov-one/upgrade/store"
)

// Migrations returns all schema migrations of the scheduler unit. Step costs
// are computed using given database weights.
func Migrations(w migration.DBWeight) *migration.Set {
	return migration.MustNewSet(
		&migration.Definition{
			Unit: Unit,
			From: 0,
			Name: "move agenda to versioned entries",
			Migrate: func(ctx context.Context, db upgrade.KVStore) (migration.Weight, error) {
				n, err := migrateAgenda(db)
				if err != nil {
					return 0, err
				}
				upgrade.GetLogger(ctx).Info("agenda migrated", "unit", Unit, "entries", n)
				return w.ReadsWrites(n, 2*n), nil
			},
			Post: checkAgenda,
		},
	)
}

// migrateAgenda moves every legacy entry to its version 1 key. A moved entry
// no longer exists under the legacy key, so running it again only moves what
// is left. It returns the number of moved entries.
func migrateAgenda(db upgrade.KVStore) (uint64, error) {
	legacy, err := listPrefix(db, LegacyAgendaPrefix)
	if err != nil {
		return 0, err
	}
	for _, m := range legacy {
		id := m.Key[len(LegacyAgendaPrefix):]
		s, err := decodeLegacy(m.Value)
		if err != nil {
			return 0, errors.Wrapf(err, "agenda entry %X", id)
		}
		raw, err := EncodeScheduled(s)
		if err != nil {
			return 0, errors.Wrapf(err, "agenda entry %X", id)
		}
		if err := db.Set(AgendaKey(id), raw); err != nil {
			return 0, err
		}
		if err := db.Delete(m.Key); err != nil {
			return 0, err
		}
	}
	return uint64(len(legacy)), nil
}

// checkAgenda ensures that no legacy entry is left and that every new entry
// is valid.
func checkAgenda(ctx context.Context, db upgrade.ReadOnlyKVStore, _ *migration.Snapshot) error {
	legacy, err := listPrefix(db, LegacyAgendaPrefix)
	if err != nil {
		return err
	}
	if len(legacy) != 0 {
		return errors.Wrapf(errors.ErrInvariantViolation, "%d legacy agenda entries left", len(legacy))
	}
	entries, err := listPrefix(db, AgendaPrefix)
	if err != nil {
		return err
	}
	for _, m := range entries {
		s, err := DecodeScheduled(m.Value)
		if err != nil {
			return errors.Wrapf(err, "agenda entry %X", m.Key)
		}
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "agenda entry %X", m.Key)
		}
	}
	return nil
}

// listPrefix loads all entries with given key prefix.
func listPrefix(db upgrade.ReadOnlyKVStore, prefix []byte) ([]store.Model, error) {
	it, err := db.Iterator(store.PrefixRange(prefix))
	if err != nil {
		return nil, errors.Wrap(err, "iterator")
	}
	defer it.Release()

	var res []store.Model
	for {
		key, value, err := it.Next()
		switch {
		case err == nil:
			res = append(res, store.Pair(key, value))
		case errors.ErrIteratorDone.Is(err):
			return res, nil
		default:
			return nil, errors.Wrap(err, "iterate")
		}
	}
}
