package pools

import (
	"context"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
)

// Migrations returns all schema migrations of the pools unit. Step costs are
// computed using given database weights.
func Migrations(w migration.DBWeight) *migration.Set {
	return migration.MustNewSet(
		&migration.Definition{
			Unit: Unit,
			From: 0,
			Name: "set pool parameters",
			Migrate: func(ctx context.Context, db upgrade.KVStore) (migration.Weight, error) {
				upgrade.GetLogger(ctx).Info("nomination pools migration from v0 to v1", "unit", Unit)
				for _, p := range params {
					if err := SetParam(db, p.key, p.value); err != nil {
						return 0, errors.Wrap(err, p.name)
					}
				}
				return w.Writes(uint64(len(params))), nil
			},
			Post:    checkParams,
			Enforce: true,
		},
	)
}

// checkParams ensures that all parameters hold the values set by the
// migration to version 1.
func checkParams(ctx context.Context, db upgrade.ReadOnlyKVStore, _ *migration.Snapshot) error {
	var errs error
	for _, p := range params {
		got, ok, err := Param(db, p.key)
		switch {
		case err != nil:
			errs = errors.AppendField(errs, p.name, err)
		case !ok:
			errs = errors.AppendField(errs, p.name, errors.ErrNotFound)
		case got != p.value:
			errs = errors.Append(errs, errors.Field(p.name, errors.ErrInvariantViolation,
				"expected %d, got %d", p.value, got))
		}
	}
	return errs
}
