package migration

import (
	"context"

	"github.com/iov-one/upgrade"
)

// writeStep returns a step that writes the key and increments calls each
// time it is applied. Writing the same value again is idempotent.
func writeStep(unit string, from Version, key string, cost Weight, calls *int) *Definition {
	return &Definition{
		Unit: unit,
		From: from,
		Name: "write " + key,
		Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
			*calls++
			if err := db.Set([]byte(key), []byte("done")); err != nil {
				return 0, err
			}
			return cost, nil
		},
	}
}

// failStep returns a step that always fails with given error.
func failStep(unit string, from Version, err error) *Definition {
	return &Definition{
		Unit: unit,
		From: from,
		Name: "fail",
		Migrate: func(context.Context, upgrade.KVStore) (Weight, error) {
			return 0, err
		},
	}
}

// alwaysStep applies at any version. Such a step is broken on purpose and
// is used to test that repeated runs are detected.
type alwaysStep struct {
	*Definition
}

func (alwaysStep) AppliesAt(Version) bool { return true }

func (a alwaysStep) Steps() []Step { return []Step{a} }
