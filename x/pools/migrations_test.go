package pools

import (
	"bytes"
	"context"
	"testing"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
	"github.com/iov-one/upgrade/store"
	"github.com/iov-one/upgrade/upgradetest/assert"
)

func TestMigrationSetsParameters(t *testing.T) {
	set := Migrations(migration.RocksDBWeight)
	db := store.MemStore()
	ctx := context.Background()

	cost, err := migration.NewRunner(set, migration.WithLogger(log.TestingLogger())).Run(ctx, db)
	assert.Nil(t, err)
	assert.Equal(t, migration.RocksDBWeight.Writes(5), cost)

	v, err := migration.CurrentVersion(db, Unit)
	assert.Nil(t, err)
	assert.Equal(t, migration.Version(1), v)

	want := map[string]uint64{
		"pools:MinJoinBond":           1000000000000000000,
		"pools:MinCreateBond":         10000000000000000000,
		"pools:MaxPools":              16,
		"pools:MaxPoolMembersPerPool": 100,
		"pools:MaxPoolMembers":        1600,
	}
	for key, value := range want {
		got, ok, err := Param(db, []byte(key))
		assert.Nil(t, err)
		assert.Equal(t, true, ok)
		assert.Equal(t, value, got)
	}

	// Running again is free.
	cost, err = migration.NewRunner(set).Run(ctx, db)
	assert.Nil(t, err)
	assert.Equal(t, migration.Weight(0), cost)
}

func TestCheckParams(t *testing.T) {
	cases := map[string]struct {
		prepare   func(t *testing.T, db store.CacheableKVStore)
		wantField map[string]*errors.Error
	}{
		"all parameters set": {
			prepare: func(t *testing.T, db store.CacheableKVStore) {
				for _, p := range params {
					assert.Nil(t, SetParam(db, p.key, p.value))
				}
			},
			wantField: map[string]*errors.Error{
				"MinJoinBond": nil,
				"MaxPools":    nil,
			},
		},
		"nothing set": {
			prepare: func(t *testing.T, db store.CacheableKVStore) {},
			wantField: map[string]*errors.Error{
				"MinJoinBond":    errors.ErrNotFound,
				"MaxPoolMembers": errors.ErrNotFound,
			},
		},
		"wrong value": {
			prepare: func(t *testing.T, db store.CacheableKVStore) {
				for _, p := range params {
					assert.Nil(t, SetParam(db, p.key, p.value))
				}
				assert.Nil(t, SetParam(db, MaxPoolsKey, 17))
			},
			wantField: map[string]*errors.Error{
				"MaxPools":    errors.ErrInvariantViolation,
				"MinJoinBond": nil,
			},
		},
		"corrupted value": {
			prepare: func(t *testing.T, db store.CacheableKVStore) {
				for _, p := range params {
					assert.Nil(t, SetParam(db, p.key, p.value))
				}
				assert.Nil(t, db.Set(MaxPoolMembersKey, []byte{0xff}))
			},
			wantField: map[string]*errors.Error{
				"MaxPoolMembers": errors.ErrState,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			tc.prepare(t, db)
			err := checkParams(context.Background(), db, nil)
			for field, want := range tc.wantField {
				assert.FieldError(t, err, field, want)
			}
		})
	}
}

// droppingStore silently ignores writes to a single key.
type droppingStore struct {
	upgrade.KVStore
	drop []byte
}

func (d droppingStore) Set(key, value []byte) error {
	if bytes.Equal(key, d.drop) {
		return nil
	}
	return d.KVStore.Set(key, value)
}

func TestEnforcedCheckStopsProductionRun(t *testing.T) {
	db := store.MemStore()
	lossy := droppingStore{KVStore: db, drop: MaxPoolsKey}

	_, err := migration.NewRunner(Migrations(migration.RocksDBWeight)).Run(context.Background(), lossy)
	assert.IsErr(t, errors.ErrInvariantViolation, err)

	v, err := migration.CurrentVersion(db, Unit)
	assert.Nil(t, err)
	assert.Equal(t, migration.Version(0), v)
}
