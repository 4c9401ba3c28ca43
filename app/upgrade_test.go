package app

import (
	"context"
	"testing"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
	"github.com/iov-one/upgrade/upgradetest"
	"github.com/iov-one/upgrade/upgradetest/assert"
	"github.com/iov-one/upgrade/x/pools"
	"github.com/iov-one/upgrade/x/scheduler"
)

func TestUpgradeCommits(t *testing.T) {
	db, cleanup := upgradetest.CommitKVStore(t)
	defer cleanup()

	cs, err := NewCommitStore(db)
	assert.Nil(t, err)
	ctx := upgrade.WithLogger(context.Background(), log.TestingLogger())
	runner := migration.NewRunner(Migrations(migration.RocksDBWeight))

	report, id, err := Upgrade(ctx, cs, runner, 0)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), id.Version)
	assert.Equal(t, migration.RocksDBWeight.Writes(5), report.Cost)

	// Committed state is readable directly from the commit store.
	raw, err := db.Get(migration.VersionKey(pools.Unit))
	assert.Nil(t, err)
	if raw == nil {
		t.Fatal("pools unit stamp not committed")
	}

	// Nothing is pending, so no new version is created.
	report, id, err = Upgrade(ctx, cs, runner, 0)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), id.Version)
	assert.Equal(t, migration.Weight(0), report.Cost)
	assert.Equal(t, 0, len(report.Changes))
}

func TestUpgradeRefusesOverBudget(t *testing.T) {
	db, cleanup := upgradetest.CommitKVStore(t)
	defer cleanup()

	cs, err := NewCommitStore(db)
	assert.Nil(t, err)
	runner := migration.NewRunner(Migrations(migration.RocksDBWeight))

	report, _, err := Upgrade(context.Background(), cs, runner, migration.RocksDBWeight.Writes(4))
	assert.IsErr(t, errors.ErrOverflow, err)
	// The report describes the discarded work.
	if _, ok := report.Migrated(pools.Unit); !ok {
		t.Fatal("pools migration missing from the report")
	}

	info, err := cs.CommitInfo()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), info.Version)
	v, err := migration.CurrentVersion(cs.DeliverStore(), pools.Unit)
	assert.Nil(t, err)
	assert.Equal(t, migration.Version(0), v)

	// Within the budget, the same upgrade succeeds.
	_, id, err := Upgrade(context.Background(), cs, runner, migration.RocksDBWeight.Writes(5))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), id.Version)
}

func TestUpgradeFailureIsNotCommitted(t *testing.T) {
	db, cleanup := upgradetest.CommitKVStore(t)
	defer cleanup()

	cs, err := NewCommitStore(db)
	assert.Nil(t, err)
	assert.Nil(t, cs.DeliverStore().Set(scheduler.LegacyAgendaKey([]byte("a")), []byte{}))
	_, err = cs.Commit()
	assert.Nil(t, err)

	runner := migration.NewRunner(Migrations(migration.RocksDBWeight))
	report, id, err := Upgrade(context.Background(), cs, runner, 0)
	assert.IsErr(t, errors.ErrStepFailure, err)
	assert.Equal(t, upgrade.CommitID{}, id)
	assert.Equal(t, scheduler.Unit, report.Failure.Unit)

	info, err := cs.CommitInfo()
	assert.Nil(t, err)
	assert.Equal(t, int64(1), info.Version)
	// The malformed entry is still there and nothing else changed.
	has, err := cs.DeliverStore().Has(scheduler.LegacyAgendaKey([]byte("a")))
	assert.Nil(t, err)
	assert.Equal(t, true, has)
	raw, err := db.Get(migration.VersionKey(scheduler.Unit))
	assert.Nil(t, err)
	assert.Nil(t, raw)
}

func TestVerifyApplicationMigrations(t *testing.T) {
	db, cleanup := upgradetest.CommitKVStore(t)
	defer cleanup()

	cs, err := NewCommitStore(db)
	assert.Nil(t, err)
	legacy := scheduler.LegacyAgendaKey([]byte("job"))
	assert.Nil(t, cs.DeliverStore().Set(legacy, []byte{2, 'r', 'u', 'n'}))
	_, err = cs.Commit()
	assert.Nil(t, err)

	raw, err := scheduler.EncodeScheduled(&scheduler.Scheduled{Priority: 2, Call: []byte("run")})
	assert.Nil(t, err)

	h := migration.NewHarness(Migrations(migration.RocksDBWeight))
	report, err := h.Verify(context.Background(), cs.DeliverStore(),
		migration.ExpectVersion(scheduler.Unit, 1),
		migration.ExpectVersion("bounties", 4),
		migration.ExpectVersion(pools.Unit, 1),
		migration.ExpectAbsent(legacy),
		migration.ExpectValue(scheduler.AgendaKey([]byte("job")), raw),
	)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(report.Units))
	if len(report.StateHash) == 0 {
		t.Fatal("state hash not set")
	}

	// Verification never changes the store.
	has, err := cs.DeliverStore().Has(legacy)
	assert.Nil(t, err)
	assert.Equal(t, true, has)
}
