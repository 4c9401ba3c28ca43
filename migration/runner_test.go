package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/store"
	"github.com/iov-one/upgrade/upgradetest"
	"github.com/iov-one/upgrade/upgradetest/assert"
)

func assertVersion(t testing.TB, db upgrade.ReadOnlyKVStore, unit string, want Version) {
	t.Helper()
	got, err := CurrentVersion(db, unit)
	assert.Nil(t, err)
	if got != want {
		t.Fatalf("want %q at version %d, got %d", unit, want, got)
	}
}

func TestRunAppliesEveryStepOnce(t *testing.T) {
	var first, second int
	set := MustNewSet(
		writeStep("pools", 0, "a", 10, &first),
		writeStep("pools", 1, "b", 32, &second),
	)
	runner := NewRunner(set, WithLogger(log.TestingLogger()))
	db := store.MemStore()
	ctx := context.Background()

	cost, err := runner.Run(ctx, db)
	assert.Nil(t, err)
	assert.Equal(t, Weight(42), cost)
	assertVersion(t, db, "pools", 2)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	// A second run is free and changes nothing.
	cost, err = runner.Run(ctx, db)
	assert.Nil(t, err)
	assert.Equal(t, Weight(0), cost)
	assertVersion(t, db, "pools", 2)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestRunIsMonotonic(t *testing.T) {
	var calls int
	db := store.MemStore()
	ctx := context.Background()

	// Every run is done with a set that knows one more version, as if a
	// new software release was deployed each time.
	steps := []Provider{}
	for i := 0; i < 4; i++ {
		steps = append(steps, writeStep("pools", Version(i), "k", 1, &calls))
		cost, err := NewRunner(MustNewSet(steps...)).Run(ctx, db)
		assert.Nil(t, err)
		assert.Equal(t, Weight(1), cost)
		assertVersion(t, db, "pools", Version(i+1))
	}
	assert.Equal(t, 4, calls)
}

func TestRunLeavesUnitsWithoutStepsUntouched(t *testing.T) {
	var calls int
	set := MustNewSet(writeStep("pools", 0, "a", 1, &calls))
	db := store.MemStore()

	report, err := NewRunner(set).RunReport(context.Background(), db)
	assert.Nil(t, err)

	has, err := db.Has(VersionKey("bounties"))
	assert.Nil(t, err)
	assert.Equal(t, false, has)
	_, ok := report.Migrated("bounties")
	assert.Equal(t, false, ok)
}

func TestRunIgnoresUnitsAheadOfKnownSteps(t *testing.T) {
	var calls int
	set := MustNewSet(
		writeStep("pools", 0, "a", 1, &calls),
		writeStep("pools", 1, "b", 1, &calls),
		writeStep("pools", 2, "c", 1, &calls),
	)
	db := store.MemStore()
	assert.Nil(t, SetVersion(db, "pools", 5))

	cost, err := NewRunner(set).Run(context.Background(), db)
	assert.Nil(t, err)
	assert.Equal(t, Weight(0), cost)
	assert.Equal(t, 0, calls)
	assertVersion(t, db, "pools", 5)

	plans, err := NewRunner(set).Plan(context.Background(), db)
	assert.Nil(t, err)
	assert.Equal(t, []UnitPlan{
		{Unit: "pools", Current: 5, Target: 5, Ahead: true},
	}, plans)
}

func TestRunContinuesFromStoredVersion(t *testing.T) {
	var calls int
	set := MustNewSet(
		writeStep("pools", 0, "a", 1, &calls),
		writeStep("pools", 1, "b", 2, &calls),
		writeStep("pools", 2, "c", 4, &calls),
	)
	db := store.MemStore()
	assert.Nil(t, SetVersion(db, "pools", 1))

	plans, err := NewRunner(set).Plan(context.Background(), db)
	assert.Nil(t, err)
	assert.Equal(t, []UnitPlan{
		{Unit: "pools", Current: 1, Target: 3, Pending: []string{"write b", "write c"}},
	}, plans)

	cost, err := NewRunner(set).Run(context.Background(), db)
	assert.Nil(t, err)
	assert.Equal(t, Weight(6), cost)
	assert.Equal(t, 2, calls)
	assertVersion(t, db, "pools", 3)

	has, err := db.Has([]byte("a"))
	assert.Nil(t, err)
	assert.Equal(t, false, has)
}

func TestRunRetriesAfterCrash(t *testing.T) {
	cases := map[string]struct {
		// allowed is the number of writes that succeed before the
		// store starts failing. Each step does a single write and the
		// stamp is the last write.
		allowed   int
		wantStage Stage
	}{
		"crash after the first step": {
			allowed:   1,
			wantStage: StageApply,
		},
		"crash before the stamp is written": {
			allowed:   2,
			wantStage: StageStamp,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var first, second int
			set := MustNewSet(
				writeStep("pools", 0, "a", 1, &first),
				writeStep("pools", 1, "b", 1, &second),
			)
			db := store.MemStore()
			ctx := context.Background()

			failing := upgradetest.NewFailingStore(db, tc.allowed)
			report, err := NewRunner(set).RunReport(ctx, failing)
			assert.IsErr(t, errors.ErrWriteFailure, err)
			assert.Equal(t, tc.wantStage, report.Failure.Stage)
			assertVersion(t, db, "pools", 0)

			cost, err := NewRunner(set).Run(ctx, db)
			assert.Nil(t, err)
			assert.Equal(t, Weight(2), cost)
			assertVersion(t, db, "pools", 2)
			assert.Equal(t, 2, first)

			for _, key := range []string{"a", "b"} {
				value, err := db.Get([]byte(key))
				assert.Nil(t, err)
				assert.Equal(t, []byte("done"), value)
			}
		})
	}
}

func TestRunErrorClassification(t *testing.T) {
	cases := map[string]struct {
		step    Step
		db      func(upgrade.KVStore) upgrade.KVStore
		wantErr *errors.Error
	}{
		"malformed data": {
			step:    failStep("pools", 0, errors.Wrap(errors.ErrInput, "malformed entry")),
			wantErr: errors.ErrStepFailure,
		},
		"plain error": {
			step:    failStep("pools", 0, errors.ErrNotFound),
			wantErr: errors.ErrStepFailure,
		},
		"panic": {
			step: &Definition{
				Unit: "pools",
				Migrate: func(context.Context, upgrade.KVStore) (Weight, error) {
					panic("boom")
				},
			},
			wantErr: errors.ErrStepFailure,
		},
		"store write failure": {
			step: writeStep("pools", 0, "a", 1, new(int)),
			db: func(db upgrade.KVStore) upgrade.KVStore {
				return upgradetest.NewFailingStore(db, 0)
			},
			wantErr: errors.ErrWriteFailure,
		},
		"store write failure through a batch": {
			step: &Definition{
				Unit: "pools",
				Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
					b := db.NewBatch()
					if err := b.Set([]byte("a"), []byte("1")); err != nil {
						return 0, err
					}
					return 1, b.Write()
				},
			},
			db: func(db upgrade.KVStore) upgrade.KVStore {
				return upgradetest.NewFailingStore(db, 0)
			},
			wantErr: errors.ErrWriteFailure,
		},
		"step setting a stamp backwards": {
			step: &Definition{
				Unit: "pools",
				Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
					return 0, SetVersion(db, "pools", 0)
				},
			},
			wantErr: errors.ErrNonMonotonicVersion,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var db upgrade.KVStore = store.MemStore()
			if tc.db != nil {
				db = tc.db(db)
			}
			report, err := NewRunner(MustNewSet(tc.step)).RunReport(context.Background(), db)
			assert.IsErr(t, tc.wantErr, err)
			assert.Equal(t, StageApply, report.Failure.Stage)
			assert.Equal(t, "pools", report.Failure.Unit)
			if !strings.Contains(err.Error(), `unit "pools"`) {
				t.Fatalf("error does not name the unit: %s", err)
			}
			assertVersion(t, db, "pools", 0)
		})
	}
}

func TestRunStopsAtFirstFailedUnit(t *testing.T) {
	var calls int
	set := MustNewSet(
		writeStep("scheduler", 0, "a", 1, &calls),
		failStep("bounties", 0, errors.ErrInput),
		writeStep("pools", 0, "b", 1, &calls),
	)
	db := store.MemStore()

	cost, err := NewRunner(set).Run(context.Background(), db)
	assert.IsErr(t, errors.ErrStepFailure, err)
	assert.Equal(t, Weight(1), cost)
	assert.Equal(t, 1, calls)
	assertVersion(t, db, "scheduler", 1)
	assertVersion(t, db, "bounties", 0)
	assertVersion(t, db, "pools", 0)
}

func TestRunChecks(t *testing.T) {
	violation := errors.Wrap(errors.ErrInput, "parameter mismatch")

	cases := map[string]struct {
		enforce    bool
		verify     bool
		pre        error
		post       error
		wantErr    *errors.Error
		wantStage  Stage
		wantChecks int
	}{
		"checks are skipped in production": {
			pre:        violation,
			post:       violation,
			wantChecks: 0,
		},
		"enforced checks pass in production": {
			enforce:    true,
			wantChecks: 2,
		},
		"enforced pre-check fails in production": {
			enforce:    true,
			pre:        violation,
			wantErr:    errors.ErrInvariantViolation,
			wantStage:  StagePreCheck,
			wantChecks: 1,
		},
		"enforced post-check fails in production": {
			enforce:    true,
			post:       violation,
			wantErr:    errors.ErrInvariantViolation,
			wantStage:  StagePostCheck,
			wantChecks: 2,
		},
		"verification runs all checks": {
			verify:     true,
			wantChecks: 2,
		},
		"post-check is fatal in verification": {
			verify:     true,
			post:       violation,
			wantErr:    errors.ErrInvariantViolation,
			wantStage:  StagePostCheck,
			wantChecks: 2,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var checks int
			step := &Definition{
				Unit:  "pools",
				Reads: [][]byte{[]byte("pools:MaxPools")},
				Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
					return 1, db.Set([]byte("pools:MaxPools"), []byte{16})
				},
				Pre: func(context.Context, upgrade.ReadOnlyKVStore) error {
					checks++
					return tc.pre
				},
				Post: func(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error {
					checks++
					_, present, err := pre.Value([]byte("pools:MaxPools"))
					assert.Nil(t, err)
					assert.Equal(t, false, present)
					v, ok := pre.Version("pools")
					assert.Equal(t, true, ok)
					assert.Equal(t, Version(0), v)
					return tc.post
				},
				Enforce: tc.enforce,
			}
			var opts []Option
			if tc.verify {
				opts = append(opts, WithVerification())
			}
			db := store.MemStore()
			report, err := NewRunner(MustNewSet(step), opts...).RunReport(context.Background(), db)
			assert.IsErr(t, tc.wantErr, err)
			assert.Equal(t, tc.wantChecks, checks)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantStage, report.Failure.Stage)
				assertVersion(t, db, "pools", 0)
			} else {
				assertVersion(t, db, "pools", 1)
			}
		})
	}
}

func TestRunReport(t *testing.T) {
	set := MustNewSet(
		NoModification("bounties", 0),
		&Definition{
			Unit: "pools",
			Name: "move",
			Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
				old, err := db.Get([]byte("old"))
				if err != nil {
					return 0, err
				}
				if err := db.Set([]byte("new"), old); err != nil {
					return 0, err
				}
				return RocksDBWeight.ReadsWrites(1, 2), db.Delete([]byte("old"))
			},
		},
	)
	db := store.MemStore()
	assert.Nil(t, db.Set([]byte("old"), []byte("value")))

	report, err := NewRunner(set).RunReport(context.Background(), db)
	assert.Nil(t, err)
	assert.Equal(t, RocksDBWeight.ReadsWrites(1, 2), report.Cost)
	assert.Nil(t, report.Failure)

	pools, ok := report.Migrated("pools")
	assert.Equal(t, true, ok)
	assert.Equal(t, UnitOutcome{
		Unit:    "pools",
		From:    0,
		To:      1,
		Applied: []string{"move"},
		Cost:    RocksDBWeight.ReadsWrites(1, 2),
		Reads:   1,
		Writes:  2,
	}, pools)

	bounties, ok := report.Migrated("bounties")
	assert.Equal(t, true, ok)
	assert.Equal(t, Weight(0), bounties.Cost)

	assert.Equal(t, []store.Model{
		store.Pair([]byte("_sv:bounties"), []byte{0, 0, 0, 1}),
		store.Pair([]byte("_sv:pools"), []byte{0, 0, 0, 1}),
		store.Pair([]byte("new"), []byte("value")),
		store.Pair([]byte("old"), nil),
	}, report.Changes)
}

func TestRunUsesContextLogger(t *testing.T) {
	set := MustNewSet(NoModification("pools", 0))
	ctx := upgrade.WithLogger(context.Background(), log.TestingLogger())

	_, err := NewRunner(set).Run(ctx, store.MemStore())
	assert.Nil(t, err)
}
