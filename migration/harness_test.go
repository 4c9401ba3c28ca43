package migration

import (
	"bytes"
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/store"
)

var paramKey = []byte("pools:P")

// setParamStep sets the pools parameter P to 10. Its post-check compares the
// parameter with the expected value.
func setParamStep() *Definition {
	return &Definition{
		Unit:  "pools",
		From:  0,
		Name:  "set P",
		Reads: [][]byte{paramKey},
		Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
			return RocksDBWeight.Writes(1), db.Set(paramKey, []byte{10})
		},
		Post: func(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error {
			got, err := db.Get(paramKey)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, []byte{10}) {
				return errors.Wrapf(errors.ErrInvariantViolation, "P is %X", got)
			}
			return nil
		},
	}
}

func TestPoolsExample(t *testing.T) {
	Convey("Given unit pools at version 0 with a single step setting P", t, func() {
		set := MustNewSet(setParamStep())
		db := store.MemStore()
		ctx := context.Background()
		h := NewHarness(set)

		pre, err := h.PreUpgradeCheck(ctx, db)
		So(err, ShouldBeNil)
		v, ok := pre.Version("pools")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 0)

		Convey("Run returns the declared cost and stamps version 1", func() {
			cost, err := NewRunner(set).Run(ctx, db)
			So(err, ShouldBeNil)
			So(cost, ShouldEqual, RocksDBWeight.Writes(1))

			current, err := CurrentVersion(db, "pools")
			So(err, ShouldBeNil)
			So(current, ShouldEqual, 1)

			Convey("Post upgrade check asserting P == 10 succeeds", func() {
				err := h.PostUpgradeCheck(ctx, db, pre,
					ExpectValue(paramKey, []byte{10}),
					ExpectVersion("pools", 1),
				)
				So(err, ShouldBeNil)
			})

			Convey("Post upgrade check with a wrong expectation fails", func() {
				err := h.PostUpgradeCheck(ctx, db, pre,
					ExpectValue(paramKey, []byte{11}),
					ExpectAbsent(paramKey),
					ExpectVersion("pools", 1),
				)
				So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "2 errors occurred")
			})
		})

		Convey("Verify reports the run without modifying the store", func() {
			report, err := h.Verify(ctx, db, ExpectValue(paramKey, []byte{10}))
			So(err, ShouldBeNil)
			So(report.Failure, ShouldBeNil)
			So(report.Cost, ShouldEqual, RocksDBWeight.Writes(1))
			So(report.StateHash, ShouldHaveLength, 32)
			So(report.Changes, ShouldResemble, []store.Model{
				store.Pair([]byte("_sv:pools"), []byte{0, 0, 0, 1}),
				store.Pair(paramKey, []byte{10}),
			})

			has, err := db.Has(paramKey)
			So(err, ShouldBeNil)
			So(has, ShouldBeFalse)
			current, err := CurrentVersion(db, "pools")
			So(err, ShouldBeNil)
			So(current, ShouldEqual, 0)
		})
	})
}

func TestVerificationFatality(t *testing.T) {
	Convey("Given three units where the second one breaks its post-check", t, func() {
		var calls int
		broken := setParamStep()
		broken.Migrate = func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
			return 1, db.Set(paramKey, []byte{99})
		}
		set := MustNewSet(
			writeStep("scheduler", 0, "sched", 1, &calls),
			broken,
			writeStep("bounties", 0, "bounty", 1, &calls),
		)
		db := store.MemStore()
		ctx := context.Background()

		Convey("Verify names the unit and the check that failed", func() {
			report, err := NewHarness(set).Verify(ctx, db)
			So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
			So(report.Failure, ShouldNotBeNil)
			So(report.Failure.Unit, ShouldEqual, "pools")
			So(report.Failure.Step, ShouldEqual, "set P")
			So(report.Failure.Stage, ShouldEqual, StagePostCheck)
			So(err.Error(), ShouldContainSubstring, `unit "pools" step "set P" post-check`)

			Convey("Only the units before the failed one were migrated", func() {
				_, ok := report.Migrated("scheduler")
				So(ok, ShouldBeTrue)
				_, ok = report.Migrated("pools")
				So(ok, ShouldBeFalse)
				_, ok = report.Migrated("bounties")
				So(ok, ShouldBeFalse)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("A production run does not execute checks that are not enforced", func() {
			cost, err := NewRunner(set).Run(ctx, db)
			So(err, ShouldBeNil)
			So(cost, ShouldEqual, 3)
			So(calls, ShouldEqual, 2)
		})
	})
}

func TestHarnessPreUpgradeCheck(t *testing.T) {
	Convey("Given a step with a pre-check", t, func() {
		step := NoModification("pools", 0)
		step.Reads = [][]byte{paramKey}
		step.Pre = func(ctx context.Context, db upgrade.ReadOnlyKVStore) error {
			has, err := db.Has(paramKey)
			if err != nil {
				return err
			}
			if has {
				return errors.Wrap(errors.ErrState, "P already set")
			}
			return nil
		}
		h := NewHarness(MustNewSet(step, NoModification("bounties", 0)))
		db := store.MemStore()
		ctx := context.Background()

		Convey("The snapshot holds all unit versions and declared keys", func() {
			So(SetVersion(db, "bounties", 1), ShouldBeNil)

			snap, err := h.PreUpgradeCheck(ctx, db)
			So(err, ShouldBeNil)
			So(snap.Versions, ShouldResemble, []UnitVersion{
				{Unit: "pools", Version: 0},
				{Unit: "bounties", Version: 1},
			})
			_, present, err := snap.Value(paramKey)
			So(err, ShouldBeNil)
			So(present, ShouldBeFalse)

			_, _, err = snap.Value([]byte("not declared"))
			So(errors.ErrNotFound.Is(err), ShouldBeTrue)
		})

		Convey("A failing pre-check is an invariant violation", func() {
			So(db.Set(paramKey, []byte{1}), ShouldBeNil)
			_, err := h.PreUpgradeCheck(ctx, db)
			So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, `unit "pools"`)

			report, err := h.Verify(ctx, db)
			So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
			So(report.Failure.Stage, ShouldEqual, StagePreCheck)
		})

		Convey("Post upgrade check requires a snapshot of every unit", func() {
			err := h.PostUpgradeCheck(ctx, db, &Snapshot{})
			So(errors.ErrInput.Is(err), ShouldBeTrue)
			err = h.PostUpgradeCheck(ctx, db, nil)
			So(errors.ErrEmpty.Is(err), ShouldBeTrue)
		})
	})
}

func TestVerifyDetectsRepeatedRuns(t *testing.T) {
	Convey("Given a broken step that applies at any version", t, func() {
		var calls int
		step := alwaysStep{writeStep("pools", 0, "a", 5, &calls)}
		h := NewHarness(MustNewSet(step))

		report, err := h.Verify(context.Background(), store.MemStore())
		So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
		So(report.Failure.Stage, ShouldEqual, StageIdempotence)
		So(calls, ShouldEqual, 2)
	})
}

var layoutKey = []byte("u:layout")

// layoutStep writes the layout value and checks after the migration that it
// holds want.
func layoutStep(from Version, name string, value, want []byte) *Definition {
	return &Definition{
		Unit: "u",
		From: from,
		Name: name,
		Migrate: func(ctx context.Context, db upgrade.KVStore) (Weight, error) {
			return RocksDBWeight.Writes(1), db.Set(layoutKey, value)
		},
		Post: func(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error {
			got, err := db.Get(layoutKey)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, want) {
				return errors.Wrapf(errors.ErrInvariantViolation, "layout %s, want %s", got, want)
			}
			return nil
		},
	}
}

func TestMultiStepUnitChecks(t *testing.T) {
	Convey("Given a unit whose second step rewrites what the first one checks", t, func() {
		db := store.MemStore()
		ctx := context.Background()

		Convey("Verify accepts a correct migration", func() {
			set := MustNewSet(
				layoutStep(0, "to v1", []byte("v1"), []byte("v1")),
				layoutStep(1, "to v2", []byte("v2"), []byte("v2")),
			)
			report, err := NewHarness(set).Verify(ctx, db, ExpectValue(layoutKey, []byte("v2")))
			So(err, ShouldBeNil)
			outcome, ok := report.Migrated("u")
			So(ok, ShouldBeTrue)
			So(outcome.Applied, ShouldResemble, []string{"to v1", "to v2"})

			Convey("Post upgrade check after a production run checks the final step only", func() {
				h := NewHarness(set)
				pre, err := h.PreUpgradeCheck(ctx, db)
				So(err, ShouldBeNil)
				_, err = NewRunner(set).Run(ctx, db)
				So(err, ShouldBeNil)
				So(h.PostUpgradeCheck(ctx, db, pre), ShouldBeNil)
			})
		})

		Convey("Verify reports the step whose own check failed", func() {
			set := MustNewSet(
				layoutStep(0, "to v1", []byte("v1"), []byte("v1")),
				layoutStep(1, "to v2", []byte("v3"), []byte("v2")),
			)
			report, err := NewHarness(set).Verify(ctx, db)
			So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
			So(report.Failure.Step, ShouldEqual, "to v2")
			So(report.Failure.Stage, ShouldEqual, StagePostCheck)
		})

		Convey("Post upgrade check runs the check of the last applied step", func() {
			set := MustNewSet(
				layoutStep(0, "to v1", []byte("v1"), []byte("v1")),
				layoutStep(1, "to v2", []byte("v3"), []byte("v2")),
			)
			h := NewHarness(set)
			pre, err := h.PreUpgradeCheck(ctx, db)
			So(err, ShouldBeNil)
			_, err = NewRunner(set).Run(ctx, db)
			So(err, ShouldBeNil)

			err = h.PostUpgradeCheck(ctx, db, pre)
			So(errors.ErrInvariantViolation.Is(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, `unit "u" step "to v2" post-check`)
		})
	})
}
