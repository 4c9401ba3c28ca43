package migration

import (
	"bytes"
	"context"
	"fmt"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
)

// Harness runs migrations in verification mode. It is meant for dry runs
// only. No method of the harness is used by the production upgrade path.
type Harness struct {
	set    *Set
	runner *Runner
}

// NewHarness returns a harness for given set. Verification mode is always
// enabled.
func NewHarness(set *Set, opts ...Option) *Harness {
	opts = append(opts, WithVerification())
	return &Harness{
		set:    set,
		runner: NewRunner(set, opts...),
	}
}

// PreUpgradeCheck captures the state that pending steps depend on and runs
// the pre-check of the first pending step of every unit. Pre-checks of later
// steps depend on the changes of earlier ones, so they are executed during
// the run.
func (h *Harness) PreUpgradeCheck(ctx context.Context, db upgrade.ReadOnlyKVStore) (*Snapshot, error) {
	var keys [][]byte
	var first []Step
	for _, unit := range h.set.Units() {
		current, err := CurrentVersion(db, unit)
		if err != nil {
			return nil, err
		}
		pending := pendingSteps(h.set, unit, current)
		for _, s := range pending {
			if c, ok := s.(Checker); ok {
				keys = append(keys, c.ReadKeys()...)
			}
		}
		if len(pending) != 0 {
			first = append(first, pending[0])
		}
	}

	snap, err := captureSnapshot(db, h.set.Units(), keys)
	if err != nil {
		return nil, err
	}

	for _, s := range first {
		c, ok := s.(Checker)
		if !ok {
			continue
		}
		if err := c.PreCheck(ctx, db); err != nil {
			return nil, ensureKind(errors.ErrInvariantViolation, err,
				"unit %q step %q pre-check", s.UnitName(), stepName(s))
		}
	}
	return snap, nil
}

// PostUpgradeCheck runs the post-check of the last step that moved each unit
// since the snapshot was taken and then tests all expectations. Post-checks
// of earlier steps describe intermediate states, so they are executed during
// the run. All failed expectations are reported together.
func (h *Harness) PostUpgradeCheck(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot, expect ...Expectation) error {
	if pre == nil {
		return errors.Wrap(errors.ErrEmpty, "snapshot")
	}
	for _, unit := range h.set.Units() {
		from, ok := pre.Version(unit)
		if !ok {
			return errors.Wrapf(errors.ErrInput, "unit %q not in snapshot", unit)
		}
		now, err := CurrentVersion(db, unit)
		if err != nil {
			return err
		}
		if now <= from {
			continue
		}
		for _, s := range h.set.UnitSteps(unit) {
			if s.SourceVersion() != now-1 {
				continue
			}
			c, ok := s.(Checker)
			if !ok {
				break
			}
			if err := c.PostCheck(ctx, db, pre); err != nil {
				return ensureKind(errors.ErrInvariantViolation, err,
					"unit %q step %q post-check", unit, stepName(s))
			}
		}
	}
	return checkExpectations(db, expect)
}

func checkExpectations(db upgrade.ReadOnlyKVStore, expect []Expectation) error {
	var errs error
	for _, e := range expect {
		if err := e.Check(db); err != nil {
			errs = errors.Append(errs, ensureKind(errors.ErrInvariantViolation, err, "expect %s", e))
		}
	}
	return errs
}

// Verify runs a full migration on a cache of the store, that is always
// discarded. Apart of the checks declared by the steps, the given
// expectations are tested and a second run is made, that must be free and
// must not change the state.
func (h *Harness) Verify(ctx context.Context, db upgrade.CacheableKVStore, expect ...Expectation) (*Report, error) {
	cache := db.CacheWrap()
	defer cache.Discard()

	if _, err := h.PreUpgradeCheck(ctx, cache); err != nil {
		report := &Report{Failure: &Failure{Stage: StagePreCheck, Err: err}}
		return report, err
	}

	report, err := h.runner.RunReport(ctx, cache)
	if err != nil {
		return report, err
	}

	// Step post-checks were executed by the runner right after each
	// step was applied.
	if err := checkExpectations(cache, expect); err != nil {
		report.Failure = &Failure{Stage: StageExpectation, Err: err}
		return report, err
	}

	hash, err := StateHash(cache)
	if err != nil {
		return report, errors.Wrap(err, "state hash")
	}
	again, err := h.runner.RunReport(ctx, cache)
	if err != nil {
		report.Failure = again.Failure
		return report, errors.Wrap(err, "second run")
	}
	if again.Cost != 0 || len(again.Units) != 0 {
		err := errors.Wrapf(errors.ErrInvariantViolation,
			"second run is not a no-op: cost %d, %d units migrated", again.Cost, len(again.Units))
		report.Failure = &Failure{Stage: StageIdempotence, Err: err}
		return report, err
	}
	rehash, err := StateHash(cache)
	if err != nil {
		return report, errors.Wrap(err, "state hash")
	}
	if !bytes.Equal(hash, rehash) {
		err := errors.Wrap(errors.ErrInvariantViolation, "second run changed the state")
		report.Failure = &Failure{Stage: StageIdempotence, Err: err}
		return report, err
	}
	report.StateHash = hash
	return report, nil
}

// Expectation is a condition that the store must fulfil after the migration.
type Expectation interface {
	Check(db upgrade.ReadOnlyKVStore) error
	String() string
}

// ExpectValue requires the key to hold exactly the given value.
func ExpectValue(key, want []byte) Expectation {
	return valueExpectation{key: key, want: want}
}

type valueExpectation struct {
	key  []byte
	want []byte
}

func (e valueExpectation) Check(db upgrade.ReadOnlyKVStore) error {
	got, err := db.Get(e.key)
	if err != nil {
		return errors.Wrap(err, "get")
	}
	if got == nil {
		return errors.Wrapf(errors.ErrNotFound, "want %X", e.want)
	}
	if !bytes.Equal(got, e.want) {
		return errors.Wrapf(errors.ErrInvariantViolation, "want %X, got %X", e.want, got)
	}
	return nil
}

func (e valueExpectation) String() string {
	return fmt.Sprintf("value of %q", e.key)
}

// ExpectAbsent requires the key to not exist.
func ExpectAbsent(key []byte) Expectation {
	return absentExpectation{key: key}
}

type absentExpectation struct {
	key []byte
}

func (e absentExpectation) Check(db upgrade.ReadOnlyKVStore) error {
	has, err := db.Has(e.key)
	if err != nil {
		return errors.Wrap(err, "has")
	}
	if has {
		return errors.Wrap(errors.ErrInvariantViolation, "key exists")
	}
	return nil
}

func (e absentExpectation) String() string {
	return fmt.Sprintf("absence of %q", e.key)
}

// ExpectVersion requires the unit to be stamped with exactly the given
// version.
func ExpectVersion(unit string, want Version) Expectation {
	return versionExpectation{unit: unit, want: want}
}

type versionExpectation struct {
	unit string
	want Version
}

func (e versionExpectation) Check(db upgrade.ReadOnlyKVStore) error {
	got, err := CurrentVersion(db, e.unit)
	if err != nil {
		return err
	}
	if got != e.want {
		return errors.Wrapf(errors.ErrInvariantViolation, "want version %d, got %d", e.want, got)
	}
	return nil
}

func (e versionExpectation) String() string {
	return fmt.Sprintf("version of %q", e.unit)
}
