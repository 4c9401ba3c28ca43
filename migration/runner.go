package migration

import (
	"context"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/store"
)

type options struct {
	verify bool
	logger log.Logger
}

// Option configures a Runner or a Harness.
type Option func(*options)

// WithVerification makes all step checks active and fatal.
func WithVerification() Option {
	return func(o *options) {
		o.verify = true
	}
}

// WithLogger sets the logger. By default the logger is taken from the
// context.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Runner upgrades all units of a set to their newest version.
//
// Runner holds no state between runs. Concurrent runs against the same store
// are not supported.
type Runner struct {
	set  *Set
	opts options
}

// NewRunner returns a runner for the given set of steps.
func NewRunner(set *Set, opts ...Option) *Runner {
	r := &Runner{set: set}
	for _, fn := range opts {
		fn(&r.opts)
	}
	return r
}

func (r *Runner) logger(ctx context.Context) log.Logger {
	logger := r.opts.logger
	if logger == nil {
		logger = upgrade.GetLogger(ctx)
	}
	return logger.With("module", "migration")
}

// Run applies all pending steps, unit by unit, in composition order and
// returns their total cost. When a run fails, the cost of the work done
// until the failure is returned together with the error.
//
// Steps of a unit that were applied before a failure are not reverted and the
// unit stamp is not advanced. The next run applies them again.
func (r *Runner) Run(ctx context.Context, db upgrade.KVStore) (Weight, error) {
	report, err := r.run(ctx, db, false)
	return report.Cost, err
}

// RunReport works like Run, but returns a detailed description of the run,
// including all store changes. The report is returned even if the run
// failed.
func (r *Runner) RunReport(ctx context.Context, db upgrade.KVStore) (*Report, error) {
	return r.run(ctx, db, true)
}

func (r *Runner) run(ctx context.Context, db upgrade.KVStore, record bool) (*Report, error) {
	report := &Report{}
	var rec store.RecordingStore
	if record {
		rec = store.NewRecordingStore(db)
		db = rec
	}
	logger := r.logger(ctx)

	var err error
	for _, unit := range r.set.Units() {
		if report.Failure = r.runUnit(ctx, logger, db, unit, report); report.Failure != nil {
			err = report.Failure.Err
			logger.Error("migration failed", "unit", unit, "step", report.Failure.Step,
				"stage", report.Failure.Stage, "err", err)
			break
		}
	}
	if rec != nil {
		report.Changes = rec.Changes()
	}
	return report, err
}

func (r *Runner) runUnit(ctx context.Context, logger log.Logger, db upgrade.KVStore, unit string, report *Report) *Failure {
	current, err := CurrentVersion(db, unit)
	if err != nil {
		return &Failure{Unit: unit, Stage: StageStamp, Err: err}
	}
	pending := pendingSteps(r.set, unit, current)
	if len(pending) == 0 {
		if latest := r.set.Latest(unit); current > latest {
			logger.Debug("unit ahead of known steps", "unit", unit, "version", current, "latest", latest)
		} else {
			logger.Debug("unit up to date", "unit", unit, "version", current)
		}
		return nil
	}

	outcome := UnitOutcome{Unit: unit, From: current, To: current}
	for _, step := range pending {
		name := stepName(step)
		m := &meteredStore{KVStore: db}
		cost, fail := r.applyStep(ctx, m, step)
		outcome.Reads += m.reads
		outcome.Writes += m.writes
		outcome.Cost = outcome.Cost.Add(cost)
		report.Cost = report.Cost.Add(cost)
		if fail != nil {
			return fail
		}
		outcome.Applied = append(outcome.Applied, name)
		outcome.To++
		logger.Info("migration step applied", "unit", unit, "step", name,
			"from", step.SourceVersion(), "cost", uint64(cost))
	}

	if err := SetVersion(db, unit, outcome.To); err != nil {
		return &Failure{Unit: unit, Stage: StageStamp, Err: err}
	}
	report.Units = append(report.Units, outcome)
	logger.Info("unit migrated", "unit", unit, "from", outcome.From, "to", outcome.To)
	return nil
}

// applyStep runs a single step together with its checks, if they are active.
// The returned cost is zero unless Apply succeeded.
func (r *Runner) applyStep(ctx context.Context, m *meteredStore, step Step) (Weight, *Failure) {
	unit, name := step.UnitName(), stepName(step)
	fail := func(stage Stage, err error) *Failure {
		return &Failure{Unit: unit, Step: name, Stage: stage, Err: err}
	}

	checker, ok := step.(Checker)
	checks := ok && (r.opts.verify || checker.Enforced())

	var pre *Snapshot
	if checks {
		// Checks and the snapshot are read directly from the store so
		// that they are not part of the step cost.
		snap, err := captureSnapshot(m.KVStore, []string{unit}, checker.ReadKeys())
		if err != nil {
			return 0, fail(StagePreCheck, err)
		}
		pre = snap
		if err := checker.PreCheck(ctx, m.KVStore); err != nil {
			return 0, fail(StagePreCheck, ensureKind(errors.ErrInvariantViolation, err,
				"unit %q step %q pre-check", unit, name))
		}
	}

	cost, err := safeApply(ctx, step, m)
	if err != nil {
		return 0, fail(StageApply, classify(err, m, unit, name))
	}

	if checks {
		if err := checker.PostCheck(ctx, m.KVStore, pre); err != nil {
			return cost, fail(StagePostCheck, ensureKind(errors.ErrInvariantViolation, err,
				"unit %q step %q post-check", unit, name))
		}
	}
	return cost, nil
}

func safeApply(ctx context.Context, step Step, db upgrade.KVStore) (w Weight, err error) {
	defer errors.Recover(&err)
	return step.Apply(ctx, db)
}

// classify returns the apply error as one of the migration error kinds.
func classify(err error, m *meteredStore, unit, step string) error {
	if m.writeErr != nil {
		return ensureKind(errors.ErrWriteFailure, err, "unit %q step %q", unit, step)
	}
	for _, kind := range []*errors.Error{
		errors.ErrWriteFailure,
		errors.ErrNonMonotonicVersion,
		errors.ErrInvariantViolation,
	} {
		if kind.Is(err) {
			return errors.Wrapf(err, "unit %q step %q", unit, step)
		}
	}
	return ensureKind(errors.ErrStepFailure, err, "unit %q step %q", unit, step)
}

// ensureKind wraps err with the description. If err is not of given kind
// already, its message is attached to a new error of that kind.
func ensureKind(kind *errors.Error, err error, format string, args ...interface{}) error {
	if kind.Is(err) {
		return errors.Wrapf(err, format, args...)
	}
	args = append(args, err)
	return errors.Wrapf(kind, format+": %s", args...)
}

// pendingSteps returns the steps of a unit that must be applied to bring it
// from the current version to the newest one. Steps are selected one version
// at a time, stopping at the first version with no step.
func pendingSteps(set *Set, unit string, current Version) []Step {
	var res []Step
	next := current
	for _, s := range set.UnitSteps(unit) {
		if !s.AppliesAt(next) {
			if len(res) == 0 {
				continue
			}
			break
		}
		res = append(res, s)
		next++
	}
	return res
}

// UnitPlan describes what a run would do with a unit.
type UnitPlan struct {
	Unit    string
	Current Version
	// Target is the version the unit will be at after the run.
	Target Version
	// Pending are the names of the steps to apply, in order.
	Pending []string
	// Ahead is set when the stored version is higher than any version
	// known to the set, for example after a software downgrade. Such a
	// unit is never modified.
	Ahead bool
}

// Plan returns the plan for every unit, in composition order, without
// modifying the store.
func (r *Runner) Plan(ctx context.Context, db upgrade.ReadOnlyKVStore) ([]UnitPlan, error) {
	plans := make([]UnitPlan, 0, len(r.set.Units()))
	for _, unit := range r.set.Units() {
		current, err := CurrentVersion(db, unit)
		if err != nil {
			return nil, err
		}
		p := UnitPlan{
			Unit:    unit,
			Current: current,
			Target:  current,
			Ahead:   current > r.set.Latest(unit),
		}
		for _, s := range pendingSteps(r.set, unit, current) {
			p.Pending = append(p.Pending, stepName(s))
			p.Target++
		}
		plans = append(plans, p)
	}
	return plans, nil
}
