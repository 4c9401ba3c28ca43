package migration

import (
	"context"

	"github.com/iov-one/upgrade"
)

// Provider is implemented by anything that can be composed into a Set. Both a
// single Step and a whole Set are providers.
type Provider interface {
	Steps() []Step
}

// Step moves a single unit from its source version to the next one.
//
// Apply must be idempotent. If the run fails before the unit is stamped, the
// same step is applied again on the next run.
type Step interface {
	Provider

	// UnitName returns the name of the unit this step upgrades.
	UnitName() string
	// SourceVersion returns the version this step upgrades from. Once
	// applied, the unit is at SourceVersion() + 1.
	SourceVersion() Version
	// AppliesAt returns true if the step can upgrade a unit that is
	// currently at given version.
	AppliesAt(current Version) bool
	// Apply transforms the store and returns the cost of the work done.
	Apply(ctx context.Context, db upgrade.KVStore) (Weight, error)
}

// Checker is an optional interface that a Step can implement to provide
// invariant checks executed around Apply.
type Checker interface {
	// ReadKeys returns all keys that the step reads. Their values are
	// captured in the snapshot passed to PostCheck.
	ReadKeys() [][]byte
	PreCheck(ctx context.Context, db upgrade.ReadOnlyKVStore) error
	PostCheck(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error
	// Enforced returns true if the checks must be executed and are fatal
	// during a production run as well. Otherwise checks are executed
	// only in verification mode.
	Enforced() bool
}

// Named is an optional interface implemented by steps that have a human
// readable description.
type Named interface {
	StepName() string
}

// Definition is the standard Step implementation. Only Unit is required. A
// definition without Migrate function only advances the schema version.
type Definition struct {
	Unit string
	From Version
	Name string
	// Reads lists keys captured in a snapshot before the migration, so
	// that PostCheck can compare the new state with the old one.
	Reads   [][]byte
	Migrate func(ctx context.Context, db upgrade.KVStore) (Weight, error)
	Pre     func(ctx context.Context, db upgrade.ReadOnlyKVStore) error
	Post    func(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error
	// Enforce makes Pre and Post checks fatal in production runs.
	Enforce bool
}

var (
	_ Step    = (*Definition)(nil)
	_ Checker = (*Definition)(nil)
	_ Named   = (*Definition)(nil)
)

// NoModification returns a step that requires no data change. It only
// advances the schema version of the unit, so its cost is zero.
func NoModification(unit string, from Version) *Definition {
	return &Definition{
		Unit: unit,
		From: from,
		Name: "no modification",
	}
}

func (d *Definition) Steps() []Step {
	return []Step{d}
}

func (d *Definition) UnitName() string {
	return d.Unit
}

func (d *Definition) SourceVersion() Version {
	return d.From
}

func (d *Definition) AppliesAt(current Version) bool {
	return current == d.From
}

func (d *Definition) StepName() string {
	if d.Name == "" {
		return "unnamed"
	}
	return d.Name
}

func (d *Definition) Apply(ctx context.Context, db upgrade.KVStore) (Weight, error) {
	if d.Migrate == nil {
		return 0, nil
	}
	return d.Migrate(ctx, db)
}

func (d *Definition) ReadKeys() [][]byte {
	return d.Reads
}

func (d *Definition) PreCheck(ctx context.Context, db upgrade.ReadOnlyKVStore) error {
	if d.Pre == nil {
		return nil
	}
	return d.Pre(ctx, db)
}

func (d *Definition) PostCheck(ctx context.Context, db upgrade.ReadOnlyKVStore, pre *Snapshot) error {
	if d.Post == nil {
		return nil
	}
	return d.Post(ctx, db, pre)
}

func (d *Definition) Enforced() bool {
	return d.Enforce
}

// stepName returns a human readable description of a step.
func stepName(s Step) string {
	if n, ok := s.(Named); ok {
		return n.StepName()
	}
	return "step"
}
