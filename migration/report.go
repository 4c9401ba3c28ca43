package migration

import (
	"fmt"

	"github.com/iov-one/upgrade/store"
)

// Stage tells at which point of processing a unit the run failed.
type Stage string

const (
	StagePreCheck    Stage = "pre-check"
	StageApply       Stage = "apply"
	StagePostCheck   Stage = "post-check"
	StageStamp       Stage = "stamp"
	StageExpectation Stage = "expectation"
	StageIdempotence Stage = "idempotence"
)

// Report is the structured outcome of a run.
type Report struct {
	// Cost is the sum of the costs of all applied steps.
	Cost Weight
	// Units holds the outcome of every unit that had at least one step
	// applied, in the order they were processed.
	Units []UnitOutcome
	// Changes lists every key written or deleted during the run, sorted
	// by key. Deleted keys have a nil value.
	Changes []store.Model
	// StateHash is the digest of the store after a verification.
	StateHash []byte
	// Failure is set if the run did not complete.
	Failure *Failure
}

// UnitOutcome describes the work done for a single unit.
type UnitOutcome struct {
	Unit string
	From Version
	To   Version
	// Applied are the names of applied steps, in order.
	Applied []string
	Cost    Weight
	// Reads and Writes are the number of store operations measured while
	// applying the steps.
	Reads  uint64
	Writes uint64
}

// Failure describes where a run stopped.
type Failure struct {
	Unit  string
	Step  string
	Stage Stage
	Err   error
}

func (f *Failure) String() string {
	if f.Step == "" {
		return fmt.Sprintf("unit %q %s: %s", f.Unit, f.Stage, f.Err)
	}
	return fmt.Sprintf("unit %q step %q %s: %s", f.Unit, f.Step, f.Stage, f.Err)
}

// Migrated returns the outcome of a unit. False is returned if no step of
// that unit was applied.
func (r *Report) Migrated(unit string) (UnitOutcome, bool) {
	for _, u := range r.Units {
		if u.Unit == unit {
			return u, true
		}
	}
	return UnitOutcome{}, false
}
