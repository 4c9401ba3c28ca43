package migration

import (
	"fmt"
	"reflect"

	"github.com/iov-one/upgrade/errors"
)

// Set is an immutable, validated and flat sequence of steps. The order of
// steps is the order in which they were declared.
type Set struct {
	steps  []Step
	units  []string
	byUnit map[string][]Step
}

var _ Provider = (*Set)(nil)

// NewSet composes a set from given providers. Nested sets are flattened.
//
// Steps of a single unit must be declared together, one after another, each
// upgrading the unit by one version from where the previous one ended.
func NewSet(providers ...Provider) (*Set, error) {
	s := &Set{
		byUnit: make(map[string][]Step),
	}
	for i, p := range providers {
		if isNil(p) {
			return nil, errors.Wrapf(errors.ErrInput, "provider %d is nil", i)
		}
		for _, step := range p.Steps() {
			if err := s.add(step); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// MustNewSet works like NewSet but panics on error. Use it to declare
// package level sets.
func MustNewSet(providers ...Provider) *Set {
	s, err := NewSet(providers...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) add(step Step) error {
	if isNil(step) {
		return errors.Wrapf(errors.ErrInput, "nil step at position %d", len(s.steps))
	}
	unit := step.UnitName()
	if err := validateUnitName(unit); err != nil {
		return errors.Wrapf(err, "step at position %d", len(s.steps))
	}
	if step.SourceVersion() == maxVersion {
		return errors.Wrapf(errors.ErrOverflow,
			"unit %q step from version %d cannot be applied", unit, step.SourceVersion())
	}

	prev := s.byUnit[unit]
	switch {
	case len(prev) == 0:
		s.units = append(s.units, unit)
	case s.units[len(s.units)-1] != unit:
		return errors.Wrapf(errors.ErrInput,
			"steps of unit %q must be declared together, got %s after %s",
			unit, describe(step), describe(s.steps[len(s.steps)-1]))
	default:
		last := prev[len(prev)-1].SourceVersion()
		if step.SourceVersion() <= last {
			return errors.Wrapf(errors.ErrDuplicate,
				"unit %q already has a step for version %d", unit, step.SourceVersion())
		}
		if step.SourceVersion() != last+1 {
			return errors.Wrapf(errors.ErrInput,
				"unit %q steps must be sequential, got %d after %d", unit, step.SourceVersion(), last)
		}
	}

	s.steps = append(s.steps, step)
	s.byUnit[unit] = append(prev, step)
	return nil
}

// Steps returns all steps in composition order.
func (s *Set) Steps() []Step {
	if s == nil {
		return nil
	}
	res := make([]Step, len(s.steps))
	copy(res, s.steps)
	return res
}

// Units returns all unit names in the order of their first appearance.
func (s *Set) Units() []string {
	res := make([]string, len(s.units))
	copy(res, s.units)
	return res
}

// UnitSteps returns all steps of a given unit in ascending version order.
func (s *Set) UnitSteps(unit string) []Step {
	steps := s.byUnit[unit]
	res := make([]Step, len(steps))
	copy(res, steps)
	return res
}

// Latest returns the version a unit is at after all its steps are applied.
// Zero is returned for a unit that has no steps.
func (s *Set) Latest(unit string) Version {
	steps := s.byUnit[unit]
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].SourceVersion() + 1
}

// Describe returns a human readable description of every step, in
// composition order.
func (s *Set) Describe() []string {
	res := make([]string, len(s.steps))
	for i, step := range s.steps {
		res[i] = describe(step)
	}
	return res
}

func describe(s Step) string {
	return fmt.Sprintf("%s %d->%d %s", s.UnitName(), s.SourceVersion(), s.SourceVersion()+1, stepName(s))
}

// isNil returns true for nil and for an interface holding a nil pointer.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
