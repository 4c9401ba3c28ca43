// Package assert provides the small set of test assertions used across the
// upgrade packages. Every helper stops the test on the first failure.
package assert

import (
	"bytes"
	"reflect"

	"github.com/iov-one/upgrade/errors"
)

// Tester is the minimal subset of testing.TB the helpers depend on.
type Tester interface {
	Helper()
	Logf(string, ...interface{})
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

// Nil fails the test if given value is not nil.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if !isNil(value) {
		// %+v prints the stack trace of errors that carry one.
		t.Fatalf("want a nil value, got %+v", value)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// Equal fails the test if two values are not deeply equal.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("values not equal \nwant %T %v\n got %T %v", want, want, got, got)
	}
}

// EqualBytes fails the test if two byte slices differ. Nil and empty slices
// are considered equal, which is not true for Equal.
func EqualBytes(t Tester, want, got []byte) {
	t.Helper()
	if !bytes.Equal(want, got) {
		t.Fatalf("bytes not equal \nwant %X\n got %X", want, got)
	}
}

// Panics will run given function and recover any panic. It will fail the test
// if given function call did not panic.
func Panics(t Tester, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	fn()
}

// FieldError ensures that given error contains exactly one field error for
// the given name and that it is of the wanted kind.
// Use nil as want to ensure that there is no error for that field.
func FieldError(t Tester, err error, fieldName string, want *errors.Error) {
	t.Helper()

	errs := errors.FieldErrors(err, fieldName)
	if want == nil {
		if len(errs) == 0 {
			return
		}
		for i, e := range errs {
			t.Logf("\terror %d: %q", i+1, e)
		}
		t.Fatalf("expected no %q field error, got %d", fieldName, len(errs))
		return
	}

	switch len(errs) {
	case 0:
		t.Fatalf("no %q field error found", fieldName)
	case 1:
		if !want.Is(errs[0]) {
			t.Fatalf("unexpected %q field error: %+v", fieldName, errs[0])
		}
	default:
		for i, e := range errs {
			t.Logf("\terror %d: %q", i+1, e)
		}
		t.Fatalf("want one %q field error, got %d", fieldName, len(errs))
	}
}

// IsErr checks that got is of the same kind as want and fails the test with
// the full error description if not.
func IsErr(t Tester, want, got error) {
	t.Helper()

	if want == got {
		return
	}

	type comparator interface {
		Is(error) bool
	}
	if c, ok := want.(comparator); ok && c.Is(got) {
		return
	}

	t.Fatalf("want %q, got %+v", want, got)
}
