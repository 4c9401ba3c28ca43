package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field wraps err with the name of the value it is about, for example a
// configuration attribute or a stored parameter. Nil is returned for a nil
// err. The description is optional and formatted with args.
//
// Nested values use dot notation (Weight.Read) and list elements their
// index (Expect.2).
func Field(name string, err error, description string, args ...interface{}) error {
	if isNilErr(err) {
		return nil
	}
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}
	if len(args) > 0 {
		description = fmt.Sprintf(description, args...)
	}
	return &fieldError{name: name, desc: description, parent: err}
}

// AppendField adds a field error for name to errs. Nothing is added if err
// is nil.
func AppendField(errs error, name string, err error) error {
	return Append(errs, Field(name, err, ""))
}

type fieldError struct {
	name   string
	desc   string
	parent error
}

func (e *fieldError) Error() string {
	if e.desc == "" {
		return fmt.Sprintf("field %q: %s", e.name, e.parent)
	}
	return fmt.Sprintf("field %q: %s: %s", e.name, e.desc, e.parent)
}

func (e *fieldError) Cause() error {
	return e.parent
}

// FieldErrors returns all errors created for the given field name, in the
// order they were appended. Field errors wrapped by a matching one are not
// returned separately.
func FieldErrors(err error, name string) []error {
	var res []error
	walkFields(err, func(f *fieldError) bool {
		if f.name != name {
			return true
		}
		res = append(res, f)
		return false
	})
	return res
}

// walkFields calls visit for every field error found in the tree of err.
// Children of a field error are visited only if visit returns true.
func walkFields(err error, visit func(*fieldError) bool) {
	for !isNilErr(err) {
		if f, ok := err.(*fieldError); ok && !visit(f) {
			return
		}
		if u, ok := err.(unpacker); ok {
			for _, e := range u.Unpack() {
				walkFields(e, visit)
			}
			return
		}
		c, ok := err.(causer)
		if !ok {
			return
		}
		err = c.Cause()
	}
}
