package errors

import (
	"fmt"
	"strings"
)

// Append clubs together all provided errors. Nil values are ignored.
//
// If all given errors are nil, nil is returned. If exactly one error is
// not nil, that error is returned as it is. Otherwise a multi error
// containing all of them is returned. Nested multi errors are flattened.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if isNilErr(e) {
			continue
		}
		if m, ok := e.(multiErr); ok {
			res = append(res, m...)
		} else {
			res = append(res, e)
		}
	}
	switch len(res) {
	case 0:
		return nil
	case 1:
		return res[0]
	default:
		return res
	}
}

// multiErr is a collection of errors that does not support wrapping a single
// cause. Use the Is method of a root error to test if any of the collected
// errors is of a given kind.
type multiErr []error

var (
	_ error    = multiErr(nil)
	_ unpacker = multiErr(nil)
)

func (errs multiErr) Error() string {
	points := make([]string, len(errs))
	for i, err := range errs {
		points[i] = fmt.Sprintf("* %s", err)
	}
	return fmt.Sprintf("%d errors occurred:\n\t%s\n", len(errs), strings.Join(points, "\n\t"))
}

// Unpack implements unpacker interface.
func (errs multiErr) Unpack() []error {
	return errs
}
