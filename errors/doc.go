/*
Package errors implements custom error interfaces for the upgrade module.

The idea is to reuse as many errors from this package as possible and define
custom package errors when absolutely necessary. It is best to define a new
error here if you feel it's going to be somewhat package-agnostic.

All migration failures are categorized by one of four root errors:
ErrWriteFailure, ErrNonMonotonicVersion, ErrInvariantViolation and
ErrStepFailure. A caller can always tell them apart using the Is method:

	if errors.ErrInvariantViolation.Is(err) {
		// ...
	}

If you want to register a custom error - use Register(code, description).
For reusing errors - use Errxxx.New and Errxxx.Newf.

There is also support for stacktraces. Please ensure you create the custom
error using ErrXyz.New("...") or errors.Wrap(err, "...") at the point of
creation to ensure we attach a stacktrace. If you wrap multiple times, we only
record the first wrap with the stacktrace.

Once you have an error, you can use `fmt.Printf/Sprintf` to get more context
for the error
	%s is just the error message
	%+v is the full stack trace
	%v appends a compressed [filename:line] where the error was created
*/
package errors
