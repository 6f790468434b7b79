// Package errors classifies run-level failures for the sync job. The only
// distinction the top-level handler cares about is fatal versus not: a fatal
// error aborts the run and maps to an HTTP 500, everything else is logged
// and the run continues in a degraded or skip-and-continue mode.
package errors

import (
	"errors"
	"fmt"
)

// FatalError wraps an error that must abort the entire run. The single
// producer is the symbol universe's mandatory candidates query.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

// Unwrap supports errors.Is and errors.As chains.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks err as run-aborting. A nil err stays nil and an already-fatal
// err is returned unchanged.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return &FatalError{Err: err}
}

// Fatalf formats a run-aborting error. The format string supports %w.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether any error in the chain aborts the run.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
