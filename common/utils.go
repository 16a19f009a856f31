package common

import "fmt"

// Assert checks an internal invariant and panics if it is broken.
//
// Assertions are reserved for programming errors: conditions that cannot be
// caused by user input or data shape, only by incorrect plan construction
// inside the engine itself (e.g. preparing a stage twice, or configuring a
// root slot without a field behavior). Data-dependent and configuration
// failures return errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
