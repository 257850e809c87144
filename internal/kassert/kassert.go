// Package kassert provides the panic-based invariant checks used across the
// scheduler core. Every reachable state is expected to satisfy these
// invariants; a failure here means a caller violated the core's contract,
// not a recoverable runtime condition.
package kassert

import "fmt"

// Assert panics with msg if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic("kassert: " + msg)
	}
}

// Invariant panics with a formatted message if cond is false.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic("kassert: " + fmt.Sprintf(format, args...))
	}
}

// Unreachable panics unconditionally; use at the bottom of an exhaustive
// switch over a sum type (e.g. an invalid fault kind at MR setup).
func Unreachable(format string, args ...any) {
	panic("kassert: unreachable: " + fmt.Sprintf(format, args...))
}
