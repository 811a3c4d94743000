// Package debugassert holds checks that spec.md §7 classifies as
// "debug-build only": owner-hash verification on section moves (error kind
// 5) and builder-slice aliasing (error kind 10). They panic instead of
// returning an error because both indicate a programming mistake in this
// process, never a condition a caller can recover from.
//
// The checks compile out of release builds behind the "debugassert" build
// tag so the hot insert/update/delete paths pay nothing for them by
// default; enable with `go build -tags debugassert` or in tests.
package debugassert

// Enabled reports whether debug assertions are compiled in. Tests that want
// to assert a particular panic fires should skip when this is false.
const Enabled = enabled
