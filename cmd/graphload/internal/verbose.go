package internal

import "sync/atomic"

// verbose tracks whether --verbose was set, readable from the panic handler
// before cobra has parsed anything.
var verbose atomic.Bool

// SetVerbose records the verbose flag state.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// IsVerbose reports whether verbose output is enabled.
func IsVerbose() bool {
	return verbose.Load()
}
