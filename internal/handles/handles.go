// Package handles maps Go values to integer tokens that can be stored in
// native memory.
//
// The PROJ shim invokes Go callbacks (log handlers) with an opaque
// pointer-sized value. Go pointers must not be written into native memory,
// so callers register the Go value here and hand the returned token to the
// native side instead. The token is resolved back to the value when the
// callback fires.
package handles

import (
	"sync"
	"sync/atomic"
)

var (
	values sync.Map // uintptr -> any
	nextID atomic.Uintptr
)

// Register stores a Go value and returns its token.
// Token 0 is never returned; the native side treats it as "no value".
// The value stays reachable until Unregister is called with the same token.
func Register(v any) uintptr {
	id := nextID.Add(1)
	values.Store(id, v)
	return id
}

// Lookup resolves a token to the registered value.
// Returns nil if the token is unknown or already unregistered.
func Lookup(id uintptr) any {
	v, ok := values.Load(id)
	if !ok {
		return nil
	}
	return v
}

// Unregister drops a token, allowing the Go value to be garbage collected.
func Unregister(id uintptr) {
	values.Delete(id)
}

// Count returns the number of currently registered tokens.
// Useful for leak checks in tests.
func Count() int {
	n := 0
	values.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
