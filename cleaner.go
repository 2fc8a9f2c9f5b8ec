//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"runtime"

	"go.uber.org/zap"
)

// disposable is cleanup work owned by a wrapper object: it releases the
// wrapper's native resources after the wrapper becomes unreachable.
//
// A disposable must never reference the wrapper it belongs to; doing so
// would keep the wrapper reachable forever and the disposer would never
// run. It may hold the wrapper's sharedPtr, its executor cache and its
// identity-cache entry, since none of those point back at the wrapper.
type disposable interface {
	dispose()
}

// releaseWhenUnreachable arranges for d.dispose() to run once after owner
// becomes unreachable. The runtime runs disposers on a background
// goroutine strictly after the collector has determined unreachability;
// ordering between disposers of different owners is unspecified.
func releaseWhenUnreachable(owner *Object, d disposable) {
	runtime.AddCleanup(owner, runDisposer, d)
}

// runDisposer executes one disposer, containing any panic. A panic escaping
// here would kill the runtime's cleanup goroutine and silently stop every
// future release, which is a resource-leak regression worse than the
// failure being contained.
func runDisposer(d disposable) {
	defer func() {
		if r := recover(); r != nil {
			log().Error("projgo: native resource disposal failed",
				zap.Any("panic", r))
		}
	}()
	d.dispose()
}
