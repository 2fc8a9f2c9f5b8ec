//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/osgeo/projgo/internal/capi"
)

// Transform executors are expensive to compile relative to running one
// transform, and their native state is mutable, so each executor may be
// used by only one goroutine at a time. Every coordinate operation keeps a
// small cache of idle executors; goroutines beyond the cache capacity pay
// the construction cost instead of blocking, so the capacity is the
// expected number of goroutines sharing one operation, not a limit on them.
var (
	transformCacheMu  sync.Mutex
	transformCacheMax = 4
)

// SetMaxTransformCache sets how many idle transform executors each
// coordinate operation retains, clamped to [1, 16]. The simple slot scan
// does not scale past a small capacity; this caps cached executors, never
// concurrency. Affects operations created after the call.
func SetMaxTransformCache(n int) {
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	transformCacheMu.Lock()
	transformCacheMax = n
	transformCacheMu.Unlock()
}

func transformCacheCapacity() int {
	transformCacheMu.Lock()
	defer transformCacheMu.Unlock()
	return transformCacheMax
}

// transformCache is the per-operation pool of idle transform executors.
// The slot array is fixed at construction; a zero slot is empty. All
// access goes through mu.
type transformCache struct {
	mu    sync.Mutex
	slots []uintptr
}

func newTransformCache(capacity int) *transformCache {
	return &transformCache{slots: make([]uintptr, capacity)}
}

// acquire returns an idle executor rebound to ctx, or compiles a new one
// when every slot is empty. The returned executor is owned by the calling
// goroutine until release.
func (tc *transformCache) acquire(op *sharedPtr, c *Context) (uintptr, error) {
	tc.mu.Lock()
	for i := len(tc.slots); i > 0; {
		i--
		if tr := tc.slots[i]; tr != 0 {
			tc.slots[i] = 0
			tc.mu.Unlock()
			capi.TransformAssign(tr, c.ptr)
			return tr, nil
		}
	}
	tc.mu.Unlock()

	tr := capi.TransformCreate(op.ptr, c.ptr)
	if tr == 0 {
		return 0, allocationOrContextError(c.ptr, "create_transform_executor")
	}
	return tr, nil
}

// release detaches the executor from its context and stores it in a free
// slot. With all slots occupied the executor is destroyed immediately: the
// cached count never exceeds the slot capacity.
func (tc *transformCache) release(tr uintptr) {
	capi.TransformAssign(tr, 0)
	tc.mu.Lock()
	for i := len(tc.slots); i > 0; {
		i--
		if tc.slots[i] == 0 {
			tc.slots[i] = tr
			tc.mu.Unlock()
			return
		}
	}
	tc.mu.Unlock()
	capi.TransformDestroy(tr)
}

// destroyAll destroys every cached executor. Called by the operation's
// disposer; executors still checked out at that point cannot exist, since
// a checked-out executor implies a live reference to the operation.
func (tc *transformCache) destroyAll() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for i, tr := range tc.slots {
		if tr != 0 {
			tc.slots[i] = 0
			capi.TransformDestroy(tr)
		}
	}
}

// cached counts the executors currently held in slots, for tests.
func (tc *transformCache) cached() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := 0
	for _, tr := range tc.slots {
		if tr != 0 {
			n++
		}
	}
	return n
}

// Transform converts coordinate tuples in place. coords holds tuples of
// the given dimension, (x, y[, z[, t]]) contiguously; len(coords) must be
// a multiple of dimension. Only objects created as coordinate operations
// can transform; any other object returns ErrNotAnOperation.
//
// Transform is safe for concurrent use on the same operation: each call
// runs on its own pooled executor.
func (o *Object) Transform(coords []float64, dimension int) error {
	if o.transforms == nil {
		return ErrNotAnOperation
	}
	if dimension < 1 || dimension > 4 {
		return fmt.Errorf("projgo: invalid coordinate dimension %d", dimension)
	}
	if len(coords)%dimension != 0 {
		return fmt.Errorf("projgo: coordinate array length %d is not a multiple of dimension %d",
			len(coords), dimension)
	}
	if len(coords) == 0 {
		return nil
	}

	// Deferred first so it runs after the executor release below: o must
	// stay reachable while tr is parked back into o.transforms, or the
	// disposer could destroy the cache under the release.
	defer runtime.KeepAlive(o)

	c, err := acquireContext()
	if err != nil {
		return err
	}
	defer c.Close()

	tr, err := o.transforms.acquire(o.impl, c)
	if err != nil {
		return err
	}
	defer o.transforms.release(tr)

	rc := capi.TransformRun(tr, &coords[0], int32(dimension), int32(len(coords)/dimension))
	runtime.KeepAlive(coords)
	return NewError(rc, "run_transform")
}
