//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/osgeo/projgo/internal/capi"
)

// contextIdleTimeout is how long a pooled Context may sit unused before an
// eviction sweep destroys it. There is no guarantee a context is destroyed
// soon after the timeout; the guarantee is that it is not destroyed before.
// Variable for tests.
var contextIdleTimeout = time.Minute

// contextPool holds previously created PJ_CONTEXT wrappers. Release pushes
// to the back and acquire pops from the back, so the most recently used
// context is reused first; the front accumulates the contexts that have
// been idle longest and is where eviction sweeps look.
var contextPool struct {
	mu   sync.Mutex
	free []*Context
}

// Context wraps PJ_CONTEXT, the PROJ threading context, together with every
// native resource that depends on it (its authority factories).
//
// A Context may be used by only one goroutine at a time, not necessarily
// the one that created it. Callers acquire one for the duration of a block
// and must release it on every exit path:
//
//	c, err := acquireContext()
//	if err != nil { ... }
//	defer c.Close()
//	f, err := c.factory("EPSG")
//	// do not use f outside this scope
//
// Nothing derived from a Context may escape the acquire/Close window.
// This is a usage contract, not a runtime check; violating it hands the
// same native context to two threads with undefined behavior.
type Context struct {
	ptr uintptr
	// lastUse is the release timestamp, read by eviction sweeps. Only
	// touched while the context is out of the pool or under the pool lock.
	lastUse time.Time
	// factories are the authority factories created for this context,
	// keyed by authority name. They share one database connection.
	factories map[string]*authorityFactory
	// first is the factory that opened the database connection; every
	// later factory names it as its sibling.
	first *authorityFactory
}

// authorityFactory is a derived resource owned by exactly one Context.
// The ptr is a shared handle released during Context destruction.
type authorityFactory struct {
	ptr       uintptr
	authority string
}

// acquireContext returns a context from the pool, most recently used
// first, or creates one when the pool is empty.
func acquireContext() (*Context, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	contextPool.mu.Lock()
	if n := len(contextPool.free); n > 0 {
		c := contextPool.free[n-1]
		contextPool.free[n-1] = nil
		contextPool.free = contextPool.free[:n-1]
		contextPool.mu.Unlock()
		return c, nil
	}
	contextPool.mu.Unlock()

	ptr := capi.ContextCreate()
	if ptr == 0 {
		return nil, ErrOutOfMemory
	}
	return &Context{ptr: ptr, factories: make(map[string]*authorityFactory)}, nil
}

// Close returns the context to the pool so it can be reused by this or
// another goroutine, after opportunistically destroying pooled contexts
// that have been idle past the timeout. If the sweep or the push fails for
// any reason the context is destroyed instead; a context is never silently
// dropped with its native resources still alive. The expired contexts are
// destroyed before c is pushed, so a failure on this path can only hit a
// context that is not yet back in the pool.
func (c *Context) Close() {
	defer func() {
		if r := recover(); r != nil {
			c.destroy()
			log().Error("projgo: context release failed; context destroyed",
				zap.Any("panic", r))
		}
	}()
	now := time.Now()
	destroyContexts(sweepExpired(now))
	contextPool.mu.Lock()
	c.lastUse = now
	contextPool.free = append(contextPool.free, c)
	contextPool.mu.Unlock()
}

// destroyContexts destroys every swept context. A panic from one
// destruction must not skip the rest, so each runs contained; the first
// panic is re-raised afterwards to fail the release that triggered the
// sweep.
func destroyContexts(expired []*Context) {
	var firstPanic any
	for _, e := range expired {
		func() {
			defer func() {
				if r := recover(); r != nil && firstPanic == nil {
					firstPanic = r
				}
			}()
			e.destroy()
		}()
	}
	if firstPanic != nil {
		panic(firstPanic)
	}
}

// sweepExpired removes contexts idle past the timeout from the front of
// the pool and returns them for destruction outside the pool lock. It
// only ever touches pooled contexts; a checked-out context cannot expire.
func sweepExpired(now time.Time) []*Context {
	var expired []*Context
	contextPool.mu.Lock()
	for len(contextPool.free) > 0 && now.Sub(contextPool.free[0].lastUse) > contextIdleTimeout {
		expired = append(expired, contextPool.free[0])
		contextPool.free[0] = nil
		contextPool.free = contextPool.free[1:]
	}
	contextPool.mu.Unlock()
	return expired
}

// factory returns the authority factory for the given authority name,
// creating it on first use. The first factory of a context opens the
// expensive database connection; later factories pass an existing sibling
// so the native layer shares that connection instead of opening another.
func (c *Context) factory(authority string) (*authorityFactory, error) {
	if f := c.factories[authority]; f != nil {
		return f, nil
	}
	var sibling uintptr
	if c.first != nil {
		sibling = c.first.ptr
	}
	ptr := capi.AuthorityFactoryCreate(c.ptr, authority, sibling)
	if ptr == 0 {
		return nil, allocationOrContextError(c.ptr, "create_authority_factory")
	}
	f := &authorityFactory{ptr: ptr, authority: authority}
	c.factories[authority] = f
	if c.first == nil {
		c.first = f
	}
	return f, nil
}

// createObject instantiates the object identified by code through this
// context's factory and returns the raw shared handle.
func (f *authorityFactory) createObject(c *Context, objType Type, code string) (uintptr, error) {
	ptr := capi.ObjectCreate(f.ptr, int32(objType), code)
	if ptr == 0 {
		return 0, allocationOrContextError(c.ptr, "create_object_by_code")
	}
	return ptr, nil
}

// destroy releases every native resource owned by this context. The
// factories are released first: they hold pointers into the native
// context, so destroying the context before them would leave them
// dangling. The PJ_CONTEXT itself is destroyed last.
func (c *Context) destroy() {
	for _, f := range c.factories {
		capi.ReleaseShared(f.ptr)
	}
	clear(c.factories)
	c.first = nil
	capi.ContextDestroy(c.ptr)
}
