//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/osgeo/projgo/internal/capi"
)

// fakeEngine is an in-process stand-in for the PROJ shim. It models the
// native reference counts and handle tables so lifecycle tests can assert
// that every reference is released exactly once, without libprojshim being
// installed. Handles it does not know about (leftovers from a previous
// test's disposers) are ignored rather than flagged.
type fakeEngine struct {
	mu   sync.Mutex
	next uintptr

	identByCode map[string]uintptr // authority code -> native object address
	identType   map[uintptr]int32  // object address -> concrete type tag
	refs        map[uintptr]int    // object address -> native refcount
	released    map[uintptr]int    // object address -> total release calls
	sharedIdent map[uintptr]uintptr
	deadShared  map[uintptr]bool
	doubleFrees int

	contexts     map[uintptr]bool
	ctxDestroyed map[uintptr]bool

	factories map[uintptr]fakeFactory

	transforms    map[uintptr]*fakeTransform
	trCreated     int
	trDestroyed   int
	ranWithoutCtx int

	errno    map[uintptr]int32
	failCode map[string]int32 // authority code -> errno to fail with
	oomCode  string           // authority code that fails with a bare null

	events []string

	logFn     uintptr
	logOpaque uintptr
	logLevel  int32
}

type fakeFactory struct {
	ctx       uintptr
	authority string
	sibling   uintptr
}

type fakeTransform struct {
	op  uintptr
	ctx uintptr
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		next:         0x1000,
		identByCode:  make(map[string]uintptr),
		identType:    make(map[uintptr]int32),
		refs:         make(map[uintptr]int),
		released:     make(map[uintptr]int),
		sharedIdent:  make(map[uintptr]uintptr),
		deadShared:   make(map[uintptr]bool),
		contexts:     make(map[uintptr]bool),
		ctxDestroyed: make(map[uintptr]bool),
		factories:    make(map[uintptr]fakeFactory),
		transforms:   make(map[uintptr]*fakeTransform),
		errno:        make(map[uintptr]int32),
		failCode:     make(map[string]int32),
	}
}

// installFakeEngine wires a fresh fake into capi's entry points and resets
// the process-wide pools so the test starts from a clean slate. The
// previous entry points are restored when the test finishes.
func installFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	e := newFakeEngine()

	saved := capiSnapshot()
	t.Cleanup(func() { saved.restore() })

	// Disposers queued by earlier tests may still fire against this fake;
	// their handles are unknown here and are ignored.
	contextPool.mu.Lock()
	contextPool.free = nil
	contextPool.mu.Unlock()
	sharedCache = newSharedObjects()

	capi.VersionString = func() string { return "9.4.0-fake" }
	capi.ContextCreate = e.contextCreate
	capi.ContextDestroy = e.contextDestroy
	capi.ContextErrno = e.contextErrno
	capi.ErrnoString = func(code int32) string { return fmt.Sprintf("fake error %d", code) }
	capi.AuthorityFactoryCreate = e.authorityFactoryCreate
	capi.ObjectCreate = e.objectCreate
	capi.ObjectType = e.objectType
	capi.OperationCreate = e.operationCreate
	capi.DescriptionText = e.descriptionText
	capi.ReleaseShared = e.releaseShared
	capi.ObjectIdentity = e.objectIdentity
	capi.StringProperty = e.stringProperty
	capi.IsEquivalent = e.isEquivalent
	capi.FormatObject = e.formatObject
	capi.TransformCreate = e.transformCreate
	capi.TransformAssign = e.transformAssign
	capi.TransformRun = e.transformRun
	capi.TransformDestroy = e.transformDestroy
	capi.SetLogLevel = e.setLogLevel
	capi.SetLogHandler = e.setLogHandler

	return e
}

type capiState struct {
	versionString          func() string
	contextCreate          func() uintptr
	contextDestroy         func(uintptr)
	contextErrno           func(uintptr) int32
	errnoString            func(int32) string
	authorityFactoryCreate func(uintptr, string, uintptr) uintptr
	objectCreate           func(uintptr, int32, string) uintptr
	objectType             func(uintptr) int32
	operationCreate        func(uintptr, uintptr, uintptr) uintptr
	descriptionText        func(uintptr, string) string
	releaseShared          func(uintptr)
	objectIdentity         func(uintptr) uintptr
	stringProperty         func(uintptr, int32) string
	isEquivalent           func(uintptr, uintptr, int32) int32
	formatObject           func(uintptr, uintptr, int32, int32, int32, int32) string
	transformCreate        func(uintptr, uintptr) uintptr
	transformAssign        func(uintptr, uintptr)
	transformRun           func(uintptr, *float64, int32, int32) int32
	transformDestroy       func(uintptr)
	setLogLevel            func(int32) int32
	setLogHandler          func(uintptr, uintptr)
}

func capiSnapshot() capiState {
	return capiState{
		versionString:          capi.VersionString,
		contextCreate:          capi.ContextCreate,
		contextDestroy:         capi.ContextDestroy,
		contextErrno:           capi.ContextErrno,
		errnoString:            capi.ErrnoString,
		authorityFactoryCreate: capi.AuthorityFactoryCreate,
		objectCreate:           capi.ObjectCreate,
		objectType:             capi.ObjectType,
		operationCreate:        capi.OperationCreate,
		descriptionText:        capi.DescriptionText,
		releaseShared:          capi.ReleaseShared,
		objectIdentity:         capi.ObjectIdentity,
		stringProperty:         capi.StringProperty,
		isEquivalent:           capi.IsEquivalent,
		formatObject:           capi.FormatObject,
		transformCreate:        capi.TransformCreate,
		transformAssign:        capi.TransformAssign,
		transformRun:           capi.TransformRun,
		transformDestroy:       capi.TransformDestroy,
		setLogLevel:            capi.SetLogLevel,
		setLogHandler:          capi.SetLogHandler,
	}
}

func (s capiState) restore() {
	capi.VersionString = s.versionString
	capi.ContextCreate = s.contextCreate
	capi.ContextDestroy = s.contextDestroy
	capi.ContextErrno = s.contextErrno
	capi.ErrnoString = s.errnoString
	capi.AuthorityFactoryCreate = s.authorityFactoryCreate
	capi.ObjectCreate = s.objectCreate
	capi.ObjectType = s.objectType
	capi.OperationCreate = s.operationCreate
	capi.DescriptionText = s.descriptionText
	capi.ReleaseShared = s.releaseShared
	capi.ObjectIdentity = s.objectIdentity
	capi.StringProperty = s.stringProperty
	capi.IsEquivalent = s.isEquivalent
	capi.FormatObject = s.formatObject
	capi.TransformCreate = s.transformCreate
	capi.TransformAssign = s.transformAssign
	capi.TransformRun = s.transformRun
	capi.TransformDestroy = s.transformDestroy
	capi.SetLogLevel = s.setLogLevel
	capi.SetLogHandler = s.setLogHandler
}

func (e *fakeEngine) newHandle() uintptr {
	e.next++
	return e.next
}

func (e *fakeEngine) contextCreate() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.newHandle()
	e.contexts[h] = true
	e.events = append(e.events, fmt.Sprintf("create_context %d", h))
	return h
}

func (e *fakeEngine) contextDestroy(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.contexts[h] {
		return // foreign handle from an earlier test
	}
	delete(e.contexts, h)
	e.ctxDestroyed[h] = true
	e.events = append(e.events, fmt.Sprintf("destroy_context %d", h))
}

func (e *fakeEngine) contextErrno(ctx uintptr) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	code := e.errno[ctx]
	delete(e.errno, ctx)
	return code
}

func (e *fakeEngine) authorityFactoryCreate(ctx uintptr, authority string, sibling uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.newHandle()
	e.factories[h] = fakeFactory{ctx: ctx, authority: authority, sibling: sibling}
	e.sharedIdent[h] = h // a factory is its own identity
	e.refs[h] = 1
	e.events = append(e.events, fmt.Sprintf("create_factory %d", h))
	return h
}

func (e *fakeEngine) objectCreate(factory uintptr, objType int32, code string) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.factories[factory]
	if !ok {
		return 0
	}
	if code == e.oomCode && code != "" {
		return 0
	}
	if errno := e.failCode[code]; errno != 0 {
		e.errno[f.ctx] = errno
		return 0
	}
	ident, ok := e.identByCode[code]
	if !ok {
		ident = e.newHandle()
		e.identByCode[code] = ident
		// The object's concrete type is a property of the catalog entry,
		// not of the request: an objType filter of 0 still yields a typed
		// object. Codes without a declared type default to CRS.
		if objType != 0 {
			e.identType[ident] = objType
		} else {
			e.identType[ident] = 1
		}
	}
	e.refs[ident]++
	h := e.newHandle()
	e.sharedIdent[h] = ident
	e.events = append(e.events, fmt.Sprintf("create_object %d", h))
	return h
}

func (e *fakeEngine) objectType(h uintptr) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identType[e.sharedIdent[h]]
}

func (e *fakeEngine) operationCreate(ctx, source, target uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	// One canonical operation per source/target pair, like the catalog.
	key := fmt.Sprintf("op:%d->%d", e.sharedIdent[source], e.sharedIdent[target])
	ident, ok := e.identByCode[key]
	if !ok {
		ident = e.newHandle()
		e.identByCode[key] = ident
		e.identType[ident] = 2
	}
	e.refs[ident]++
	h := e.newHandle()
	e.sharedIdent[h] = ident
	e.events = append(e.events, fmt.Sprintf("create_operation %d", h))
	return h
}

func (e *fakeEngine) descriptionText(factory uintptr, code string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.factories[factory]; !ok {
		return ""
	}
	return "description of " + code
}

func (e *fakeEngine) releaseShared(h uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ident, ok := e.sharedIdent[h]
	if !ok {
		return // foreign handle from an earlier test
	}
	if e.deadShared[h] {
		e.doubleFrees++
		return
	}
	e.deadShared[h] = true
	e.refs[ident]--
	e.released[ident]++
	e.events = append(e.events, fmt.Sprintf("release_shared %d", h))
}

func (e *fakeEngine) objectIdentity(h uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sharedIdent[h]
}

func (e *fakeEngine) stringProperty(h uintptr, property int32) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ident := e.sharedIdent[h]
	switch property {
	case propName:
		return fmt.Sprintf("Fake Object %d", ident)
	case propAuthority:
		return "EPSG"
	case propCode:
		for code, id := range e.identByCode {
			if id == ident {
				return code
			}
		}
	}
	return ""
}

func (e *fakeEngine) isEquivalent(a, b uintptr, criterion int32) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sharedIdent[a] == e.sharedIdent[b] {
		return 1
	}
	return 0
}

func (e *fakeEngine) formatObject(h, ctx uintptr, convention, indentation, multiline, strict int32) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if convention == int32(WKT1_ESRI) {
		e.errno[ctx] = 1028
		return ""
	}
	return fmt.Sprintf("WKT[%d]", e.sharedIdent[h])
}

func (e *fakeEngine) transformCreate(op, ctx uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.newHandle()
	e.transforms[h] = &fakeTransform{op: op, ctx: ctx}
	e.trCreated++
	return h
}

func (e *fakeEngine) transformAssign(tr, ctx uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.transforms[tr]; ok {
		t.ctx = ctx
	}
}

func (e *fakeEngine) transformRun(tr uintptr, coords *float64, dimension, count int32) int32 {
	e.mu.Lock()
	t, ok := e.transforms[tr]
	if !ok || t.ctx == 0 {
		e.ranWithoutCtx++
		e.mu.Unlock()
		return 1000
	}
	e.mu.Unlock()
	// Shift every coordinate by one so tests can observe the call.
	buf := unsafe.Slice(coords, int(dimension*count))
	for i := range buf {
		buf[i]++
	}
	return 0
}

func (e *fakeEngine) transformDestroy(tr uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.transforms[tr]; !ok {
		return
	}
	delete(e.transforms, tr)
	e.trDestroyed++
	e.events = append(e.events, fmt.Sprintf("destroy_transform %d", tr))
}

func (e *fakeEngine) setLogLevel(level int32) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.logLevel
	e.logLevel = level
	return old
}

func (e *fakeEngine) setLogHandler(fn, opaque uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logFn = fn
	e.logOpaque = opaque
}

// Assertion helpers.

func (e *fakeEngine) refcount(ident uintptr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs[ident]
}

func (e *fakeEngine) releaseCount(ident uintptr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released[ident]
}

func (e *fakeEngine) doubleFreeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doubleFrees
}

func (e *fakeEngine) contextDestroyed(h uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxDestroyed[h]
}

func (e *fakeEngine) factorySibling(h uintptr) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factories[h].sibling
}

func (e *fakeEngine) transformsCreated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trCreated
}

func (e *fakeEngine) transformsDestroyed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trDestroyed
}

func (e *fakeEngine) eventIndex(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ev := range e.events {
		if ev == event {
			return i
		}
	}
	return -1
}

func (e *fakeEngine) setFailCode(code string, errno int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failCode[code] = errno
}

func (e *fakeEngine) setCodeType(code string, t Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ident, ok := e.identByCode[code]
	if !ok {
		ident = e.newHandle()
		e.identByCode[code] = ident
	}
	e.identType[ident] = int32(t)
}

func (e *fakeEngine) setOOMCode(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oomCode = code
}

func (e *fakeEngine) identityOf(code string) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identByCode[code]
}

// waitFor polls cond, forcing garbage collection between attempts, until
// it holds or the deadline expires. Used by tests that depend on the
// collector noticing unreachable wrappers.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		runtime.GC()
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}
