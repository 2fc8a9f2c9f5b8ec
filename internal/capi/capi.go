//go:build !ios && !android && (amd64 || arm64)

// Package capi declares the native entry points of the PROJ shim library.
//
// The shim (libprojshim) is a small C layer exposing the parts of the PROJ
// C++ object model that projgo needs: thread contexts, authority factories,
// reference-counted object pointers and transform executors. Each entry
// point is declared as a package-level function variable registered by
// Load() through purego. Keeping them as variables lets the lifecycle tests
// install an in-process fake engine without the shim being present.
//
// Handle conventions follow the shim ABI:
//   - a zero return from any *_create function means allocation failure,
//   - "shared" handles wrap a C++ std::shared_ptr and must be released with
//     ReleaseShared exactly once,
//   - context and transform handles are plain create/destroy pairs.
package capi

import "errors"

// ErrNotLoaded is returned when the shim has not been loaded.
// Call projgo.Init() first.
var ErrNotLoaded = errors.New("projgo: PROJ shim library not loaded; call projgo.Init() first")

// ErrLibraryNotFound is returned when the shim library cannot be located.
var ErrLibraryNotFound = errors.New("projgo: PROJ shim library not found")

// Native entry points. All are nil until Load() succeeds (or a test
// installs replacements). Callers must check IsLoaded() first.
var (
	// VersionString returns the underlying PROJ release string.
	VersionString func() string

	// ContextCreate allocates a PJ_CONTEXT. Returns 0 if out of memory.
	ContextCreate func() uintptr

	// ContextDestroy frees a PJ_CONTEXT. The caller must guarantee that
	// every resource derived from the context has been released first.
	ContextDestroy func(ctx uintptr)

	// ContextErrno reports the pending error code of a context, or 0.
	ContextErrno func(ctx uintptr) int32

	// ErrnoString formats an error code as human-readable text.
	ErrnoString func(code int32) string

	// AuthorityFactoryCreate builds an authority factory bound to ctx.
	// sibling is another factory of the same context (or 0) whose database
	// connection should be shared. Returns a shared handle, or 0.
	AuthorityFactoryCreate func(ctx uintptr, authority string, sibling uintptr) uintptr

	// ObjectCreate instantiates the object identified by an authority code.
	// objType filters the lookup; the created object's concrete type is
	// reported by ObjectType. Returns a shared handle, or 0.
	ObjectCreate func(factory uintptr, objType int32, code string) uintptr

	// ObjectType reports the concrete kind (CRS, coordinate operation,
	// datum ...) of the object behind a shared handle.
	ObjectType func(ptr uintptr) int32

	// OperationCreate builds the coordinate operation transforming directly
	// from the source CRS to the target CRS, bound to ctx. Returns a shared
	// handle, or 0.
	OperationCreate func(ctx, source, target uintptr) uintptr

	// DescriptionText returns the catalog description of a code, or "".
	DescriptionText func(factory uintptr, code string) string

	// ReleaseShared decrements the native reference count behind a shared
	// handle. Must be called at most once per handle; the handle is invalid
	// afterwards.
	ReleaseShared func(ptr uintptr)

	// ObjectIdentity returns the address of the object a shared handle
	// points to. Two handles aliasing the same object report the same
	// identity even though the handles differ.
	ObjectIdentity func(ptr uintptr) uintptr

	// StringProperty reads a string property (name, authority, code ...)
	// of a shared object. Returns "" if the property is undefined.
	StringProperty func(ptr uintptr, property int32) string

	// IsEquivalent compares two shared objects under the given criterion.
	// Returns non-zero when equivalent.
	IsEquivalent func(a, b uintptr, criterion int32) int32

	// FormatObject renders a shared object in the given convention (WKT,
	// PROJJSON, PROJ string). Returns "" when the object cannot be
	// expressed in that convention.
	FormatObject func(ptr, ctx uintptr, convention, indentation int32, multiline, strict int32) string

	// TransformCreate compiles a transform executor for a coordinate
	// operation, bound to ctx. Returns 0 on failure.
	TransformCreate func(operation, ctx uintptr) uintptr

	// TransformAssign rebinds an executor to a context, or detaches it
	// when ctx is 0. Must bracket every TransformRun call.
	TransformAssign func(tr, ctx uintptr)

	// TransformRun converts count coordinate tuples of the given dimension
	// in place. Returns 0 on success or a PROJ error code.
	TransformRun func(tr uintptr, coords *float64, dimension, count int32) int32

	// TransformDestroy frees a transform executor.
	TransformDestroy func(tr uintptr)

	// SetLogLevel sets the engine-side log threshold.
	SetLogLevel func(level int32) int32

	// SetLogHandler installs a native log callback. fn is a purego
	// callback pointer, opaque is forwarded to it unchanged. Passing 0,0
	// restores the default handler.
	SetLogHandler func(fn, opaque uintptr)
)

// IsLoaded reports whether the native entry points are available, either
// because Load() succeeded or because a test installed replacements.
func IsLoaded() bool {
	return ContextCreate != nil
}
