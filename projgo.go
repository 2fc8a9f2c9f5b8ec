//go:build !ios && !android && (amd64 || arm64)

// Package projgo provides Go bindings to the PROJ geodesy engine without
// CGO, using purego and a small native shim library.
//
// The package's job is resource safety rather than geodesy: native PROJ
// objects are reference-counted, thread-affine and expensive to create, so
// projgo wraps them in garbage-collectable objects with three guarantees:
//
//   - every native reference is released exactly once, after its wrapper
//     becomes unreachable;
//   - wrapping the same native object twice yields the same *Object,
//     process-wide;
//   - thread-affine resources (PJ_CONTEXT, transform executors) are pooled
//     and recycled but never shared between goroutines concurrently.
//
// Objects are created from authority codes:
//
//	crs, err := projgo.CreateCRS("EPSG", "4326")
//	op, err := projgo.CreateOperation("EPSG", "8048")
//	err = op.Transform(coords, 2)
//
// No Close or Free calls are needed on the returned objects.
package projgo

import (
	"runtime"

	"github.com/osgeo/projgo/internal/capi"
)

// Init loads the PROJ shim library. It is called automatically by the
// creation functions, but can be called explicitly to surface load errors
// early. Safe to call multiple times.
func Init() error {
	return capi.Load()
}

// IsLoaded returns true if the PROJ shim library has been loaded.
func IsLoaded() bool {
	return capi.IsLoaded()
}

// Version returns the PROJ release string, for example "9.4.0".
func Version() (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	return capi.VersionString(), nil
}

// ensureLoaded makes the native surface available, either through the real
// shim or through entry points already installed (tests install fakes).
func ensureLoaded() error {
	if capi.IsLoaded() {
		return nil
	}
	return capi.Load()
}

// CreateFromAuthority creates the geodetic object identified by an
// authority code, for example ("EPSG", "4326"). The concrete kind of
// object is whatever the authority registered under that code.
func CreateFromAuthority(authority, code string) (*Object, error) {
	return createByCode(TypeAny, authority, code)
}

// CreateCRS creates the coordinate reference system identified by an
// authority code.
func CreateCRS(authority, code string) (*Object, error) {
	return createByCode(TypeCRS, authority, code)
}

// CreateOperation creates the coordinate operation identified by an
// authority code. The returned object supports Transform.
func CreateOperation(authority, code string) (*Object, error) {
	return createByCode(TypeCoordinateOperation, authority, code)
}

// CreateOperationBetween builds the coordinate operation that transforms
// coordinates directly from the source CRS to the target CRS. The returned
// object supports Transform.
func CreateOperationBetween(source, target *Object) (*Object, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	c, err := acquireContext()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	ptr := capi.OperationCreate(c.ptr, source.impl.ptr, target.impl.ptr)
	runtime.KeepAlive(source)
	runtime.KeepAlive(target)
	if ptr == 0 {
		return nil, allocationOrContextError(c.ptr, "create_operation")
	}
	return wrapObject(ptr)
}

// DescriptionText returns the catalog description of an authority code
// without instantiating the full object.
func DescriptionText(authority, code string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	c, err := acquireContext()
	if err != nil {
		return "", err
	}
	defer c.Close()
	f, err := c.factory(authority)
	if err != nil {
		return "", err
	}
	s := capi.DescriptionText(f.ptr, code)
	if s == "" {
		if err := contextError(c.ptr, "description_text"); err != nil {
			return "", err
		}
	}
	return s, nil
}

// createByCode is the common creation path: a pooled context, a memoized
// authority factory, then identity-deduplicated wrapping of the resulting
// shared handle.
func createByCode(kind Type, authority, code string) (*Object, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	c, err := acquireContext()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	f, err := c.factory(authority)
	if err != nil {
		return nil, err
	}
	ptr, err := f.createObject(c, kind, code)
	if err != nil {
		return nil, err
	}
	return wrapObject(ptr)
}
