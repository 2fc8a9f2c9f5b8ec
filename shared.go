//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"github.com/osgeo/projgo/internal/capi"
)

// sharedPtr owns one native shared handle (a C++ std::shared_ptr slot
// allocated by the shim). The underlying PROJ object is reference-counted:
// wrapping it bumps the count, release drops it.
//
// release must be invoked at most once per sharedPtr, and no accessor may
// be called afterwards. Single invocation is not enforced here; it is
// guaranteed by the callers: either the disposal registry (which runs a
// disposer at most once per wrapper) or the identity cache race-loser path
// (which releases a candidate that was never registered for disposal).
type sharedPtr struct {
	ptr uintptr
}

// wrapSharedPtr wraps a native shared handle.
// A zero handle is an allocation failure from the native layer.
func wrapSharedPtr(ptr uintptr) (*sharedPtr, error) {
	if ptr == 0 {
		return nil, ErrOutOfMemory
	}
	return &sharedPtr{ptr: ptr}, nil
}

// identity returns the address of the underlying native object. Distinct
// shared handles aliasing the same object report the same identity; this
// is the identity cache key.
func (p *sharedPtr) identity() uintptr {
	return capi.ObjectIdentity(p.ptr)
}

func (p *sharedPtr) stringProperty(property int32) string {
	return capi.StringProperty(p.ptr, property)
}

func (p *sharedPtr) isEquivalentTo(other *sharedPtr, criterion int32) bool {
	return capi.IsEquivalent(p.ptr, other.ptr, criterion) != 0
}

func (p *sharedPtr) format(ctx uintptr, convention, indentation int32, multiline, strict bool) string {
	return capi.FormatObject(p.ptr, ctx, convention, indentation, b2i(multiline), b2i(strict))
}

// release decrements the native reference count. The handle is dead after
// this returns.
func (p *sharedPtr) release() {
	capi.ReleaseShared(p.ptr)
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
