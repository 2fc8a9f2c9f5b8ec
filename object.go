//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"runtime"

	"github.com/osgeo/projgo/internal/capi"
)

// Type identifies the kind of geodetic object behind a shared handle.
// Values match the shim's type tags.
type Type int32

const (
	TypeAny                 Type = 0
	TypeCRS                 Type = 1
	TypeCoordinateOperation Type = 2
	TypeDatum               Type = 3
	TypeEllipsoid           Type = 4
	TypePrimeMeridian       Type = 5
	TypeCoordinateSystem    Type = 6
	TypeUnitOfMeasure       Type = 7
)

// Convention selects the text format produced by Object.Format.
type Convention int32

const (
	WKT2_2019  Convention = 0
	WKT2_2015  Convention = 1
	WKT1_GDAL  Convention = 2
	WKT1_ESRI  Convention = 3
	PROJJSON   Convention = 4
	PROJString Convention = 5
)

// ComparisonCriterion controls the strictness of IsEquivalentTo.
type ComparisonCriterion int32

const (
	// Strict requires all properties to be identical.
	Strict ComparisonCriterion = 0
	// Equivalent accepts objects equivalent for the purpose of coordinate
	// operations.
	Equivalent ComparisonCriterion = 1
	// EquivalentExceptAxisOrder additionally ignores axis order on
	// geographic CRS.
	EquivalentExceptAxisOrder ComparisonCriterion = 2
)

// String property tags understood by the shim.
const (
	propName      int32 = 1
	propAuthority int32 = 2
	propCode      int32 = 3
	propRemarks   int32 = 4
)

// Object is a wrapper around one reference-counted PROJ object.
//
// Wrappers are canonical: wrapping the same native object twice, from any
// goroutines, yields the same *Object. An Object needs no explicit
// disposal; its native reference is released after the wrapper becomes
// unreachable.
type Object struct {
	impl *sharedPtr
	// kind is the concrete type of the native object, queried at wrap
	// time. The type tag a creation call passes only filters the lookup;
	// the canonical wrapper for an identity must behave the same no matter
	// which creation path wrapped it first.
	kind Type
	// transforms is the executor cache, non-nil only for coordinate
	// operations. Shared with the disposer, which destroys the cached
	// executors before releasing the operation itself.
	transforms *transformCache
}

// objectCleaner releases everything an Object owns after the collector
// determines the Object unreachable. It deliberately has no reference to
// the Object (see disposable).
type objectCleaner struct {
	impl       *sharedPtr
	cache      *sharedObjects
	entry      *cacheEntry
	transforms *transformCache
}

func (c *objectCleaner) dispose() {
	if c.transforms != nil {
		c.transforms.destroyAll()
	}
	c.impl.release()
	c.cache.remove(c.entry)
}

// wrapObject builds (or finds) the canonical wrapper for a native shared
// handle. On the fast path an existing live wrapper is returned and the
// incoming handle's reference increment is given back immediately. When
// two goroutines wrap the same native object concurrently, exactly one
// candidate wins the cache insert; the loser releases its own handle.
// Only the winner is registered for disposal.
func wrapObject(ptr uintptr) (*Object, error) {
	impl, err := wrapSharedPtr(ptr)
	if err != nil {
		return nil, err
	}
	key := impl.identity()
	if w := sharedCache.get(key); w != nil {
		impl.release()
		return w, nil
	}
	kind := Type(capi.ObjectType(impl.ptr))
	obj := &Object{impl: impl, kind: kind}
	if kind == TypeCoordinateOperation {
		obj.transforms = newTransformCache(transformCacheCapacity())
	}
	existing, entry := sharedCache.putIfAbsent(key, obj)
	if existing != nil {
		impl.release()
		return existing, nil
	}
	releaseWhenUnreachable(obj, &objectCleaner{
		impl:       impl,
		cache:      sharedCache,
		entry:      entry,
		transforms: obj.transforms,
	})
	return obj, nil
}

// Type returns the concrete kind of the underlying native object.
func (o *Object) Type() Type {
	return o.kind
}

// Identity returns the address of the underlying native object. It is
// stable for the wrapper's lifetime and is the basis of wrapper identity:
// two Objects are the same object exactly when their identities are equal
// (in which case they are also the same pointer).
func (o *Object) Identity() uintptr {
	id := o.impl.identity()
	runtime.KeepAlive(o)
	return id
}

// Name returns the object name, or "" if the object has none.
func (o *Object) Name() string {
	s := o.impl.stringProperty(propName)
	runtime.KeepAlive(o)
	return s
}

// Authority returns the name of the authority that defines this object.
func (o *Object) Authority() string {
	s := o.impl.stringProperty(propAuthority)
	runtime.KeepAlive(o)
	return s
}

// Code returns the authority code of this object, or "".
func (o *Object) Code() string {
	s := o.impl.stringProperty(propCode)
	runtime.KeepAlive(o)
	return s
}

// IsEquivalentTo compares two objects under the given criterion.
func (o *Object) IsEquivalentTo(other *Object, criterion ComparisonCriterion) bool {
	eq := o.impl.isEquivalentTo(other.impl, int32(criterion))
	runtime.KeepAlive(o)
	runtime.KeepAlive(other)
	return eq
}

// Format renders the object in the given convention with default layout
// (default indentation, multi-line, non-strict).
func (o *Object) Format(convention Convention) (string, error) {
	return o.FormatWith(convention, -1, true, false)
}

// FormatWith renders the object in the given convention. indentation < 0
// selects the engine default. Returns ErrUnformattable when the object
// cannot be expressed in that convention.
func (o *Object) FormatWith(convention Convention, indentation int, multiline, strict bool) (string, error) {
	c, err := acquireContext()
	if err != nil {
		return "", err
	}
	defer c.Close()
	s := o.impl.format(c.ptr, int32(convention), int32(indentation), multiline, strict)
	runtime.KeepAlive(o)
	if s == "" {
		if err := contextError(c.ptr, "format_object"); err != nil {
			return "", err
		}
		return "", ErrUnformattable
	}
	return s, nil
}
