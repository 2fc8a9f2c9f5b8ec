//go:build !ios && !android && (amd64 || arm64)

package capi

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/osgeo/projgo/internal/platform"
)

// Shim ABI versions to probe, newest first.
var shimVersions = []int{2, 1}

var (
	libShim  uintptr
	loadOnce sync.Once
	loadErr  error
	shimPath string // where the shim was found, for diagnostics
)

// Load locates the PROJ shim library and registers all entry points.
// Safe to call multiple times; subsequent calls are no-ops.
func Load() error {
	loadOnce.Do(func() {
		loadErr = doLoad()
	})
	return loadErr
}

// Path returns the location the shim was loaded from, for diagnostics.
func Path() string {
	return shimPath
}

func doLoad() error {
	lib, path, err := loadLibrary("projshim", shimVersions)
	if err != nil {
		return fmt.Errorf("loading libprojshim: %w", err)
	}
	libShim = lib
	shimPath = path

	purego.RegisterLibFunc(&VersionString, lib, "projgo_version")

	purego.RegisterLibFunc(&ContextDestroy, lib, "projgo_context_destroy")
	purego.RegisterLibFunc(&ContextErrno, lib, "projgo_context_errno")
	purego.RegisterLibFunc(&ErrnoString, lib, "projgo_errno_string")

	purego.RegisterLibFunc(&AuthorityFactoryCreate, lib, "projgo_authority_factory_create")
	purego.RegisterLibFunc(&ObjectCreate, lib, "projgo_object_create")
	purego.RegisterLibFunc(&ObjectType, lib, "projgo_object_type")
	purego.RegisterLibFunc(&OperationCreate, lib, "projgo_operation_create")
	purego.RegisterLibFunc(&DescriptionText, lib, "projgo_description_text")

	purego.RegisterLibFunc(&ReleaseShared, lib, "projgo_release_shared")
	purego.RegisterLibFunc(&ObjectIdentity, lib, "projgo_object_identity")
	purego.RegisterLibFunc(&StringProperty, lib, "projgo_string_property")
	purego.RegisterLibFunc(&IsEquivalent, lib, "projgo_is_equivalent")
	purego.RegisterLibFunc(&FormatObject, lib, "projgo_format_object")

	purego.RegisterLibFunc(&TransformCreate, lib, "projgo_transform_create")
	purego.RegisterLibFunc(&TransformAssign, lib, "projgo_transform_assign")
	purego.RegisterLibFunc(&TransformRun, lib, "projgo_transform_run")
	purego.RegisterLibFunc(&TransformDestroy, lib, "projgo_transform_destroy")

	purego.RegisterLibFunc(&SetLogLevel, lib, "projgo_set_log_level")
	purego.RegisterLibFunc(&SetLogHandler, lib, "projgo_set_log_handler")

	// ContextCreate is registered last: IsLoaded() keys off it, and the
	// other entry points must already be usable once it is non-nil.
	purego.RegisterLibFunc(&ContextCreate, lib, "projgo_context_create")

	return nil
}

// loadLibrary attempts to load a library by trying versioned names.
func loadLibrary(name string, versions []int) (uintptr, string, error) {
	for _, searchPath := range LibrarySearchPaths() {
		for _, ver := range versions {
			fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, ver))
			if lib, err := tryOpen(fullPath); err == nil {
				return lib, fullPath, nil
			}
		}
		fullPath := filepath.Join(searchPath, platform.FormatLibraryName(name, 0))
		if lib, err := tryOpen(fullPath); err == nil {
			return lib, fullPath, nil
		}
	}

	// Let the system loader find it.
	for _, ver := range versions {
		libName := platform.FormatLibraryName(name, ver)
		if lib, err := tryOpen(libName); err == nil {
			return lib, libName, nil
		}
	}
	libName := platform.FormatLibraryName(name, 0)
	if lib, err := tryOpen(libName); err == nil {
		return lib, libName, nil
	}

	return 0, "", fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
}

func tryOpen(path string) (uintptr, error) {
	// RTLD_GLOBAL so the shim resolves symbols from libproj.
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

// LibrarySearchPaths returns the directories probed for the shim, in order.
// PROJGO_LIBRARY_PATH takes precedence over system locations.
func LibrarySearchPaths() []string {
	var paths []string

	if p := os.Getenv("PROJGO_LIBRARY_PATH"); p != "" {
		paths = append(paths, filepath.SplitList(p)...)
	}

	switch runtime.GOOS {
	case "linux":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths,
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/local/lib",
			"/usr/lib",
			"/lib/x86_64-linux-gnu",
			"/lib",
		)
	case "darwin":
		if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
			paths = append(paths, filepath.SplitList(dyldPath)...)
		}
		paths = append(paths,
			"/opt/homebrew/lib",
			"/usr/local/lib",
			"/usr/lib",
		)
	case "windows":
		if exe, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Dir(exe))
		}
		paths = append(paths, "")
	}

	return paths
}
