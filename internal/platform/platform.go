//go:build !ios && !android && (amd64 || arm64)

// Package platform knows how shared libraries are named on each supported
// operating system, so the loader can probe for the PROJ shim.
package platform

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Is64Bit indicates whether the platform is 64-bit.
// projgo only supports 64-bit platforms due to purego limitations.
const Is64Bit = unsafe.Sizeof(uintptr(0)) == 8

// LibraryPrefix and LibraryExtension are the shared-library naming parts of
// this platform.
var LibraryPrefix, LibraryExtension = libraryNaming()

func libraryNaming() (prefix, ext string) {
	switch runtime.GOOS {
	case "darwin":
		return "lib", ".dylib"
	case "windows":
		return "", ".dll"
	default: // linux, freebsd
		return "lib", ".so"
	}
}

// FormatLibraryName returns the platform-specific library filename.
// If version is 0, returns the unversioned library name.
//
// Examples:
//   - Linux:   FormatLibraryName("projshim", 2) -> "libprojshim.so.2"
//   - macOS:   FormatLibraryName("projshim", 2) -> "libprojshim.2.dylib"
//   - Windows: FormatLibraryName("projshim", 2) -> "projshim-2.dll"
func FormatLibraryName(name string, version int) string {
	if version == 0 {
		return LibraryPrefix + name + LibraryExtension
	}
	switch runtime.GOOS {
	case "darwin":
		return fmt.Sprintf("%s%s.%d%s", LibraryPrefix, name, version, LibraryExtension)
	case "windows":
		return fmt.Sprintf("%s%s-%d%s", LibraryPrefix, name, version, LibraryExtension)
	default:
		return fmt.Sprintf("%s%s%s.%d", LibraryPrefix, name, LibraryExtension, version)
	}
}
