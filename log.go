//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/osgeo/projgo/internal/capi"
	"github.com/osgeo/projgo/internal/handles"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// SetLogger configures the logger used for disposal failures, pool
// maintenance and native log routing. The default is a no-op logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func log() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// LogLevel represents PROJ log levels.
type LogLevel int32

// Log level constants matching PROJ's PJ_LOG_* values.
const (
	LogNone  LogLevel = 0 // Print no output
	LogError LogLevel = 1 // Errors only
	LogDebug LogLevel = 2 // Errors and debug messages
	LogTrace LogLevel = 3 // Everything, including native call traces
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogError:
		return "error"
	case LogDebug:
		return "debug"
	default:
		return "trace"
	}
}

// LogCallback is called for each PROJ log message.
type LogCallback func(level LogLevel, message string)

var (
	logCallbackMu sync.Mutex
	logCBToken    uintptr
	logCBOnce     sync.Once
	logCBPtr      uintptr
)

// SetNativeLogLevel sets the engine-side log threshold.
func SetNativeLogLevel(level LogLevel) error {
	if err := ensureLoaded(); err != nil {
		return err
	}
	capi.SetLogLevel(int32(level))
	return nil
}

// SetNativeLogCallback routes PROJ log messages to cb.
// Pass nil to restore the engine's default logging behavior.
func SetNativeLogCallback(cb LogCallback) error {
	if err := ensureLoaded(); err != nil {
		return err
	}

	logCallbackMu.Lock()
	defer logCallbackMu.Unlock()

	if logCBToken != 0 {
		handles.Unregister(logCBToken)
		logCBToken = 0
	}
	if cb == nil {
		capi.SetLogHandler(0, 0)
		return nil
	}

	logCBOnce.Do(func() {
		logCBPtr = purego.NewCallback(func(opaque uintptr, level int32, msg *byte) {
			v := handles.Lookup(opaque)
			if v == nil {
				return
			}
			v.(LogCallback)(LogLevel(level), goString(msg))
		})
	})

	logCBToken = handles.Register(cb)
	capi.SetLogHandler(logCBPtr, logCBToken)
	return nil
}

// goString copies a NUL-terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
