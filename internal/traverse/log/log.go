// Package log wires the process-wide slog default to a charm logger and
// recovers panics in long-running goroutines.
package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"traverse/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	current     *logging.LoggerCloser
)

// Setup installs the default slog logger. With debug set, or
// TRAVERSE_LOG_LEVEL=debug, the level is forced to debug and caller locations
// are reported. Only the first call has effect.
func Setup(debug bool) *charmlog.Logger {
	initOnce.Do(func() {
		current = logging.NewLogger()
		if debug || logging.IsDebug() {
			current.SetLevel(charmlog.DebugLevel)
			current.SetReportCaller(true)
		}
		slog.SetDefault(slog.New(current.Logger))
		initialized.Store(true)
	})
	return current.Logger
}

// Close releases the log file, if any.
func Close() error {
	if current == nil {
		return nil
	}
	return current.Close()
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
