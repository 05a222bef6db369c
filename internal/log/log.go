package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// settings is what Init last applied. Reconfiguring replaces the logger but
// keeps the shared level, so loggers handed out earlier follow SetVerbosity.
type settings struct {
	verbosity int
	format    string
	output    io.Writer
}

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)

	mu      sync.Mutex
	current = settings{verbosity: VerbosityWarn, format: "text", output: os.Stderr}
)

func init() {
	apply(current)
}

// Init configures the global logger to write to stderr. The CLI calls it
// once flags are parsed and again if project configuration changes the log
// options.
func Init(v int, format string) {
	initTo(os.Stderr, v, format)
}

func initTo(w io.Writer, v int, format string) {
	mu.Lock()
	defer mu.Unlock()
	current = settings{verbosity: v, format: format, output: w}
	apply(current)
	slog.SetDefault(logger.Load())
}

// apply installs a logger for s. Caller must hold mu, except from init.
func apply(s settings) {
	level.Set(VerbosityToLevel(s.verbosity))
	logger.Store(slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: s.format,
		Output: s.output,
	})))
}

// SetVerbosity changes verbosity at runtime without rebuilding the handler.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	current.verbosity = v
	level.Set(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	mu.Lock()
	defer mu.Unlock()
	return current.verbosity
}

// Format returns the current output format, "text" or "json".
func Format() string {
	mu.Lock()
	defer mu.Unlock()
	return current.format
}

// Logger returns the current logger instance.
func Logger() *slog.Logger {
	return logger.Load()
}

// Warn logs at warn level (v=1). Packages without an injected logger, such
// as the config loader, report recoverable problems through it.
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// Component returns a logger tagged with component name. Stamps storages,
// trackers and the watcher each get one, so -v=4 output can be filtered by
// subsystem.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}
