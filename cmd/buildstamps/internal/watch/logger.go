package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/incremental"
	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger handles watch mode output formatting. It writes user-facing events,
// not diagnostics; those go through internal/log.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	statsMu sync.Mutex
	stats   WatchStats
}

// WatchStats tracks statistics for the watch session.
type WatchStats struct {
	StaleCount  int
	RecordCount int
	ErrorCount  int
	StartTime   time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats: WatchStats{
			StartTime: time.Now(),
		},
	}
}

// Ready logs the initial ready message.
func (l *Logger) Ready(fileCount int, languages []string, path string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":     "ready",
			"files":     fileCount,
			"languages": languages,
			"path":      path,
		})
		return
	}

	l.printf("buildstamps: watching %s (%d files stamped)\n", path, fileCount)
	if len(languages) > 0 {
		l.printf("buildstamps: languages: %s\n", strings.Join(languages, ", "))
	}
	l.println("buildstamps: ready")
	l.println()
}

// FileChanged logs a file change event.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Checking logs that a batch of changed files is being compared with
// their stamps.
func (l *Logger) Checking(count int) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "checking",
			"files": count,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] checking %d file(s)...\n", l.timestamp(), count)
	}
}

// Stale logs a file whose stamp no longer matches.
func (l *Logger) Stale(path string, state incremental.State) {
	l.statsMu.Lock()
	l.stats.StaleCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "stale",
			"path":  path,
			"state": state.String(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	change := ChangeModified
	switch state {
	case incremental.StateAdded:
		change = ChangeAdded
	case incremental.StateDeleted:
		change = ChangeDeleted
	}
	l.printf("[%s] %s %s stale (%s)\n", l.timestamp(), l.colorize(string(change), change), path, state)
}

// Recorded logs that a fresh stamp was stored for path.
func (l *Logger) Recorded(path string) {
	l.statsMu.Lock()
	l.stats.RecordCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "recorded",
			"path":  path,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	checkmark := l.colorize("\u2713", ChangeAdded) // checkmark
	l.printf("[%s] %s %s recorded\n", l.timestamp(), checkmark, path)
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.ErrorCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("\u2717", ChangeDeleted) // xmark
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	l.statsMu.Lock()
	stats := l.stats
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"stale":    stats.StaleCount,
			"recorded": stats.RecordCount,
			"errors":   stats.ErrorCount,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("buildstamps: shutting down (%d stale, %d recorded, %d errors)\n",
		stats.StaleCount, stats.RecordCount, stats.ErrorCount)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() WatchStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

// writeJSON writes a JSON object to the output.
func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Write a minimal error event so tooling knows something went wrong
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf writes a formatted string to the writer, ignoring errors.
// Logging output errors are intentionally ignored as they are informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

// println writes a line to the writer, ignoring errors.
// Logging output errors are intentionally ignored as they are informational.
func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
