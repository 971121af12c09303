package fsr

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// devices holds the devices of live pipelines so SetLogger can reach them.
var (
	devicesMu sync.Mutex
	devices   = make(map[*Pipeline]loggerSetter)
)

// SetLogger configures the logger for fsr and the devices of all live
// pipelines. By default, fsr produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by fsr:
//   - [slog.LevelDebug]: per-frame diagnostics (stages, dispatch sizes)
//   - [slog.LevelInfo]: lifecycle events (initialize, teardown, reallocation)
//   - [slog.LevelWarn]: non-fatal issues (clamped settings)
//
// Example:
//
//	fsr.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	devicesMu.Lock()
	defer devicesMu.Unlock()
	for _, ls := range devices {
		ls.SetLogger(l)
	}
}

// Logger returns the current logger used by fsr.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// trackDevice hands the current logger to the pipeline's device and keeps
// it in sync with later SetLogger calls until untrackDevice.
func trackDevice(p *Pipeline) {
	ls, ok := p.dev.(loggerSetter)
	if !ok {
		return
	}
	devicesMu.Lock()
	defer devicesMu.Unlock()
	devices[p] = ls
	ls.SetLogger(Logger())
}

func untrackDevice(p *Pipeline) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	delete(devices, p)
}
