package wgcore

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the structured logging seam wgcore calls into. It is
// deliberately narrow (compared to the full zerolog.Logger surface) so that
// embedding applications can substitute any backend, and call sites depend
// on behavior rather than a concrete logging library.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

// zlogAdapter adapts a zerolog.Logger to the Logger interface.
type zlogAdapter struct {
	l zerolog.Logger
}

func (z zlogAdapter) Debug() *zerolog.Event { return z.l.Debug() }
func (z zlogAdapter) Info() *zerolog.Event  { return z.l.Info() }
func (z zlogAdapter) Warn() *zerolog.Event  { return z.l.Warn() }
func (z zlogAdapter) Error() *zerolog.Event { return z.l.Error() }

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

func init() {
	globalLogger.logger = zlogAdapter{
		l: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}
}

// SetStructuredLogger replaces the package-wide logger used by Worker,
// Group, Server and the service lifecycle. Safe to call before StartServer.
func SetStructuredLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

func logger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}
