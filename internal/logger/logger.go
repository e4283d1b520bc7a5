// Package logger provides named loggers writing to a single process-wide handler.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/log"
)

var handler log.Handler

func init() {
	SetHandler(log.NewFileHandler(os.Stderr))
}

// SetHandler changes the global logging handler.
func SetHandler(h log.Handler) {
	handler = h
	handler.SetFormatter(logFormatter{})
}

// SetLevel sets the logging level on the global handler.
func SetLevel(l log.Level) {
	handler.SetLevel(l)
}

// Logger is the logging interface used across the program.
type Logger log.Logger

// New returns a Logger whose messages are tagged with name.
// Level filtering is done by the global handler.
func New(name string) Logger {
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG)
	l.SetHandler(handler)
	return l
}

var levels = map[string]log.Level{
	"debug":    log.DEBUG,
	"info":     log.INFO,
	"notice":   log.NOTICE,
	"warning":  log.WARNING,
	"error":    log.ERROR,
	"critical": log.CRITICAL,
}

// ParseLevel returns the level with the given case-insensitive name.
func ParseLevel(s string) (log.Level, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return log.INFO, fmt.Errorf("unknown log level: %q", s)
	}
	return l, nil
}

const timeLayout = "2006-01-02 15:04:05.000"

type logFormatter struct{}

// Format outputs a message like "2024-02-28 18:15:57.123 INFO     [peer 1.2.3.4:6881] session.go:42 got unchoke"
func (logFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %s:%d %s",
		rec.Time.Format(timeLayout),
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename),
		rec.Line,
		rec.Message)
}
