// Package logging provides the process-wide leveled logger. Output goes to a
// rotating log file and, optionally, to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes timestamped leveled lines.
type Logger struct {
	mu      sync.Mutex
	file    io.WriteCloser
	console io.Writer
	debug   bool
}

// New creates a logger writing to path with rotation. When console is true,
// lines are mirrored to stderr. An empty path disables file output.
func New(path string, console, debug bool) *Logger {
	l := &Logger{debug: debug}
	if path != "" {
		l.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	if console {
		l.console = os.Stderr
	}
	return l
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{}
}

func (l *Logger) log(level, format string, args ...interface{}) {
	if l.file == nil && l.console == nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, strings.ToUpper(level), fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		if _, err := io.WriteString(l.file, line); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write log: %v\n", err)
		}
	}
	if l.console != nil {
		io.WriteString(l.console, line)
	}
}

// Debug logs only when debug logging is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.log("debug", format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log("info", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log("warn", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log("error", format, args...)
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
