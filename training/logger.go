package training

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Logger records training progress at two severities: Write always emits,
// WillWrite emits only in verbose mode.
type Logger interface {
	Write(format string, args ...interface{})
	WillWrite(format string, args ...interface{})
}

// RunLogger writes to the standard logger and appends every Write message
// to a log file.
type RunLogger struct {
	console *log.Logger
	file    *log.Logger
	closer  io.Closer
	verbose bool
}

// NewRunLogger logs to stderr and, when logPath is non-empty, appends
// always-severity messages to logPath.
func NewRunLogger(logPath string, verbose bool) (*RunLogger, error) {
	rl := &RunLogger{
		console: log.New(os.Stderr, "", log.LstdFlags),
		verbose: verbose,
	}
	if logPath == "" {
		return rl, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log file %s", logPath)
	}
	rl.file = log.New(f, "", log.LstdFlags)
	rl.closer = f
	return rl, nil
}

// NewWriterLogger logs both severities to w; WillWrite only when verbose.
func NewWriterLogger(w io.Writer, verbose bool) *RunLogger {
	return &RunLogger{console: log.New(w, "", 0), verbose: verbose}
}

func (rl *RunLogger) Write(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	rl.console.Println(msg)
	if rl.file != nil {
		rl.file.Println(msg)
	}
}

func (rl *RunLogger) WillWrite(format string, args ...interface{}) {
	if rl.verbose {
		rl.console.Println(fmt.Sprintf(format, args...))
	}
}

// Close closes the log file, if any.
func (rl *RunLogger) Close() error {
	if rl.closer == nil {
		return nil
	}
	return rl.closer.Close()
}
