package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Level file names written under the log directory.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// New creates a Logger that mirrors every level into a file under logDir.
func New(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: logDir}

	infoFile, err := l.openLogFile(InfoFile)
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile(WarningFile)
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile(ErrorFile)
	if err != nil {
		l.Close()
		return nil, err
	}

	l.setupLoggers(
		io.MultiWriter(os.Stdout, infoFile),
		io.MultiWriter(os.Stdout, warningFile),
		io.MultiWriter(os.Stderr, errorFile),
	)
	return l, nil
}

// NewWithWriter sends every level to w. No files are written.
func NewWithWriter(w io.Writer) *Logger {
	l := &Logger{}
	l.setupLoggers(w, w, w)
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// setupLoggers initializes per-level loggers over the given writers.
func (l *Logger) setupLoggers(info, warning, errw io.Writer) {
	l.infoLog = log.New(info, "INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(warning, "WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(errw, "ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	path := filepath.Join(l.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Dir returns the directory holding the level files, or "" for writer-backed loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	return nil
}

// Close releases the level files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
