package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LogLevel int

type Logger struct {
	logLevel LogLevel
	logDir   string
	logger   *log.Logger
}

const (
	INFO LogLevel = iota
	DEBUG
	ERROR
)

var (
	registryMu sync.RWMutex
	registry   = map[string]*Logger{}
)

// ParseLevel maps a config-file level name to a LogLevel. Unknown names
// fall back to ERROR so a typo keeps log files quiet rather than noisy.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return INFO
	case "debug":
		return DEBUG
	default:
		return ERROR
	}
}

// Get returns the named logger, or nil if it has not been created yet.
// All logging methods are nil-safe, so packages may fetch their logger
// before main has populated the registry.
func Get(name string) (logger *Logger) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if ln, ok := registry[name]; ok {
		return ln
	}

	return nil
}

func New(name string, logDir string, logLevel LogLevel) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if logger, exists := registry[name]; exists {
		return logger
	}

	logger := setupLogger(logLevel, logDir)

	registry[name] = logger
	return logger
}

func (l *Logger) init() error {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}

	timestamp := time.Now().Format("2006-01-02")

	logFile, err := os.OpenFile(
		filepath.Join(l.logDir, fmt.Sprintf("Folio-%s.log", timestamp)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}

	l.logger = log.New(logFile, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

func setupLogger(logLevel LogLevel, logDir string) *Logger {
	logger := &Logger{
		logLevel: logLevel,
		logDir:   logDir,
		logger:   nil,
	}

	if err := logger.init(); err != nil {
		// Fall back to stderr rather than refusing to start.
		logger.logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
	}

	return logger
}

func (l *Logger) Info(format string, v ...any) {
	if l == nil {
		return
	}
	if l.logLevel >= INFO {
		l.logger.Printf("INFO: "+format, v...)
	}
}

func (l *Logger) Debug(format string, v ...any) {
	if l == nil {
		return
	}
	if l.logLevel >= DEBUG {
		l.logger.Printf("DEBUG: "+format, v...)
	}
}

func (l *Logger) Error(format string, v ...any) {
	if l == nil {
		return
	}
	if l.logLevel >= ERROR {
		l.logger.Printf("ERROR: "+format, v...)
	}
}

func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry = map[string]*Logger{}
}
