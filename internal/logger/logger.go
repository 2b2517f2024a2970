package logger

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	out          = stdlog.New(os.Stdout, "", 0)
	filterOut    *stdlog.Logger
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the process-wide minimum level. Unrecognized values are ignored.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// GetLevel returns the process-wide minimum level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

// SetOutput redirects the primary logger's destination. Used to apply
// Logging.Output (stderr by default, or stdout).
func SetOutput(w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	out = stdlog.New(w, "", 0)
}

// SetFilterLog configures a secondary logger used to audit events a filter
// predicate dropped. A nil writer disables filter-log auditing.
func SetFilterLog(w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		filterOut = nil
		return
	}
	filterOut = stdlog.New(w, "", 0)
}

func log(level Level, format string, v ...any) {
	mu.Lock()
	skip := level < currentLevel
	dest := out
	mu.Unlock()

	if skip {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	message := fmt.Sprintf(format, v...)
	dest.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}

// Filtered records that an event was dropped by the active filter predicate.
// A no-op unless --filter-log configured a destination.
func Filtered(format string, v ...any) {
	mu.Lock()
	dest := filterOut
	mu.Unlock()

	if dest == nil {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	dest.Println(fmt.Sprintf("[%s] ", timestamp) + fmt.Sprintf(format, v...))
}
