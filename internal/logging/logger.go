// Package logging provides simple level-gated logging for memento, with a
// small set of chainable context methods (WithOp/WithTag/WithSize/WithError)
// so a single dropped-event log line carries the operation, usecase tag, and
// byte size involved without callers hand-building a format string each time.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger wraps stdlib log with level support and an optional chain of
// structured context fields.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  Format
	noColor bool
	sync    bool
	mu      *sync.Mutex
	fields  []field
}

type field struct {
	key string
	val any
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) prefix() string {
	switch l {
	case LevelDebug:
		return "[DEBUG]"
	case LevelInfo:
		return "[INFO]"
	case LevelWarn:
		return "[WARN]"
	case LevelError:
		return "[ERROR]"
	default:
		return "[?]"
	}
}

// ansiColor returns the ANSI escape for level, or "" if colorless.
func (l LogLevel) ansiColor() string {
	switch l {
	case LevelDebug:
		return "\x1b[90m" // gray
	case LevelInfo:
		return "\x1b[36m" // cyan
	case LevelWarn:
		return "\x1b[33m" // yellow
	case LevelError:
		return "\x1b[31m" // red
	default:
		return ""
	}
}

const ansiReset = "\x1b[0m"

// Format selects the wire shape of each log line.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration
type Config struct {
	Level LogLevel
	// Format selects "text" (default) or "json" line rendering.
	Format Format
	Output io.Writer
	// Sync, if true, flushes Output after every line when it supports
	// Sync() error (e.g. *os.File) — useful for short-lived CLI runs
	// (cmd/memento-demo) where a crash shouldn't eat the last line.
	Sync bool
	// NoColor disables ANSI level coloring in text format.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = FormatText
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		sync:    config.Sync,
		mu:      &sync.Mutex{},
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// withField returns a copy of l with an additional context field, the way
// the teacher's device/queue-scoped loggers were meant to chain (the
// original WithDevice/WithQueue shape, generalized to memento's op/tag/size
// vocabulary).
func (l *Logger) withField(key string, val any) *Logger {
	next := *l
	next.fields = append(append([]field{}, l.fields...), field{key: key, val: val})
	return &next
}

// WithOp returns a logger that tags every subsequent line with op, e.g.
// "Alloc", "Dealloc", "WithUsecase".
func (l *Logger) WithOp(op string) *Logger { return l.withField("op", op) }

// WithTag returns a logger that tags every subsequent line with the raw
// 32-bit usecase tag involved.
func (l *Logger) WithTag(tag uint32) *Logger { return l.withField("tag", tag) }

// WithSize returns a logger that tags every subsequent line with the byte
// size involved, if any.
func (l *Logger) WithSize(size uintptr) *Logger { return l.withField("size", size) }

// WithError returns a logger that tags every subsequent line with err's
// message. A nil err is a no-op (returns l unchanged).
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.withField("error", err.Error())
}

// formatArgs converts ad hoc key-value pairs (as opposed to l.fields, which
// are attached via With*) to a trailing " key=value ..." string.
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) fieldArgs() string {
	if len(l.fields) == 0 {
		return ""
	}
	args := make([]any, 0, len(l.fields)*2)
	for _, f := range l.fields {
		args = append(args, f.key, f.val)
	}
	return formatArgs(args)
}

func (l *Logger) flushIfNeeded() {
	if !l.sync {
		return
	}
	if s, ok := l.logger.Writer().(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == FormatJSON {
		l.logger.Printf("%s", l.renderJSON(level, msg, args))
	} else {
		l.logger.Printf("%s", l.renderText(level, msg, args))
	}
	l.flushIfNeeded()
}

func (l *Logger) renderText(level LogLevel, msg string, args []any) string {
	prefix := level.prefix()
	if !l.noColor {
		if c := level.ansiColor(); c != "" {
			prefix = c + prefix + ansiReset
		}
	}
	return fmt.Sprintf("%s %s%s%s", prefix, msg, l.fieldArgs(), formatArgs(args))
}

func (l *Logger) renderJSON(level LogLevel, msg string, args []any) string {
	line := make(map[string]any, len(l.fields)+len(args)/2+2)
	line["level"] = levelName(level)
	line["msg"] = msg
	for _, f := range l.fields {
		line[f.key] = f.val
	}
	for i := 0; i+1 < len(args); i += 2 {
		line[fmt.Sprint(args[i])] = args[i+1]
	}
	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Sprintf("{%q:%q,%q:%q}", "level", levelName(level), "msg", msg)
	}
	return string(b)
}

func levelName(l LogLevel) string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
