// Package logging provides the bridge's category-tagged logger. Entries are
// kept in a bounded in-memory buffer (served over HTTP for diagnostics) and
// mirrored to a zerolog sink on stderr.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// MarshalText renders the level by name in JSON output.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLevel parses a level name. ok is false for unknown names.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Category groups entries by subsystem.
type Category string

const (
	CatSystem    Category = "system"
	CatHTTP      Category = "http"
	CatWebSocket Category = "websocket"
	CatCard      Category = "card"
	CatLPA       Category = "lpa"
	CatBridge    Category = "bridge"
	CatCallback  Category = "callback"
)

// Entry is one buffered log record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger buffers the most recent entries and forwards them to a zerolog sink.
type Logger struct {
	mu       sync.RWMutex
	entries  []Entry
	next     int
	full     bool
	minLevel Level
	sink     zerolog.Logger
}

var (
	global   *Logger
	globalMu sync.Mutex
)

// New creates a logger keeping at most maxEntries entries.
func New(maxEntries int, minLevel Level, out io.Writer) *Logger {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	l := &Logger{
		entries:  make([]Entry, maxEntries),
		minLevel: minLevel,
	}
	l.setOutput(out)
	return l
}

func (l *Logger) setOutput(out io.Writer) {
	if out == nil {
		out = io.Discard
	}
	if f, ok := out.(*os.File); ok && (f == os.Stderr || f == os.Stdout) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	l.sink = zerolog.New(out).With().Timestamp().Logger()
}

// Init installs the global logger writing to stderr.
func Init(maxEntries int, minLevel Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = New(maxEntries, minLevel, os.Stderr)
}

// Get returns the global logger, creating a default one if Init was never called.
func Get() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(1000, LevelInfo, os.Stderr)
	}
	return global
}

// SetOutput redirects the sink of the global logger.
func SetOutput(out io.Writer) {
	l := Get()
	l.mu.Lock()
	l.setOutput(out)
	l.mu.Unlock()
}

// SetLevel changes the minimum level that is recorded.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minLevel
}

// Log records an entry if level is at or above the minimum.
func (l *Logger) Log(level Level, category Category, message string, data map[string]any) {
	l.mu.Lock()
	if level < l.minLevel {
		l.mu.Unlock()
		return
	}
	l.entries[l.next] = Entry{
		Timestamp: time.Now(),
		Level:     level,
		Category:  category,
		Message:   message,
		Data:      data,
	}
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	sink := l.sink
	l.mu.Unlock()

	ev := sink.WithLevel(level.zerolog()).Str("category", string(category))
	if len(data) > 0 {
		ev = ev.Fields(data)
	}
	ev.Msg(message)
}

// ordered returns buffered entries oldest first. Caller holds l.mu.
func (l *Logger) ordered() []Entry {
	if !l.full {
		return append([]Entry(nil), l.entries[:l.next]...)
	}
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	return append(out, l.entries[:l.next]...)
}

// GetEntries returns up to limit of the most recent entries, oldest first,
// optionally filtered by minimum level and category. limit <= 0 means all.
func (l *Logger) GetEntries(limit int, minLevel *Level, category *Category) []Entry {
	l.mu.RLock()
	all := l.ordered()
	l.mu.RUnlock()

	filtered := make([]Entry, 0, len(all))
	for _, e := range all {
		if minLevel != nil && e.Level < *minLevel {
			continue
		}
		if category != nil && e.Category != *category {
			continue
		}
		filtered = append(filtered, e)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// Stats summarises the buffer contents.
type Stats struct {
	Total      int              `json:"total"`
	Capacity   int              `json:"capacity"`
	MinLevel   Level            `json:"minLevel"`
	ByLevel    map[string]int   `json:"byLevel"`
	ByCategory map[Category]int `json:"byCategory"`
}

// Stats returns counts of buffered entries.
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{
		Capacity:   len(l.entries),
		MinLevel:   l.minLevel,
		ByLevel:    make(map[string]int),
		ByCategory: make(map[Category]int),
	}
	for _, e := range l.ordered() {
		s.Total++
		s.ByLevel[e.Level.String()]++
		s.ByCategory[e.Category]++
	}
	return s
}

// Clear drops all buffered entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, len(l.entries))
	l.next = 0
	l.full = false
}

func Debug(category Category, message string, data map[string]any) {
	Get().Log(LevelDebug, category, message, data)
}

func Info(category Category, message string, data map[string]any) {
	Get().Log(LevelInfo, category, message, data)
}

func Warn(category Category, message string, data map[string]any) {
	Get().Log(LevelWarn, category, message, data)
}

func Error(category Category, message string, data map[string]any) {
	Get().Log(LevelError, category, message, data)
}
