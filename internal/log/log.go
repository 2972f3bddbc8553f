// Package log provides leveled, human-readable logging for zarrfusion.
//
// Messages go to stderr by default. Level labels are colored with lipgloss
// when the destination is a terminal and left plain otherwise, so captured
// output in tests and log files stays greppable.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/natefinch/lumberjack"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "success":
		return LevelSuccess, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var levelColors = map[Level]lipgloss.Color{
	LevelDebug:   lipgloss.Color("#5F87AF"),
	LevelInfo:    lipgloss.Color("#D0D0D0"),
	LevelSuccess: lipgloss.Color("#5FD75F"),
	LevelWarn:    lipgloss.Color("#FFD75F"),
	LevelError:   lipgloss.Color("#FF5F5F"),
}

// Logger writes timestamped, leveled lines to one or more writers.
type Logger struct {
	mu       sync.Mutex
	sinks    []sink
	minLevel Level
	now      func() time.Time
}

// sink is one destination with level styles matching its color profile.
type sink struct {
	out    io.Writer
	styles map[Level]lipgloss.Style
}

func newSink(w io.Writer, renderer *lipgloss.Renderer) sink {
	styles := make(map[Level]lipgloss.Style, len(levelColors))
	for lvl, c := range levelColors {
		s := renderer.NewStyle().Foreground(c)
		if lvl >= LevelWarn {
			s = s.Bold(true)
		}
		styles[lvl] = s
	}
	return sink{out: w, styles: styles}
}

// New creates a logger writing to w that drops messages below minLevel.
func New(w io.Writer, minLevel Level) *Logger {
	l := &Logger{minLevel: minLevel, now: time.Now}
	l.SetOutput(w)
	return l
}

// SetOutput replaces every destination with w.
func (l *Logger) SetOutput(w io.Writer) {
	s := newSink(w, lipgloss.NewRenderer(w))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = []sink{s}
}

// AddOutput tees messages to w as well. Colors are decided per writer, so
// a log file stays plain while a terminal keeps its colored labels.
func (l *Logger) AddOutput(w io.Writer) {
	l.addSink(newSink(w, lipgloss.NewRenderer(w)))
}

func (l *Logger) addSink(s sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.minLevel {
		return
	}
	name := fmt.Sprintf("%-8s", level)
	msg := fmt.Sprintf(format, args...)
	stamp := l.now().Format("2006-01-02 15:04:05.000")
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	for _, s := range l.sinks {
		label := s.styles[level].Render(name)
		// Multi-line messages keep the prefix on every line.
		for _, line := range lines {
			fmt.Fprintf(s.out, "%s | %s | %s\n", stamp, label, line)
		}
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Successf logs at Success level, which sits between Info and Warning and
// marks the completion of a major step.
func (l *Logger) Successf(format string, args ...interface{}) {
	l.logf(LevelSuccess, format, args...)
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Timed logs how long a step took since start, in seconds.
func (l *Logger) Timed(label string, start time.Time) {
	l.Infof("  %s: %.2fs", label, time.Since(start).Seconds())
}

// FileConfig describes a rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// OpenFile returns a size-rotated log file writer.
func OpenFile(c FileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
	}
}

var (
	stdMu sync.RWMutex
	std   = New(os.Stderr, LevelInfo)
)

// Default returns the package-level logger.
func Default() *Logger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

// SetDefault replaces the package-level logger and returns the previous one.
func SetDefault(l *Logger) *Logger {
	stdMu.Lock()
	defer stdMu.Unlock()
	prev := std
	std = l
	return prev
}

func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

func Successf(format string, args ...interface{}) {
	Default().Successf(format, args...)
}

func Warningf(format string, args ...interface{}) {
	Default().Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

func Timed(label string, start time.Time) {
	Default().Timed(label, start)
}
