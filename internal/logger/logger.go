// Package logger writes the ferret-bam debug log: one file per run, printf-style, with the
// calling file and line on every entry.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level. Unknown values yield LevelDebug.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i)
		}
	}
	return LevelDebug
}

// Logger is a leveled sink. The package functions write to the global instance.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	path   string
	level  Level
}

var (
	mu       sync.Mutex
	instance *Logger
)

const timeLayout = "2006-01-02 15:04:05.000 MST"

// Init opens ferret-bam_debug_<host>_<timestamp>.log in outputDir. With enabled false nothing is
// written. Only the first call has any effect.
func Init(outputDir string, enabled bool, level Level) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return nil
	}
	if !enabled {
		instance = &Logger{level: level}
		return nil
	}

	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	hostname, _ := os.Hostname()
	name := fmt.Sprintf("ferret-bam_debug_%s_%s.log", hostname, time.Now().Format("20060102_150405"))
	logPath := filepath.Join(outputDir, name)
	file, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	instance = &Logger{out: file, closer: file, path: logPath, level: level}
	instance.banner("start", map[string]string{
		"Hostname": hostname,
		"Platform": runtime.GOOS + "/" + runtime.GOARCH,
		"Go":       runtime.Version(),
		"PID":      fmt.Sprint(os.Getpid()),
	})
	return nil
}

// SetOutput replaces the global logger with one writing to w, closing the previous one.
// A nil w disables logging.
func SetOutput(w io.Writer, level Level) {
	mu.Lock()
	prev := instance
	instance = &Logger{out: w, level: level}
	mu.Unlock()
	prev.close()
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	if l := current(); l != nil {
		return l.path
	}
	return ""
}

// Close writes the end banner and closes the log file
func Close() {
	current().close()
}

func current() *Logger {
	mu.Lock()
	defer mu.Unlock()
	return instance
}

func (l *Logger) close() {
	if l == nil || l.closer == nil {
		return
	}
	l.banner("end", nil)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closer.Close()
	l.closer = nil
	l.out = nil
}

func (l *Logger) banner(kind string, fields map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}

	rule := strings.Repeat("=", 80)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nferret-bam debug log %s: %s\n", rule, kind, time.Now().Format(timeLayout))
	for _, k := range []string{"Hostname", "Platform", "Go", "PID"} {
		if v, ok := fields[k]; ok {
			fmt.Fprintf(&b, "%-9s %s\n", k+":", v)
		}
	}
	b.WriteString(rule + "\n\n")
	io.WriteString(l.out, b.String())
}

// logf writes one entry. depth counts the frames between the caller and logf.
func (l *Logger) logf(depth int, level Level, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}

	caller := ""
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	entry := fmt.Sprintf("[%s] [%-5s] [%-20s] %s\n",
		time.Now().Format("15:04:05.000"), level, caller, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		io.WriteString(l.out, entry)
	}
}

func logAt(level Level, format string, args ...interface{}) {
	current().logf(2, level, format, args...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) { logAt(LevelDebug, format, args...) }

// Info logs an info message
func Info(format string, args ...interface{}) { logAt(LevelInfo, format, args...) }

// Warn logs a warning message
func Warn(format string, args ...interface{}) { logAt(LevelWarn, format, args...) }

// Error logs an error message
func Error(format string, args ...interface{}) { logAt(LevelError, format, args...) }

// Section logs a section header
func Section(name string) {
	logAt(LevelInfo, "")
	logAt(LevelInfo, "========== %s ==========", name)
}

// SubSection logs a subsection header
func SubSection(name string) {
	logAt(LevelInfo, "--- %s ---", name)
}

// Timing logs the time elapsed since start
func Timing(operation string, start time.Time) {
	logAt(LevelDebug, "[TIMING] %s completed in %v", operation, time.Since(start))
}

// RecordInfo logs one enriched execution record
func RecordInfo(path, trust string, inSession bool, patterns, findings int) {
	logAt(LevelDebug, "Record: %s Trust=%s CurrentSession=%t Patterns=%d Replaces=%d",
		truncate(path, 200), trust, inSession, patterns, findings)
}

// TrustInfo logs a signer decision
func TrustInfo(path, status, signer, thumbprint string) {
	logAt(LevelDebug, "Trust: %s -> %s Signer=%q Thumbprint=%s", truncate(path, 200), status, signer, thumbprint)
}

// PatternMatch logs a content rule hit
func PatternMatch(ruleID, path string) {
	logAt(LevelInfo, "Pattern Match: %s in %s", ruleID, truncate(path, 200))
}

// APICall logs a Windows API call
func APICall(api string, params ...interface{}) {
	logAt(LevelDebug, "API Call: %s %v", api, params)
}

// APIResult logs a Windows API call result
func APIResult(api string, result interface{}, err error) {
	if err != nil {
		logAt(LevelError, "API Result: %s failed: %v", api, err)
		return
	}
	logAt(LevelDebug, "API Result: %s success: %v", api, result)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
