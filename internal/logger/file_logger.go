package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLogDir = "logs"

// Options controls where and how much the logger writes
type Options struct {
	Name        string // file prefix, e.g. "tpsl"
	Level       string // debug, info, warn, error
	Dir         string
	ConsoleOnly bool
	Now         func() time.Time
}

// Logger wraps a zap logger together with the file it writes to
type Logger struct {
	*zap.Logger
	file *os.File
	path string
}

// New creates a logger that writes JSON lines to <dir>/<name>_<date>.log and
// human readable lines to stderr.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	l := &Logger{}
	if !opts.ConsoleOnly {
		path := FilePath(opts)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
		l.file = file
		l.path = path
	}

	l.Logger = zap.New(zapcore.NewTee(cores...))
	if opts.Name != "" {
		l.Logger = l.Logger.Named(opts.Name)
	}
	return l, nil
}

// FilePath returns the dated log file path for opts
func FilePath(opts Options) string {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultLogDir
	}
	name := opts.Name
	if name == "" {
		name = "tpsl"
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, now().Format("2006-01-02")))
}

// ParseLevel maps a level name to a zap level; empty means info
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Path returns the log file path, empty for console-only loggers
func (l *Logger) Path() string {
	return l.path
}

// Close flushes buffered entries and closes the log file
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
