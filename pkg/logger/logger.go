// Package logger provides structured logging with rotation support.
// Console output is always on; a rotated JSON file is added when OutputPath is set.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	// LevelFatal calls os.Exit(1) after logging.
	LevelFatal Level = "fatal"
)

// Config represents logger configuration.
type Config struct {
	// Level is the minimum log level.
	Level Level

	// OutputPath is the log file path. Empty means stdout only.
	OutputPath string

	// MaxSize is the size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAge is the number of days to keep rotated files.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool

	// Development switches the console to a colored, human-readable encoder.
	Development bool

	// EnableStacktrace adds stacktraces for Error and above.
	EnableStacktrace bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	logPath := filepath.Join(homeDir, ".guildkeeper", "logs", "guildkeeper.log")

	return &Config{
		Level:            LevelInfo,
		OutputPath:       logPath,
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           7,
		Compress:         true,
		Development:      false,
		EnableStacktrace: true,
	}
}

// Logger wraps zap.Logger.
type Logger struct {
	*zap.Logger
	config *Config
}

// New creates a new logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	consoleConfig := encoderConfig
	var consoleEncoder zapcore.Encoder
	if cfg.Development {
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(consoleConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	}

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	options := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if cfg.Development {
		options = append(options, zap.Development())
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), options...),
		config: cfg,
	}, nil
}

// NewNop returns a logger that discards everything. Used by tests and CLI helpers.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: &Config{Level: LevelError}}
}

// WithFields creates a child logger carrying the given fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		config: l.config,
	}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(zap.String("component", name))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// ParseLevel converts a level name to a zapcore.Level. Matching is case-insensitive.
func ParseLevel(level string) (zapcore.Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(level))) {
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelInfo, "":
		return zapcore.InfoLevel, nil
	case LevelWarn, "warning":
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	case LevelFatal:
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
