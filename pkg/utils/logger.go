package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures an optional rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewLoggerWithFile returns a logger that writes to stderr and, when
// opts.Path is set, also to a rotating JSON log file.
func NewLoggerWithFile(debug bool, opts FileOptions) (*zap.Logger, error) {
	if opts.Path == "" {
		return NewLogger(debug)
	}

	level := zapcore.InfoLevel
	consoleEnc := zap.NewProductionEncoderConfig()
	if debug {
		level = zapcore.DebugLevel
		consoleEnc = zap.NewDevelopmentEncoderConfig()
	}

	fileEnc := zap.NewProductionEncoderConfig()
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	var console zapcore.Encoder
	if debug {
		console = zapcore.NewConsoleEncoder(consoleEnc)
	} else {
		console = zapcore.NewJSONEncoder(consoleEnc)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
