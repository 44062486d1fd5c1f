package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// encoderConfig lays log lines out as
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<fields as JSON>
//
// The operation id travels as the logger name.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "op",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       utcTimeEncoder,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: "\t",
	}
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05Z"))
}

// newLogger creates a logger that writes every level to logDir/catalog.log
// and info and above to stderr. It returns the open log file for cleanup.
func newLogger(logDir string, opID string) (*zap.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "catalog.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stderr), zapcore.InfoLevel),
	)
	return zap.New(core).Named(opID), f, nil
}

// zapAdapter satisfies catalog.Logger on top of a sugared zap logger.
type zapAdapter struct {
	l *zap.SugaredLogger
}

func newZapAdapter(l *zap.Logger) *zapAdapter {
	return &zapAdapter{l: l.Sugar()}
}

func (a *zapAdapter) Debug(msg string, args ...any) { a.l.Debugw(msg, args...) }
func (a *zapAdapter) Info(msg string, args ...any)  { a.l.Infow(msg, args...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.l.Warnw(msg, args...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.l.Errorw(msg, args...) }
