// Package logger wraps zap for the srun and fakeportal binaries.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger holds the process logger. Log is a no-op logger until Init is called.
type ZapLogger struct {
	Log *zap.Logger
}

// New returns a logger that discards everything.
func New() *ZapLogger {
	return &ZapLogger{Log: zap.NewNop()}
}

// Init builds a console logger at level ("debug", "info", "warn", "error")
// writing to stderr, so stdout stays free for command output.
func (l *ZapLogger) Init(level string) error {
	return l.InitWriter(level, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func (l *ZapLogger) InitWriter(level string, w io.Writer) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)

	l.Log = zap.New(core)
	return nil
}
