package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// fileMaxSizeMB is the size at which the run log is rotated.
	fileMaxSizeMB = 5
	// fileMaxBackups is the number of rotated run logs kept next to the active one.
	fileMaxBackups = 10
	// fileMaxAgeDays is the retention of rotated run logs.
	fileMaxAgeDays = 30
	// fileDirMode is used when the log directory has to be created.
	fileDirMode = 0o750
)

// NewWithFile builds a logger that writes colored output to the console and
// plain timestamped lines to the file at path. The returned closer flushes and
// releases the file.
func NewWithFile(level zapcore.LevelEnabler, path string, options ...zap.Option) (*zap.SugaredLogger, io.Closer, error) {
	if level == nil {
		level = defaultLevel
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), fileDirMode); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		Compress:   true,
	}

	// Open eagerly so permission problems surface before the first message.
	if _, err := sink.Write(nil); err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	fileConfig := encoderConfig(zapcore.CapitalLevelEncoder)
	fileConfig.TimeKey = "time"

	core := zapcore.NewTee(
		consoleCore(level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileConfig), zapcore.AddSync(sink), level),
	)

	l := zap.New(core, options...).Sugar()

	return l, closerFunc(func() error {
		_ = l.Sync()
		return sink.Close()
	}), nil
}

// LevelEnabler exposes the shared atomic level so derived loggers follow SetLevel.
//
//nolint:ireturn,nolintlint // zapcore.LevelEnabler is the type zap expects.
func LevelEnabler() zapcore.LevelEnabler {
	return defaultLevel
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
