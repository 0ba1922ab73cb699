// Package logger defines the logging surface of the SDK.
//
// Every component logs through [Logger] with a message followed by
// key/value pairs. The default implementation is backed by zerolog;
// [github.com/whiteboard-sdk/whiteboard.go/pkg/logger/slog] adapts a
// log/slog handler instead.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// LogData is a zerolog backed Logger. LogFile is set when the builder was
// given a path and must be closed by the owner.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

var _ Logger = (*LogData)(nil)

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Level(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stderr
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

// Zerolog wraps an already configured zerolog.Logger.
func Zerolog(zl zerolog.Logger) *LogData {
	return &LogData{Logger: zl}
}

// Default logs warnings and errors to stderr.
func Default() Logger {
	return Zerolog(zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger())
}

// Nop discards everything.
func Nop() Logger {
	return Zerolog(zerolog.Nop())
}

func (l *LogData) Error(msg string, args ...any) {
	l.Logger.Error().Fields(args).Msg(msg)
}

func (l *LogData) Warn(msg string, args ...any) {
	l.Logger.Warn().Fields(args).Msg(msg)
}

func (l *LogData) Info(msg string, args ...any) {
	l.Logger.Info().Fields(args).Msg(msg)
}

func (l *LogData) Debug(msg string, args ...any) {
	l.Logger.Debug().Fields(args).Msg(msg)
}

// Close closes the log file, if any.
func (l *LogData) Close() error {
	if l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}

type withLogger struct {
	next Logger
	kv   []any
}

// With returns a Logger that adds kv to every entry.
func With(l Logger, kv ...any) Logger {
	if w, ok := l.(*withLogger); ok {
		return &withLogger{next: w.next, kv: append(append([]any(nil), w.kv...), kv...)}
	}
	return &withLogger{next: l, kv: kv}
}

func (w *withLogger) args(args []any) []any {
	return append(append(make([]any, 0, len(w.kv)+len(args)), w.kv...), args...)
}

func (w *withLogger) Error(msg string, args ...any) { w.next.Error(msg, w.args(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.next.Warn(msg, w.args(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.next.Info(msg, w.args(args)...) }
func (w *withLogger) Debug(msg string, args ...any) { w.next.Debug(msg, w.args(args)...) }
