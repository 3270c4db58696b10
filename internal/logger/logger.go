package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	l     *log.Logger
	level atomic.Int32
}

func New(l *log.Logger) *Logger {
	//nolint:exhaustruct
	lg := &Logger{l: l}
	lg.SetLevel(LevelInfo)

	return lg
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *Logger) LogDebugf(format string, v ...any) {
	l.print(LevelDebug, "[Debug]", format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.print(LevelInfo, "[Info]", format, v...)
}

func (l *Logger) LogWarn(format string, v ...any) {
	l.print(LevelWarn, "[Warn]", format, v...)
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.print(LevelError, "[Error]", format, v...)
}

func (l *Logger) print(level Level, prefix, format string, v ...any) {
	if !l.enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, v...)
	l.l.Printf("%s: %s\n", prefix, msg)
}
