package backend

import (
	"fmt"
	"io"
	"log"
)

// Logger is what the engine, the local host and the custom handler log through.
type Logger interface {
	// Debug logs a message at level Debug.
	Debug(v ...any)
	// Debugf logs a message at level Debug.
	Debugf(format string, v ...any)
	// Info logs a message at level Info.
	Info(v ...any)
	// Infof logs a message at level Info.
	Infof(format string, v ...any)
	// Warn logs a message at level Warn.
	Warn(v ...any)
	// Warnf logs a message at level Warn.
	Warnf(format string, v ...any)
	// Error logs a message at level Error.
	Error(v ...any)
	// Errorf logs a message at level Error.
	Errorf(format string, v ...any)
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var levelPrefixes = [...]string{
	levelDebug: "DEBUG: ",
	levelInfo:  "INFO: ",
	levelWarn:  "WARNING: ",
	levelError: "ERROR: ",
}

type logger struct {
	out       *log.Logger
	threshold level
}

var defaultLogger = NewLogger(log.Writer(), true)

// NewLogger returns a [Logger] that writes level-prefixed lines to w. Debug messages are
// dropped unless verbose is set.
func NewLogger(w io.Writer, verbose bool) Logger {
	threshold := levelInfo
	if verbose {
		threshold = levelDebug
	}
	return &logger{out: log.New(w, "", log.Flags()), threshold: threshold}
}

// DefaultLogger returns a verbose logger over the standard logger's writer.
func DefaultLogger() Logger {
	return defaultLogger
}

func (l *logger) print(lvl level, msg func() string) {
	if lvl < l.threshold {
		return
	}
	_ = l.out.Output(3, levelPrefixes[lvl]+msg())
}

func (l *logger) Debug(v ...any) { l.print(levelDebug, func() string { return fmt.Sprint(v...) }) }
func (l *logger) Debugf(format string, v ...any) {
	l.print(levelDebug, func() string { return fmt.Sprintf(format, v...) })
}
func (l *logger) Info(v ...any) { l.print(levelInfo, func() string { return fmt.Sprint(v...) }) }
func (l *logger) Infof(format string, v ...any) {
	l.print(levelInfo, func() string { return fmt.Sprintf(format, v...) })
}
func (l *logger) Warn(v ...any) { l.print(levelWarn, func() string { return fmt.Sprint(v...) }) }
func (l *logger) Warnf(format string, v ...any) {
	l.print(levelWarn, func() string { return fmt.Sprintf(format, v...) })
}
func (l *logger) Error(v ...any) { l.print(levelError, func() string { return fmt.Sprint(v...) }) }
func (l *logger) Errorf(format string, v ...any) {
	l.print(levelError, func() string { return fmt.Sprintf(format, v...) })
}
