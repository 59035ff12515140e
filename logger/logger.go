package logger

import (
	"fmt"
	"sync/atomic"
	"time"
)

type logEntry struct {
	level Level
	log   []byte
}

// Logger writes leveled, tagged messages to a Backend. Create one with
// Backend.Logger; each subsystem owns its own Logger and level.
type Logger struct {
	level     uint32
	tag       string
	backend   *Backend
	writeChan chan logEntry
}

// Level returns the current filtering level for the logger.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the logger's filtering level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

func (l *Logger) write(level Level, s string) {
	if level < l.Level() {
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s: %s\n", now, level, l.tag, s)
	if l.writeChan == nil || !l.backend.IsRunning() {
		fmt.Print(line)
		return
	}
	l.writeChan <- logEntry{level: level, log: []byte(line)}
}

// Tracef formats and logs a message at the trace level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.write(LevelTrace, fmt.Sprintf(format, args...))
}

// Debugf formats and logs a message at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof formats and logs a message at the info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf formats and logs a message at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf formats and logs a message at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

// Criticalf formats and logs a message at the critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.write(LevelCritical, fmt.Sprintf(format, args...))
}
