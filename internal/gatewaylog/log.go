// Package gatewaylog is a thin wrapper over the standard library logger
// giving call sites a consistent "level: message key=value..." line shape.
package gatewaylog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger writes leveled lines through a standard library *log.Logger.
type Logger struct {
	l *log.Logger
}

// Default is the package-level logger, writing to stderr with no prefix.
var Default = New(os.Stderr)

// New builds a Logger writing to w.
func New(w *os.File) *Logger {
	return &Logger{l: log.New(w, "", log.LstdFlags)}
}

func (lg *Logger) line(level, msg string, kv ...any) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Print(lg.line("info", msg, kv...)) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Print(lg.line("warn", msg, kv...)) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Print(lg.line("error", msg, kv...)) }

func Info(msg string, kv ...any)  { Default.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default.Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default.Error(msg, kv...) }
