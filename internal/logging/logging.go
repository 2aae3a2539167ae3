// Package logging reproduces the teacher's bracket-tagged log.Printf style
// ([env], [mix], [auth], [storage]) with the original Python implementation's
// colored node prefix (LOG_PREFIX = '\x1b[42m[Node PORT]\x1b[0m') gated to
// real terminals so piped/CI logs don't pick up raw escape codes.
package logging

import (
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"
)

// Logger prefixes every message with a bracketed component tag, colored
// green (the original's ANSI 42 background) when stderr is a terminal.
type Logger struct {
	tag   string
	color bool
}

// New builds a Logger for the given component tag, e.g. New("directory").
func New(tag string) *Logger {
	return &Logger{
		tag:   tag,
		color: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

func (l *Logger) prefix() string {
	if l.color {
		return "\x1b[42m[" + l.tag + "]\x1b[0m "
	}
	return "[" + l.tag + "] "
}

// Printf logs a formatted message with the component prefix.
func (l *Logger) Printf(format string, args ...any) {
	log.Print(l.prefix() + fmt.Sprintf(format, args...))
}

// Fatalf logs a formatted message with the component prefix and exits 1.
func (l *Logger) Fatalf(format string, args ...any) {
	log.Fatal(l.prefix() + fmt.Sprintf(format, args...))
}
