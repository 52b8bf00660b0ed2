// Package shmipclog provides the "component: message" log prefix idiom
// used throughout the daemons in this module: a thin wrapper over the
// standard library logger, nothing more.
package shmipclog

import (
	"fmt"
	"log"
)

// Logger prefixes every line with a component name, e.g. "server:", "conn:".
type Logger struct {
	prefix string
}

// New returns a Logger for the named component.
func New(component string) *Logger {
	return &Logger{prefix: component}
}

func (l *Logger) Printf(format string, args ...any) {
	log.Printf("%s: %s", l.prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Println(args ...any) {
	log.Println(append([]any{l.prefix + ":"}, args...)...)
}
