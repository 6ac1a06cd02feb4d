// Package tlxlog describes the logging interface used by the dispatcher, the update
// listeners and the dialogue handlers. All of them are long-lived and are expected
// to survive most errors (a failed poll, a handler which exited early, a failing
// transition), so the only trace such errors leave is the log.
package tlxlog

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Logger defines the globally used logging interface. Its methods accept arguments as key-value pairs
// to allow both structured and non-structured logging. This interface is implemented by go-logr/logr.Logger,
// which can be directly passed as a logger anywhere in tlxdispatch.
type Logger interface {
	Error(err error, msg string, kvs ...interface{})
	Info(msg string, kvs ...interface{})
}

type discard struct{}

func (discard) Error(err error, msg string, kvs ...interface{}) {}
func (discard) Info(msg string, kvs ...interface{})             {}

var discardSingleton = discard{}

// Discard returns a special logger the operations of which do absolutely nothing.
// NB: dropped updates are reported only through the logger, so discarding hides them.
func Discard() Logger {
	return discardSingleton
}

type std struct{}

func (s std) format(sb *strings.Builder, msg string, kvs ...interface{}) {
	sb.WriteString(fmt.Sprintf("msg=%q", msg))
	for i := 0; i < len(kvs)-1; i += 2 {
		sb.WriteString(fmt.Sprintf(" %v=%#v", kvs[i], kvs[i+1]))
	}
	if len(kvs)%2 == 1 {
		sb.WriteString(fmt.Sprintf(" %#v", kvs[len(kvs)-1]))
	}
	log.Println(sb.String())
}

func (s std) Error(err error, msg string, kvs ...interface{}) {
	var sb strings.Builder
	sb.WriteString("ERROR: errors=")
	if err == nil {
		sb.WriteString("nil ")
	} else {
		sb.WriteByte('[')
		for first := true; err != nil; err = errors.Unwrap(err) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(fmt.Sprintf("%q", err.Error()))
		}
		sb.WriteString("] ")
	}
	s.format(&sb, msg, kvs...)
}

func (s std) Info(msg string, kvs ...interface{}) {
	var sb strings.Builder
	sb.WriteString("INFO: ")
	s.format(&sb, msg, kvs...)
}

var stdSingleton = std{}

// Std returns a logger which logs everything to the Go standard library logger
// by calling log.Println on the formatted messages. It is used by default when
// no logger is passed to some component.
func Std() Logger {
	return stdSingleton
}

// WithDefault either returns the logger passed to it, if it isn't nil,
// or returns the default Std logger.
func WithDefault(l Logger) Logger {
	if l != nil {
		return l
	}
	return Std()
}

type withValues struct {
	Logger
	kvs []interface{}
}

func (w withValues) join(kvs []interface{}) []interface{} {
	joined := make([]interface{}, 0, len(w.kvs)+len(kvs))
	return append(append(joined, w.kvs...), kvs...)
}

func (w withValues) Error(err error, msg string, kvs ...interface{}) {
	w.Logger.Error(err, msg, w.join(kvs)...)
}

func (w withValues) Info(msg string, kvs ...interface{}) {
	w.Logger.Info(msg, w.join(kvs)...)
}

// With returns a logger which prepends the given key-value pairs to every entry,
// similarly to logr's WithValues. A nil logger is replaced with Std.
func With(l Logger, kvs ...interface{}) Logger {
	l = WithDefault(l)
	if len(kvs) == 0 {
		return l
	}
	if w, ok := l.(withValues); ok {
		return withValues{Logger: w.Logger, kvs: w.join(kvs)}
	}
	return withValues{Logger: l, kvs: kvs}
}
