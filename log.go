package wampclient

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log Logger

// Logger is an interface compatible with log.Logger.
type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

type noopLogger struct{}

func (n noopLogger) Println(v ...interface{})               {}
func (n noopLogger) Printf(format string, v ...interface{}) {}

// zerologLogger writes Println/Printf output as zerolog debug events.
type zerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger adapts a zerolog.Logger to Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return zerologLogger{l}
}

func (z zerologLogger) Println(v ...interface{}) {
	z.l.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (z zerologLogger) Printf(format string, v ...interface{}) {
	z.l.Debug().Msgf(format, v...)
}

func stderrLogger() Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerologLogger{zerolog.New(out).With().Timestamp().Str("component", "wampclient").Logger()}
}

// setup logger for package, noop by default
func init() {
	if os.Getenv("DEBUG") != "" {
		log = stderrLogger()
	} else {
		log = noopLogger{}
	}
}

// Debug changes the log output to stderr
func Debug() {
	log = stderrLogger()
}

// DebugOff changes the log to a noop logger
func DebugOff() {
	log = noopLogger{}
}

// SetLogger allows users to inject their own logger instead of the default one.
func SetLogger(l Logger) {
	log = l
}

// sessionLogger tags every line of a zerolog-backed logger with the session's
// trace id. Other loggers are returned unchanged.
func sessionLogger(l Logger, trace string) Logger {
	if z, ok := l.(zerologLogger); ok {
		return zerologLogger{z.l.With().Str("trace", trace).Logger()}
	}
	return l
}

func logErr(l Logger, err error) error {
	if err == nil {
		return nil
	}
	l.Println(err)
	return err
}
