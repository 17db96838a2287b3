package logger

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var instance = New(os.Stderr)

type Field struct {
	Key   string
	Value string
}

func F(k, v string) Field {
	return Field{k, v}
}

func FArr(k string, a []string) Field {
	return Field{k, strings.Join(a, ",")}
}

func FUint(k string, v uint64) Field {
	return Field{k, strconv.FormatUint(v, 10)}
}

// New returns a logger writing to w, human friendly if w is a terminal.
func New(w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w = zerolog.ConsoleWriter{Out: f, NoColor: false}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// SetLevel changes the level of the package logger, e.g. "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	instance = instance.Level(lvl)
	return nil
}

// Logger returns the package logger, to be handed to library components.
func Logger() zerolog.Logger {
	return instance
}

func doLog(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		ev = ev.Str(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func Debug(msg string, fields ...Field) {
	doLog(instance.Debug(), msg, fields)
}

func Info(msg string, fields ...Field) {
	doLog(instance.Info(), msg, fields)
}

func Warn(msg string, fields ...Field) {
	doLog(instance.Warn(), msg, fields)
}

func Error(err error, fields ...Field) error {
	if err == nil {
		return nil
	}
	doLog(instance.Error().Err(err), "", fields)
	return err
}

func ErrorWithMsg(err error, msg string, fields ...Field) error {
	doLog(instance.Error().Err(err), msg, fields)
	return err
}
