package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level       string
	Pretty      bool
	ServiceName string
}

var (
	global zerolog.Logger
	mu     sync.RWMutex
)

func init() {
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// New creates a configured zerolog.Logger.
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.ServiceName != "" {
		l = l.With().Str("service", cfg.ServiceName).Logger()
	}
	return l
}

// Init replaces the global logger and bridges the stdlib log package into it.
func Init(cfg Config) {
	l := New(cfg)

	mu.Lock()
	global = l
	mu.Unlock()

	stdlog.SetFlags(0)
	stdlog.SetOutput(l.With().Str("source", "stdlog").Logger())
}

// SetOutput points the global logger at w. Tests use it to silence or capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	global = global.Output(w)
	mu.Unlock()
}

// L returns the global logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

func Info(format string, v ...interface{}) {
	l := L()
	l.Info().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	l := L()
	l.Warn().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	l := L()
	l.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	l := L()
	l.Debug().Msgf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	l := L()
	l.Fatal().Msgf(format, v...)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
