package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/taxi-assistant/server/internal/core"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Level is a zerolog level name; empty keeps the environment default.
	Level string
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

func Init(otps ...LoggerOpts) {
	opts := safe(otps...)
	if opts.Environment == core.Production {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		log.Logger = log.Logger.Level(parseLevel(opts.Level, zerolog.InfoLevel))
	} else {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Caller().Logger()
		log.Logger = log.Logger.Level(parseLevel(opts.Level, zerolog.DebugLevel))
	}
}

func parseLevel(name string, fallback zerolog.Level) zerolog.Level {
	if name == "" {
		return fallback
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return fallback
	}
	return lvl
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
