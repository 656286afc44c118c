package providers

import (
	"fmt"
	"io"
	"kwatch/internal/structures"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type TypeEnum uint8

const (
	TypeApp TypeEnum = iota
	TypeHTTP
	TypeCheck
	TypeNotify
	TypeLedger
)

func (t TypeEnum) String() string {
	switch t {
	case TypeHTTP:
		return "http"
	case TypeCheck:
		return "check"
	case TypeNotify:
		return "notify"
	case TypeLedger:
		return "ledger"
	default:
		return "app"
	}
}

type Logger interface {
	Errorf(t TypeEnum, format string, args ...interface{})
	Warnf(t TypeEnum, format string, args ...interface{})
	Infof(t TypeEnum, format string, args ...interface{})
	Debugf(t TypeEnum, format string, args ...interface{})
	Fatalf(t TypeEnum, format string, args ...interface{})
	Close()
}

type LogProvider struct {
	log  zerolog.Logger
	sink io.Closer
}

func NewLogProvider(conf *structures.Config) (Logger, error) {
	level, err := zerolog.ParseLevel(conf.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.Logger.Level, err)
	}

	if err := os.MkdirAll(conf.Logger.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	probe := filepath.Join(conf.Logger.Dir, ".probe")
	if err := os.WriteFile(probe, nil, os.FileMode(conf.Logger.Mode)); err != nil {
		return nil, fmt.Errorf("log directory not writable: %w", err)
	}
	os.Remove(probe)

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(conf.Logger.Dir, "kwatch.log"),
		MaxSize:    orDefault(conf.Logger.MaxSizeMB, 100),
		MaxBackups: orDefault(conf.Logger.MaxBackups, 7),
		MaxAge:     orDefault(conf.Logger.MaxAgeDays, 30),
		Compress:   true,
	}

	var w io.Writer = fileSink
	if conf.Debug {
		console := zerolog.ConsoleWriter{Out: os.Stderr}
		w = zerolog.MultiLevelWriter(fileSink, console)
	}

	log := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &LogProvider{log: log, sink: fileSink}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *LogProvider) Errorf(t TypeEnum, format string, args ...interface{}) {
	l.log.Error().Str("type", t.String()).Msgf(format, args...)
}

func (l *LogProvider) Warnf(t TypeEnum, format string, args ...interface{}) {
	l.log.Warn().Str("type", t.String()).Msgf(format, args...)
}

func (l *LogProvider) Infof(t TypeEnum, format string, args ...interface{}) {
	l.log.Info().Str("type", t.String()).Msgf(format, args...)
}

func (l *LogProvider) Debugf(t TypeEnum, format string, args ...interface{}) {
	l.log.Debug().Str("type", t.String()).Msgf(format, args...)
}

func (l *LogProvider) Fatalf(t TypeEnum, format string, args ...interface{}) {
	l.log.Fatal().Str("type", t.String()).Msgf(format, args...)
}

func (l *LogProvider) Close() {
	_ = l.sink.Close()
}
