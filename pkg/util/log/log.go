package log

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the process-wide logger used by components that were not handed
// one explicitly. It discards everything until InitLogger is called.
var Logger = log.NewNopLogger()

// Config holds the logging flags.
type Config struct {
	Level  Level  `yaml:"log_level"`
	Format string `yaml:"log_format"`
}

// RegisterFlags registers the logging flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.Level = Level{name: "info"}
	f.Var(&cfg.Level, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	f.StringVar(&cfg.Format, "log.format", "logfmt", "Output log messages in the given format. Valid formats: [logfmt, json]")
}

// Level is a flag.Value for the go-kit log level filter.
type Level struct {
	name string
}

func (l Level) String() string {
	if l.name == "" {
		return "info"
	}
	return l.name
}

// Set implements flag.Value.
func (l *Level) Set(s string) error {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "error":
		l.name = strings.ToLower(s)
		return nil
	}
	return fmt.Errorf("unrecognized log level %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Level) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return l.Set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (l Level) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

func (l Level) option() level.Option {
	switch l.String() {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

// InitLogger builds the process logger from cfg and installs it as Logger.
func InitLogger(cfg Config) log.Logger {
	Logger = NewLogger(cfg, os.Stderr)
	return Logger
}

// NewLogger returns a leveled logger writing to w.
func NewLogger(cfg Config, w io.Writer) log.Logger {
	var logger log.Logger
	if cfg.Format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = level.NewFilter(logger, cfg.Level.option())
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))
}

type contextKey int

const queryIDKey contextKey = 0

// InjectQueryID returns a context that carries the given query id; loggers
// obtained through WithContext will include it.
func InjectQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey, id)
}

// WithContext returns a logger decorated with the identifiers carried in ctx.
func WithContext(ctx context.Context, l log.Logger) log.Logger {
	if id, ok := ctx.Value(queryIDKey).(string); ok && id != "" {
		return log.With(l, "query_id", id)
	}
	return l
}
