package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level  slog.Leveler
	output io.Writer
	file   *lumberjack.Logger
}

// Option customises Setup.
type Option func(*options)

// WithLevel sets the minimum level emitted.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

// WithOutput replaces stdout as the primary sink.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithFile tees log lines into a size-rotated file.
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}
}

// ParseLevel maps a config string onto a slog level. Unknown values map to Info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a JSON slog handler as the process default and routes the
// standard library logger through it. Every line carries service and, when
// set, env. The closer releases the rotated file sink if one was requested.
func Setup(service, env string, opts ...Option) (*slog.Logger, io.Closer) {
	cfg := options{level: slog.LevelInfo, output: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	sink := cfg.output
	var closer io.Closer = nopCloser{}
	if cfg.file != nil {
		sink = io.MultiWriter(cfg.output, cfg.file)
		closer = cfg.file
	}

	var handler slog.Handler = slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:       cfg.level,
		ReplaceAttr: replaceAttr,
	})
	common := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		common = append(common, slog.String("env", env))
	}
	handler = handler.WithAttrs(common)

	logger := slog.New(handler)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger, closer
}

// replaceAttr renames the built-in keys to the collector's field names and
// redacts sensitive values.
func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return redactAttr(attr)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
