// Package logx configures the global zerolog logger and carries per-request
// fields through contexts.
package logx

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Service string
	Level   zerolog.Level
	Console bool
	// File, when set, receives a copy of every line and rotates itself.
	File *lumberjack.Logger
	// SampleEvery keeps one in N events; 0 keeps all.
	SampleEvery uint32
	// Out defaults to os.Stdout.
	Out io.Writer
}

// FromEnv reads LOG_LEVEL, LOG_FORMAT (json|console), LOG_FILE with its
// LOG_FILE_MAX_SIZE/_MAX_BACKUPS/_MAX_AGE/_COMPRESS rotation knobs, and
// LOG_SAMPLE_EVERY.
func FromEnv(service string) Config {
	c := Config{
		Service:     service,
		Level:       zerolog.InfoLevel,
		Console:     strings.EqualFold(os.Getenv("LOG_FORMAT"), "console"),
		SampleEvery: uint32(envInt("LOG_SAMPLE_EVERY", 0)),
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		c.Level = lvl
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		c.File = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    envInt("LOG_FILE_MAX_SIZE", 50),
			MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 3),
			MaxAge:     envInt("LOG_FILE_MAX_AGE", 7),
			Compress:   envBool("LOG_FILE_COMPRESS", true),
		}
	}
	return c
}

// Setup installs the logger as log.Logger and returns it.
func Setup(c Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	if c.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if c.File != nil {
		out = zerolog.MultiLevelWriter(out, c.File)
	}

	logger := zerolog.New(out).Level(c.Level).With().Timestamp().Str("svc", c.Service).Logger()
	if c.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: c.SampleEvery})
	}
	log.Logger = logger
	return logger
}

type fieldsKey struct{}

type fields struct {
	userID  int64
	session string
}

func fieldsOf(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

// WithUser tags ctx with a Telegram user id.
func WithUser(ctx context.Context, userID int64) context.Context {
	f := fieldsOf(ctx)
	f.userID = userID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithSession tags ctx with a job id.
func WithSession(ctx context.Context, id string) context.Context {
	f := fieldsOf(ctx)
	f.session = id
	return context.WithValue(ctx, fieldsKey{}, f)
}

// UserID returns the id set by WithUser.
func UserID(ctx context.Context) (int64, bool) {
	f := fieldsOf(ctx)
	return f.userID, f.userID != 0
}

// FromCtx is a copy of log.Logger with uid and sid attached when ctx
// carries them.
func FromCtx(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	f := fieldsOf(ctx)
	if f.userID == 0 && f.session == "" {
		return &l
	}
	w := l.With()
	if f.session != "" {
		w = w.Str("sid", f.session)
	}
	if f.userID != 0 {
		w = w.Int64("uid", f.userID)
	}
	l = w.Logger()
	return &l
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k))); err == nil {
		return n
	}
	return def
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	}
	return false
}
