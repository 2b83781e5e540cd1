package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelAudit sits above ERROR so audit lines survive any level filter.
// Whether they are written at all is controlled by Options.Audit.
const LevelAudit = slog.Level(12)

const loggerNameKey = "logger"

type Category int

const (
	Application Category = iota
	DiscordEvents
	Database
)

func (c Category) String() string {
	switch c {
	case DiscordEvents:
		return "discord"
	case Database:
		return "database"
	default:
		return "application"
	}
}

// Options configures SetupLogger.
type Options struct {
	// Dir receives rolebuttons.log; empty disables file output.
	Dir     string
	Debug   bool
	Audit   bool
	NoColor bool
	Console io.Writer

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger struct {
	application *slog.Logger
	discord     *slog.Logger
	database    *slog.Logger
	error       *slog.Logger
	level       *slog.LevelVar
	audit       bool
	file        *lumberjack.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// SetupLogger builds the process-wide loggers: colored console output via
// tint and, when a directory is given, JSON lines into a rotating file.
func SetupLogger(opts Options) error {
	level := &slog.LevelVar{}
	if opts.Debug {
		level.Set(slog.LevelDebug)
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:       level,
			TimeFormat:  time.DateTime,
			NoColor:     opts.NoColor,
			ReplaceAttr: replaceLevelName,
		}),
	}

	var file *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "rolebuttons.log"),
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceLevelName,
		}))
	}

	root := slogmulti.Fanout(handlers...)
	l := &Logger{
		application: slog.New(root).With(loggerNameKey, Application.String()),
		discord:     slog.New(root).With(loggerNameKey, DiscordEvents.String()),
		database:    slog.New(root).With(loggerNameKey, Database.String()),
		error:       slog.New(root).With(loggerNameKey, "error"),
		level:       level,
		audit:       opts.Audit,
		file:        file,
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()
	if prev != nil && prev.file != nil {
		_ = prev.file.Close()
	}
	return nil
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil || globalLogger.file == nil {
		return nil
	}
	err := globalLogger.file.Close()
	globalLogger.file = nil
	return err
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func ApplicationLogger() *slog.Logger {
	if l := current(); l != nil {
		return l.application
	}
	return slog.Default().With(loggerNameKey, Application.String())
}

func DiscordLogger() *slog.Logger {
	if l := current(); l != nil {
		return l.discord
	}
	return slog.Default().With(loggerNameKey, DiscordEvents.String())
}

func DatabaseLogger() *slog.Logger {
	if l := current(); l != nil {
		return l.database
	}
	return slog.Default().With(loggerNameKey, Database.String())
}

// ErrorLoggerRaw returns the logger reserved for failures that need an operator.
func ErrorLoggerRaw() *slog.Logger {
	if l := current(); l != nil {
		return l.error
	}
	return slog.Default().With(loggerNameKey, "error")
}

// For returns the logger of a category.
func For(c Category) *slog.Logger {
	switch c {
	case DiscordEvents:
		return DiscordLogger()
	case Database:
		return DatabaseLogger()
	default:
		return ApplicationLogger()
	}
}

// AuditEnabled reports whether Audit writes anything.
func AuditEnabled() bool {
	l := current()
	return l == nil || l.audit
}

// Audit records a security or administrative event at LevelAudit.
func Audit(msg string, args ...any) {
	if !AuditEnabled() {
		return
	}
	ApplicationLogger().Log(context.Background(), LevelAudit, msg, args...)
}

// SetDebug flips DEBUG output at runtime.
func SetDebug(on bool) {
	l := current()
	if l == nil {
		return
	}
	if on {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

var discordGoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

// DiscordgoLogger adapts discordgo's package logger onto DiscordLogger.
// Install it with discordgo.Logger = log.DiscordgoLogger().
func DiscordgoLogger() func(msgL, caller int, format string, a ...any) {
	return func(msgL, _ int, format string, a ...any) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		DiscordLogger().Log(
			context.Background(),
			level,
			strings.ReplaceAll(fmt.Sprintf(format, a...), "\n", ""),
		)
	}
}

func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelAudit {
		return slog.String(slog.LevelKey, "AUDIT")
	}
	return a
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
