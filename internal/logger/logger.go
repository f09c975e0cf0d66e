package logger

import (
	"context"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log          = zap.NewNop()
	sentryClient *sentry.Client
)

// Config holds logger configuration
type Config struct {
	Debug     bool
	SentryDSN string
	// SentryClient overrides the client built from SentryDSN, mostly for tests
	SentryClient *sentry.Client
	// BreadcrumbLevel defaults to info
	BreadcrumbLevel zapcore.Level
	// Tags are attached to every sentry event, e.g. the service name
	Tags map[string]string
}

// Initialize replaces the global logger. Errors are forwarded to sentry when
// a DSN or client is configured.
func Initialize(cfg Config) error {
	base, err := newZapLogger(cfg.Debug)
	if err != nil {
		return err
	}

	if cfg.SentryDSN == "" && cfg.SentryClient == nil {
		log = base
		return nil
	}

	client := cfg.SentryClient
	if client == nil {
		client, err = sentry.NewClient(sentry.ClientOptions{Dsn: cfg.SentryDSN, Debug: cfg.Debug})
		if err != nil {
			return err
		}
	}

	core, err := newSentryCore(client, cfg)
	if err != nil {
		return err
	}

	sentryClient = client
	log = zapsentry.AttachCoreToLogger(core, base)
	return nil
}

func newZapLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func newSentryCore(client *sentry.Client, cfg Config) (zapcore.Core, error) {
	level := cfg.BreadcrumbLevel
	if level == zapcore.InvalidLevel {
		level = zapcore.InfoLevel
	}

	return zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   level,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
}

// Flush waits up to timeout for pending sentry events
func Flush(timeout time.Duration) {
	if sentryClient == nil {
		return
	}
	sentryClient.Flush(timeout)
}

// FromContext scopes the global logger to the sentry hub carried by ctx
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return log
	}
	return log.With(zapsentry.Context(ctx))
}

func errorMessage(err error) string {
	if err == nil {
		return "error occurred"
	}
	return err.Error()
}

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log.Warn(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }

// Error logs err as the message
func Error(err error, fields ...zap.Field) { log.Error(errorMessage(err), fields...) }

func DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Debug(msg, fields...)
}

func InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Info(msg, fields...)
}

func WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Warn(msg, fields...)
}

func ErrorCtx(ctx context.Context, err error, fields ...zap.Field) {
	FromContext(ctx).Error(errorMessage(err), fields...)
}

// FatalCtx logs and exits the process
func FatalCtx(ctx context.Context, msg string, fields ...zap.Field) {
	FromContext(ctx).Fatal(msg, fields...)
}
