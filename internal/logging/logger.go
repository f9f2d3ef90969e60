package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

type ctxKey string

const (
	requestIDKey ctxKey = "req_id"
	userIDKey    ctxKey = "user_id"
)

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: logger,
	}
}

// Zerolog exposes the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.logger
}

// WithContext adds request, trace and user fields found in ctx
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logCtx := l.logger.With()

	if reqID := GetRequestID(ctx); reqID != "" {
		logCtx = logCtx.Str("req_id", reqID)
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		logCtx = logCtx.Str("trace_id", spanCtx.TraceID().String())
		logCtx = logCtx.Str("span_id", spanCtx.SpanID().String())
	}

	if userID := GetUserIDFromContext(ctx); userID != 0 {
		logCtx = logCtx.Int64("user_id", userID)
	}

	contextualLogger := logCtx.Logger()
	return &contextualLogger
}

// LogHTTPRequest logs HTTP request information
func (l *Logger) LogHTTPRequest(c *fiber.Ctx, duration time.Duration) {
	userID, _ := c.Locals("user_id").(int64)
	reqID, _ := c.Locals("requestid").(string)
	ip, _ := c.Locals("client_ip").(string)
	if ip == "" {
		ip = c.IP()
	}

	event := l.logger.Info()
	if status := c.Response().StatusCode(); status >= fiber.StatusInternalServerError {
		event = l.logger.Error()
	} else if status >= fiber.StatusBadRequest {
		event = l.logger.Warn()
	}

	event.
		Str("req_id", reqID).
		Int64("user_id", userID).
		Str("ip", ip).
		Str("method", c.Method()).
		Str("url", c.OriginalURL()).
		Int("status", c.Response().StatusCode()).
		Int64("duration_ms", duration.Milliseconds()).
		Str("user_agent", c.Get(fiber.HeaderUserAgent)).
		Msg("HTTP request processed")
}

// LogJobProcessing logs job processing information
func (l *Logger) LogJobProcessing(queue, jobType string, duration time.Duration, err error) {
	logger := l.logger.With().
		Str("queue", queue).
		Str("job_type", jobType).
		Int64("duration_ms", duration.Milliseconds()).
		Bool("success", err == nil).
		Logger()

	if err == nil {
		logger.Info().Msg("Job processed successfully")
	} else {
		logger.Error().Err(err).Msg("Job processing failed")
	}
}

// FiberLoggerMiddleware creates a Fiber-compatible logging middleware
func (l *Logger) FiberLoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if reqID, ok := c.Locals("requestid").(string); ok && reqID != "" {
			c.SetUserContext(ContextWithRequestID(c.UserContext(), reqID))
		}

		err := c.Next()

		l.LogHTTPRequest(c, time.Since(start))

		return err
	}
}

// ContextWithRequestID stores a request id for later log enrichment
func ContextWithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey, reqID)
}

// ContextWithUserID stores a user id for later log enrichment
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

// GetUserIDFromContext extracts user ID from context
func GetUserIDFromContext(ctx context.Context) int64 {
	userID, _ := ctx.Value(userIDKey).(int64)
	return userID
}
