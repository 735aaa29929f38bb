package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// Logger provides structured logging with typed helpers
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// NewLogger creates a logger writing to w in the given format ("json" or "text")
func NewLogger(w io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewLoggerFromConfig builds the process logger. When a file is configured,
// records go to both stdout and the file.
func NewLoggerFromConfig(cfg config.LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if cfg.File == "" {
		return NewLogger(os.Stdout, level, cfg.Format), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := NewLogger(io.MultiWriter(os.Stdout, f), level, cfg.Format)
	l.closer = f
	return l, nil
}

// ParseLevel accepts slog level names plus WARNING
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithCorrelation returns a logger that tags every record with the correlation id
func (l *Logger) WithCorrelation(correlationID string) *Logger {
	return &Logger{Logger: l.With("correlation_id", correlationID)}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// ExternalAPILogger logs calls to GitHub and the model API
func (l *Logger) ExternalAPILogger(apiName, method, endpoint string, statusCode int, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "External API Call",
		"api_name", apiName,
		"method", method,
		"endpoint", endpoint,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// DispatchLogger logs the outcome of one dispatch
func (l *Logger) DispatchLogger(correlationID string, ev types.InboundEvent, result types.HandlerResult, elapsed time.Duration) {
	level := slog.LevelInfo
	if result.Kind == types.KindError {
		level = slog.LevelError
	}

	l.Log(context.Background(), level, "Dispatch Completed",
		"correlation_id", correlationID,
		"delivery_id", ev.DeliveryID,
		"event_type", ev.EventType,
		"action", ev.Action,
		"repository", ev.Repository,
		"status", result.Kind,
		"summary", result.Summary(),
		"duration_ms", elapsed.Milliseconds(),
	)
}

// SecurityLogger logs rejected deliveries
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}

	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}
