package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/storefront/internal/common"
)

// NewLogger configures a zerolog logger writing to stdout using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, format, level)
}

// NewLoggerTo configures a zerolog logger on an arbitrary writer. Format "console" or "text"
// selects human-readable output; anything else emits JSON.
func NewLoggerTo(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "storefront").Logger()
}

// RequestLogger records one structured log line per request. The request-scoped logger is
// placed on the context so inner middleware can attach fields such as the session id.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware logs server errors at error level and client errors at warn.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := l.Logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ctx := reqLogger.WithContext(r.Context())
		if sid, ok := common.SessionID(ctx); ok {
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("session_id", sid)
			})
		}
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logger := zerolog.Ctx(ctx)
		status := statusOf(ww)
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = logger.Error()
		case status >= http.StatusBadRequest:
			evt = logger.Warn()
		default:
			evt = logger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", routeLabel(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int("bytes", ww.BytesWritten())
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			evt = evt.Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String())
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

// AnnotateSession attaches the session id to the request logger and active span on ctx.
func AnnotateSession(ctx context.Context, sessionID string) {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("session_id", sessionID)
		})
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("storefront.session_id", sessionID))
}
