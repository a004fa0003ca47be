// Package middleware holds the http.Handler wrappers applied in front of the
// site router: request ids, security headers, body limits, rate limiting,
// CORS and access logging.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
)

// ProblemWriter emits problem+json responses.
type ProblemWriter func(w http.ResponseWriter, status int, title, detail, traceID, instance string)

// EnsureIDs enriches the request with request/trace IDs.
type EnsureIDs func(*http.Request) (*http.Request, string, string)

// IDFromContext extracts a request-scoped identifier.
type IDFromContext func(context.Context) string

// ClientAddress resolves the caller's IP from the request.
type ClientAddress func(*http.Request) string

// AllowFunc reports whether the client identified by key may proceed.
type AllowFunc func(key string, now time.Time) bool

// Chain applies middlewares so the first one listed is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// RequestMetadata ensures every request has IDs and the response echoes them back.
func RequestMetadata(ensure EnsureIDs) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ensure == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, requestID, traceID := ensure(r)
			w.Header().Set("X-Request-Id", requestID)
			if traceID != "" {
				w.Header().Set("X-Trace-Id", traceID)
			}
			next.ServeHTTP(w, req)
		})
	}
}

// SecurityHeaders applies standard hardening headers. Media may be loaded
// from imgSources in addition to the site itself.
func SecurityHeaders(imgSources ...string) func(http.Handler) http.Handler {
	img := strings.TrimSpace("'self' data: " + strings.Join(imgSources, " "))
	csp := fmt.Sprintf("default-src 'self'; img-src %s; style-src 'self'; frame-ancestors 'none'", img)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			headers.Set("X-Content-Type-Options", "nosniff")
			headers.Set("X-Frame-Options", "DENY")
			headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			headers.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit rejects requests exceeding limit and caps readable bytes.
func BodyLimit(limit int64, trace IDFromContext, write ProblemWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeProblem(w, r, write, trace, http.StatusRequestEntityTooLarge, "Payload Too Large", fmt.Sprintf("Request body exceeds %d bytes", limit))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces per-client rate limiting using the supplied allow/key functions.
func RateLimit(allow AllowFunc, key ClientAddress, now func() time.Time, trace IDFromContext, write ProblemWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allow == nil || key == nil || now == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || allow(key(r), now()) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "1")
			writeProblem(w, r, write, trace, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded")
		})
	}
}

// CORS applies the configured cors handler and rejects disallowed origins with a problem response.
func CORS(handler *cors.Cors, trace IDFromContext, write ProblemWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if handler == nil {
			return next
		}
		corsHandler := handler.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin != "" && !handler.OriginAllowed(r) {
				writeProblem(w, r, write, trace, http.StatusForbidden, "Not allowed by CORS", fmt.Sprintf("Origin %s is not allowed", origin))
				return
			}
			corsHandler.ServeHTTP(w, r)
		})
	}
}

// Logging records one structured line per request.
func Logging(logger pkglog.Logger, requestID, traceID IDFromContext, clientAddr ClientAddress) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writer := NewStatusRecorder(w)
			next.ServeHTTP(writer, r)

			duration := time.Since(start)
			status := writer.Status()

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"durationMs", float64(duration.Microseconds()) / 1000.0,
				"bytesWritten", writer.bytes,
			}
			if requestID != nil {
				if rid := requestID(r.Context()); rid != "" {
					fields = append(fields, "requestId", rid)
				}
			}
			if traceID != nil {
				if tid := traceID(r.Context()); tid != "" {
					fields = append(fields, "traceId", tid)
				}
			}
			if clientAddr != nil {
				if remote := clientAddr(r); remote != "" {
					fields = append(fields, "remoteAddr", remote)
				}
			}

			switch {
			case status >= 500:
				logger.Errorw("http request completed", fields...)
			case status >= 400:
				logger.Warnw("http request completed", fields...)
			default:
				logger.Infow("http request completed", fields...)
			}
		})
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, write ProblemWriter, trace IDFromContext, status int, title, detail string) {
	if write == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	tid := ""
	if trace != nil {
		tid = trace(r.Context())
	}
	write(w, status, title, detail, tid, r.URL.Path)
}

// StatusRecorder captures the status code and byte count of a response.
type StatusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

// NewStatusRecorder wraps w.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w}
}

// WriteHeader records status and forwards it.
func (w *StatusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write forwards b, defaulting the status to 200.
func (w *StatusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Status returns the recorded status, 200 if nothing was written.
func (w *StatusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush forwards to the underlying writer when supported.
func (w *StatusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *StatusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
