package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/cors"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level)
}

func (l *recordingLogger) Infow(string, ...any)  { l.record("info") }
func (l *recordingLogger) Warnw(string, ...any)  { l.record("warn") }
func (l *recordingLogger) Errorw(string, ...any) { l.record("error") }

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(statusHandler(http.StatusOK), mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestRequestMetadataEchoesIDs(t *testing.T) {
	ensure := func(r *http.Request) (*http.Request, string, string) { return r, "req-1", "trace-1" }
	rr := httptest.NewRecorder()

	RequestMetadata(ensure)(statusHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Request-Id") != "req-1" || rr.Header().Get("X-Trace-Id") != "trace-1" {
		t.Fatalf("expected ids echoed, got %v", rr.Header())
	}
}

func TestSecurityHeadersIncludeImageSources(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders("https://abcd.supabase.co")(statusHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected frame options header")
	}
	if csp := rr.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "img-src 'self' data: https://abcd.supabase.co;") {
		t.Fatalf("unexpected csp: %s", csp)
	}
}

func TestBodyLimitRejectsLargeBodies(t *testing.T) {
	var gotStatus int
	write := func(w http.ResponseWriter, status int, title, detail, traceID, instance string) {
		gotStatus = status
		w.WriteHeader(status)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/selection", strings.NewReader(strings.Repeat("x", 32)))
	rr := httptest.NewRecorder()

	BodyLimit(16, nil, write)(statusHandler(http.StatusOK)).ServeHTTP(rr, req)

	if gotStatus != http.StatusRequestEntityTooLarge || rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestRateLimitBlocksAndSkipsOptions(t *testing.T) {
	allow := func(string, time.Time) bool { return false }
	key := func(*http.Request) string { return "client" }
	h := RateLimit(allow, key, time.Now, func(context.Context) string { return "t" }, nil)(statusHandler(http.StatusOK))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected OPTIONS to bypass limiter, got %d", rr.Code)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	c := cors.New(cors.Options{AllowedOrigins: []string{"https://nimli.fr"}})
	h := CORS(c, nil, nil)(statusHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Origin", "https://nimli.fr")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "https://nimli.fr" {
		t.Fatalf("expected allowed origin, got %d %v", rr.Code, rr.Header())
	}
}

func TestLoggingLevelFollowsStatus(t *testing.T) {
	logger := &recordingLogger{}
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		Logging(logger, nil, nil, nil)(statusHandler(status)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	if strings.Join(logger.entries, ",") != "info,warn,error" {
		t.Fatalf("unexpected log levels: %v", logger.entries)
	}
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := NewStatusRecorder(httptest.NewRecorder())
	if rec.Status() != http.StatusOK {
		t.Fatalf("expected default 200")
	}
	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.Status() != http.StatusOK {
		t.Fatalf("expected first status to stick, got %d", rec.Status())
	}
}
