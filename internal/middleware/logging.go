package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peekraw/internal/logging"
)

// responseWriter records what a handler sent.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the access log.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths []string
	// LogHealthChecks logs probe requests too.
	LogHealthChecks bool
	// PollPaths are path prefixes clients poll, such as thumbnails that
	// answer 202 until ready. Successful requests to them log at debug.
	PollPaths []string
	// SlowRequest logs requests taking longer at warn (0 = never).
	SlowRequest time.Duration
}

// DefaultLoggingConfig returns the configuration used by serve.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:   []string{"/metrics"},
		PollPaths:   []string{"/api/thumbnail/", "/api/gallery/changes"},
		SlowRequest: 2 * time.Second,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// sanitizeLogField removes control characters that could forge log lines
// or inject terminal escapes. Newlines become spaces; tabs are kept.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// Logger returns middleware writing one key=value line per request.
// Server errors log at error, slow requests at warn and successful polls at
// debug; everything else logs at info.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			logRequest(config, r, wrapped, time.Since(start))
		})
	}
}

func logRequest(config LoggingConfig, r *http.Request, rw *responseWriter, duration time.Duration) {
	line := formatRequest(r, rw, duration)

	switch {
	case rw.statusCode >= http.StatusInternalServerError:
		logging.Error("%s", line)
	case config.SlowRequest > 0 && duration > config.SlowRequest:
		logging.Warn("%s slow=true", line)
	case rw.statusCode < http.StatusBadRequest && hasPrefix(r.URL.Path, config.PollPaths):
		logging.Debug("%s", line)
	default:
		logging.Info("%s", line)
	}
}

// formatRequest renders the access log fields. User-controlled values are
// sanitized and quoted.
func formatRequest(r *http.Request, rw *responseWriter, duration time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "http method=%s path=%s", sanitizeLogField(r.Method), strconv.Quote(sanitizeLogField(r.URL.Path)))
	if r.URL.RawQuery != "" {
		fmt.Fprintf(&b, " query=%s", strconv.Quote(sanitizeLogField(r.URL.RawQuery)))
	}
	fmt.Fprintf(&b, " status=%d bytes=%d ms=%d client=%s",
		rw.statusCode, rw.bytesWritten, duration.Milliseconds(), sanitizeLogField(getClientIP(r)))
	if enc := rw.Header().Get("Content-Encoding"); enc != "" {
		fmt.Fprintf(&b, " encoding=%s", sanitizeLogField(enc))
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		fmt.Fprintf(&b, " ua=%s", strconv.Quote(sanitizeLogField(ua)))
	}
	return b.String()
}

func shouldSkip(path string, config LoggingConfig) bool {
	if hasPrefix(path, config.SkipPaths) {
		return true
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
