package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const notFoundMessage = "Page Not Found"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs the method, URL, status and duration of every request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info(r.Method+" "+r.URL.String(), "status", rec.status, "duration", time.Since(start))
		})
	}
}

// Recoverer turns a panicking handler into a 500.
func Recoverer(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panicked", "path", r.URL.Path, "panic", v)
					writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NotFound answers with a 404 in HTML, JSON or plain text, following the Accept header.
func NotFound(w http.ResponseWriter, r *http.Request) {
	switch negotiate(r.Header.Get("Accept")) {
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<p>" + notFoundMessage + "</p>"))
	case "json":
		writeJSON(w, http.StatusNotFound, errorBody{Message: notFoundMessage})
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(notFoundMessage))
	}
}

// negotiate picks "html" or "json" from an Accept header, preferring html when both are acceptable.
//
// An empty header accepts anything. Returns "" when neither is acceptable.
func negotiate(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return "html"
	}

	best, bestQ := "", 0.0
	for _, part := range strings.Split(accept, ",") {
		mediaType, q := parseMediaRange(part)
		if q <= 0 {
			continue
		}

		var kind string
		switch mediaType {
		case "text/html", "application/xhtml+xml", "text/*", "*/*":
			kind = "html"
		case "application/json", "application/*":
			kind = "json"
		default:
			continue
		}
		if q > bestQ || (q == bestQ && kind == "html" && best != "html") {
			best, bestQ = kind, q
		}
	}
	return best
}

func parseMediaRange(part string) (string, float64) {
	fields := strings.Split(part, ";")
	mediaType := strings.ToLower(strings.TrimSpace(fields[0]))
	q := 1.0
	for _, param := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(key, "q") {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				q = parsed
			}
		}
	}
	return mediaType, q
}
