package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// APIRecorder receives one latency sample per handled request.
type APIRecorder interface {
	LogAPIRequest(ctx context.Context, service domain.ServiceName, method, endpoint string, statusCode int, executionMs float64)
}

// instrumenter wraps handlers with request logging, rate limiting, Prometheus
// counters and latency samples written to the time-series store.
type instrumenter struct {
	logger   *slog.Logger
	metrics  *metrics
	recorder APIRecorder
	service  domain.ServiceName
	limiter  RateLimiter
}

// handle instruments next under the given route label and rate limit. A zero
// limit disables rate limiting for the route.
func (in *instrumenter) handle(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		if limit > 0 && in.limiter != nil {
			decision := in.limiter.Allow(rateLimitKeyIP(req), limit, window)
			applyRateHeaders(recorder, limit, decision)
			if !decision.allowed {
				in.metrics.recordRateLimitHit(route)
				writeError(recorder, http.StatusTooManyRequests, "rate limit exceeded")
				in.finish(recorder, req, route, start)
				return
			}
		}

		next(recorder, req)
		in.finish(recorder, req, route, start)
	}
}

func (in *instrumenter) finish(recorder *statusRecorder, req *http.Request, route string, start time.Time) {
	status := recorder.status
	if status == 0 {
		status = http.StatusOK
	}
	duration := time.Since(start)

	in.metrics.recordRequest(req.Method, route, status, duration)
	if in.recorder != nil {
		in.recorder.LogAPIRequest(req.Context(), in.service, req.Method, route, status, float64(duration.Milliseconds()))
	}

	fields := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"route", route,
		"status", status,
		"bytes", recorder.bytes,
		"duration_ms", duration.Milliseconds(),
	}
	if ip := clientIP(req); ip != "" {
		fields = append(fields, "ip", ip)
	}
	if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
		fields = append(fields, "request_id", reqID)
	}

	switch {
	case status >= http.StatusInternalServerError:
		in.logger.Error("http_request", fields...)
	case status >= http.StatusBadRequest:
		in.logger.Warn("http_request", fields...)
	default:
		in.logger.Info("http_request", fields...)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
