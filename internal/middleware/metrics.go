package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Middleware wraps an outbound transport.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Chain wraps base with the given middlewares. The first middleware is
// the outermost one.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// MetricsMiddleware records request counts and durations for every
// outbound API call, labelled by host rather than path so that ids in
// URLs do not explode cardinality.
func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			status := "error"
			if resp != nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			if m != nil {
				m.HTTPRequestsTotal.WithLabelValues(r.URL.Host, r.Method, status).Inc()
				m.HTTPRequestDurationSeconds.WithLabelValues(r.URL.Host, r.Method).Observe(time.Since(start).Seconds())
			}

			return resp, err
		})
	}
}

// LoggingMiddleware logs each outbound request at debug level. Query
// strings and headers are never logged since they may carry tokens.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("host", r.URL.Host),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("API request failed", append(fields, zap.Error(err))...)
				return resp, err
			}

			logger.Debug("API request", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}

// UserAgentMiddleware sets the User-Agent header when the caller has
// not set one.
func UserAgentMiddleware(userAgent string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("User-Agent") != "" {
				return next.RoundTrip(r)
			}
			// RoundTrippers must not modify the caller's request
			clone := r.Clone(r.Context())
			clone.Header.Set("User-Agent", userAgent)
			return next.RoundTrip(clone)
		})
	}
}
