package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantOrigin string
	}{
		{
			name:       "wildcard echoes the request origin",
			allowed:    []string{"*"},
			origin:     "https://badges.example.com",
			wantOrigin: "https://badges.example.com",
		},
		{
			name:       "wildcard without an origin header",
			allowed:    []string{"*"},
			wantOrigin: "*",
		},
		{
			name:       "listed origin is allowed",
			allowed:    []string{"https://badges.example.com", "https://admin.example.com"},
			origin:     "https://admin.example.com",
			wantOrigin: "https://admin.example.com",
		},
		{
			name:    "unlisted origin gets no headers",
			allowed: []string{"https://badges.example.com"},
			origin:  "https://evil.example.com",
		},
		{
			name:   "empty allow list denies everything",
			origin: "https://badges.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped := CORSMiddleware(tt.allowed)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "OK", w.Body.String(), "handler must still run")
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))

			if tt.wantOrigin != "" {
				// Webhook callers send the signature header cross-origin.
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Reactor-Signature")
				assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}

	t.Run("preflight short-circuits before the handler", func(t *testing.T) {
		t.Parallel()

		wrapped := CORSMiddleware([]string{"https://badges.example.com"})(okHandler())

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/ingest", nil)
		req.Header.Set("Origin", "https://badges.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Body.String())
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("passes status through", func(t *testing.T) {
		t.Parallel()

		wrapped := LoggingMiddleware(logger.NewNopLogger())(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil))
		require.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("implicit WriteHeader still records 200", func(t *testing.T) {
		t.Parallel()

		wrapped := LoggingMiddleware(logger.NewNopLogger())(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("body without explicit status"))
			}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	wrapped.WriteHeader(http.StatusConflict)

	require.Equal(t, http.StatusConflict, wrapped.statusCode)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("transparent for healthy handlers", func(t *testing.T) {
		t.Parallel()

		wrapped := RecoveryMiddleware(logger.NewNopLogger())(okHandler())

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "OK", w.Body.String())
	})

	t.Run("panic becomes a 500", func(t *testing.T) {
		t.Parallel()

		for _, value := range []any{"boom", assert.AnError, 42} {
			wrapped := RecoveryMiddleware(logger.NewNopLogger())(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					panic(value)
				}))

			w := httptest.NewRecorder()
			require.NotPanics(t, func() {
				wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
			})

			require.Equal(t, http.StatusInternalServerError, w.Code)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("nil config passes through", func(t *testing.T) {
		t.Parallel()

		wrapped := RateLimitMiddleware(nil)(okHandler())

		for range 10 {
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("requests within burst succeed", func(t *testing.T) {
		t.Parallel()

		cfg := &config.RateLimitConfig{RequestsPerSecond: 1, Burst: 5}
		wrapped := RateLimitMiddleware(cfg)(okHandler())

		for range 5 {
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("requests over burst are rejected", func(t *testing.T) {
		t.Parallel()

		// A tiny refill rate keeps the bucket empty after the burst drains.
		cfg := &config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
		wrapped := RateLimitMiddleware(cfg)(okHandler())

		for range 2 {
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusTooManyRequests, w.Code)

		var resp ErrorResponse
		require.NoError(t, unmarshalBody(w, &resp))
		assert.Equal(t, http.StatusTooManyRequests, resp.Code)
		assert.Contains(t, resp.Message, "rate limit")
	})
}

func TestMiddlewareChaining(t *testing.T) {
	t.Parallel()

	log := logger.NewNopLogger()

	handler := RecoveryMiddleware(log)(
		LoggingMiddleware(log)(
			RateLimitMiddleware(&config.RateLimitConfig{RequestsPerSecond: 100, Burst: 10})(
				CORSMiddleware([]string{"*"})(
					okHandler(),
				),
			),
		),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://badges.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
	require.Equal(t, "https://badges.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
