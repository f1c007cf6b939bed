package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ragstore/ragstore/internal/authz"
	"github.com/ragstore/ragstore/internal/log"
)

// Context key types (unexported to prevent collisions).
type requestIDKey struct{}
type authzKey struct{}

var ctxKeyRequestID = requestIDKey{}
var ctxKeyAuthz = authzKey{}

// requestIDFromContext retrieves the request ID from the request context.
func requestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyRequestID).(string)
	return id, ok
}

// authzFromContext retrieves the caller's authorization context. The auth
// middleware always stores one, so the zero value only appears in tests that
// bypass the middleware stack.
func authzFromContext(ctx context.Context) authz.Context {
	ac, _ := ctx.Value(ctxKeyAuthz).(authz.Context)
	return ac
}

// loggingWriter wraps http.ResponseWriter to capture status and size.
// Implements Unwrap for http.ResponseController.
type loggingWriter struct {
	w            http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lw *loggingWriter) Header() http.Header {
	return lw.w.Header()
}

func (lw *loggingWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.w.WriteHeader(code)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if lw.statusCode == 0 {
		lw.statusCode = http.StatusOK
	}
	n, err := lw.w.Write(b)
	lw.bytesWritten += int64(n)
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (lw *loggingWriter) Unwrap() http.ResponseWriter {
	return lw.w
}

// recoveryMiddleware recovers from panics to prevent server crashes.
func recoveryMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapper := &loggingWriter{w: w}

			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"headers_sent", wrapper.statusCode != 0,
					)

					if wrapper.statusCode == 0 {
						WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
					} else {
						logger.Warn("cannot send error response, headers already sent",
							"path", r.URL.Path,
							"status", wrapper.statusCode,
						)
					}
				}
			}()
			next.ServeHTTP(wrapper, r)
		})
	}
}

// requestIDMiddleware assigns each request a UUID, echoing a valid incoming
// X-Request-ID so IDs survive a reverse proxy hop. Invalid incoming values
// are replaced, never propagated.
func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.New().String()
			}

			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggingMiddleware logs request details including latency, status, and
// response size. Reuses an existing *loggingWriter from outer middleware
// to avoid double-wrapping the ResponseWriter.
func loggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper, ok := w.(*loggingWriter)
			if !ok {
				wrapper = &loggingWriter{w: w}
			}

			next.ServeHTTP(wrapper, r)

			status := wrapper.statusCode
			if status == 0 {
				status = http.StatusOK
			}

			requestID, _ := requestIDFromContext(r.Context())
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", wrapper.bytesWritten,
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
				"request_id", requestID,
			)
		})
	}
}

// tokenAuth maps bearer tokens to store capabilities.
//
// With no write token configured the server runs in permissive mode: every
// request gets every capability, reproducing the allow-all policy of the
// reference schema. Otherwise unauthenticated requests are read-only, the
// write token grants read|write, and the admin token grants read|write|admin.
type tokenAuth struct {
	writeToken string
	adminToken string
}

// permissive reports whether the server runs without token checks.
func (a tokenAuth) permissive() bool {
	return a.writeToken == ""
}

// authenticate resolves the Authorization header to an authz.Context.
// Unknown tokens are rejected rather than silently downgraded.
func (a tokenAuth) authenticate(r *http.Request) (authz.Context, bool) {
	if a.permissive() {
		return authz.Permissive(), true
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return authz.ReadOnly("anonymous"), true
	}

	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return authz.Context{}, false
	}
	token := header[len(prefix):]

	switch {
	case a.adminToken != "" && token == a.adminToken:
		return authz.NewContext("admin", authz.CapRead|authz.CapWrite|authz.CapAdmin), true
	case token == a.writeToken:
		return authz.NewContext("writer", authz.CapRead|authz.CapWrite), true
	}
	return authz.Context{}, false
}

// authMiddleware stores the resolved authorization context on the request.
func authMiddleware(auth tokenAuth, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.authenticate(r)
			if !ok {
				logger.Warn("rejected invalid bearer token",
					"path", r.URL.Path,
					"method", r.Method,
				)
				WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid bearer token", logger)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAuthz, ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
