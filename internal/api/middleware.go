package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardsage/cardsage/internal/log"
)

// Context key types (unexported to prevent collisions).
type sessionIDKey struct{}
type credentialKey struct{}
type requestIDKey struct{}

var ctxKeySessionID = sessionIDKey{}
var ctxKeyCredential = credentialKey{}
var ctxKeyRequestID = requestIDKey{}

// SessionHeader carries the conversation identifier. Clients omit it on
// the first request and echo the returned value afterwards.
const SessionHeader = "X-Session-ID"

// sessionIDFromContext retrieves the active session ID from the request context.
// Returns uuid.Nil and false if not found.
func sessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	sessionID, ok := ctx.Value(ctxKeySessionID).(uuid.UUID)
	return sessionID, ok
}

// credentialFromContext retrieves the bearer credential validated by
// authMiddleware. Returns empty string and false if not found.
func credentialFromContext(ctx context.Context) (string, bool) {
	cred, ok := ctx.Value(ctxKeyCredential).(string)
	return cred, ok
}

// requestIDFromContext retrieves the request ID assigned by requestIDMiddleware.
func requestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyRequestID).(string)
	return id, ok
}

// loggingWriter wraps http.ResponseWriter to capture metrics.
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
						writeError(w, http.StatusInternalServerError, "internal error", "", logger)
					}
				}
			}()
			next.ServeHTTP(wrapper, r)
		})
	}
}

// requestIDMiddleware assigns a UUID to each request and exposes it in
// the X-Request-ID response header and the request context.
func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.New().String()
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
				"request_id", requestID,
				"ip", r.RemoteAddr,
			)
		})
	}
}

// authMiddleware requires a well-formed bearer credential on every
// request. The check runs before any upstream call; the credential
// itself is threaded through the context for handlers that need it.
func authMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(credential) == "" {
				logger.Warn("rejected request without bearer credential",
					"path", r.URL.Path,
					"ip", r.RemoteAddr,
				)
				writeError(w, http.StatusUnauthorized, "authentication failed",
					"missing or malformed bearer credential", logger)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyCredential, credential)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionMiddleware resolves the conversation session for the request.
// A valid X-Session-ID header continues that session; anything else
// starts a fresh one. The resolved ID is always echoed in the response
// header so clients can carry it forward.
func sessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := uuid.Parse(r.Header.Get(SessionHeader))
			if err != nil || sessionID == uuid.Nil {
				sessionID = uuid.New()
			}

			w.Header().Set(SessionHeader, sessionID.String())
			ctx := context.WithValue(r.Context(), ctxKeySessionID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
