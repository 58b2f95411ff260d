package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const RequestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestObserver counts completed requests.
type RequestObserver interface {
	ObserveRequest(method string, status int)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags each request with an id, logs it when done and reports
// it to observer, which may be nil.
func RequestLogger(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
			next.ServeHTTP(rec, r.WithContext(ctx))

			entry := log.WithFields(log.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   time.Since(started).String(),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Error("Request failed")
			} else {
				entry.Info("Request handled")
			}
			if observer != nil {
				observer.ObserveRequest(r.Method, rec.status)
			}
		})
	}
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// Chain applies middlewares so that the first one is outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
