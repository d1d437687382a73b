package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Recovery turns handler panics into a logged 500. http.ErrAbortHandler is
// re-raised so net/http can drop the connection as the handler asked.
func Recovery(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Stack("stack"),
				)

				writeError(w, r, http.StatusInternalServerError, ErrorCodeInternal, ErrorMessageInternal)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
