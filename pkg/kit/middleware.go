package kit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// UseCommon installs request IDs, panic recovery and request logging.
func UseCommon(r chi.Router, log *zap.Logger) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Logging(log))
}

func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	log = OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			lvl := log.Info
			if ww.Status() >= http.StatusInternalServerError {
				lvl = log.Warn
			}
			lvl("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", ChiRoutePatternOrPath(r)),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}
