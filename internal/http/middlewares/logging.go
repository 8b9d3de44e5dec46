package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/devpulse/internal/observability/logger"
)

// statusRecorder captura el status code y bytes escritos de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
		s.wroteHeader = true
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// WithLogging inyecta un logger scoped (request_id, method, path) en el contexto y
// registra cada request al terminar. El nivel depende del status.
func WithLogging(ips *ClientIP) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.L().With(
				logger.RequestID(GetRequestID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			ctx := logger.ToContext(r.Context(), reqLog)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			dur := time.Since(start)
			log := reqLog
			switch {
			case rec.status >= 500:
				log.Error("request failed", logger.Status(rec.status), logger.Bytes(rec.bytes), logger.DurationMs(dur.Milliseconds()), logger.ClientIP(ips.Resolve(r)))
			case rec.status >= 400:
				log.Warn("request completed with client error", logger.Status(rec.status), logger.Bytes(rec.bytes), logger.DurationMs(dur.Milliseconds()))
			default:
				log.Info("request completed", logger.Status(rec.status), logger.Bytes(rec.bytes), logger.DurationMs(dur.Milliseconds()))
			}
		})
	}
}
