package middleware

import (
	"net/http"

	m "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/config"
	"github.com/zjx20/gemini-gateway/util"
)

func Logger(next http.Handler) http.Handler {
	return m.RequestLogger(
		&m.DefaultLogFormatter{
			Logger:  log.StandardLogger(),
			NoColor: !util.LogColor(),
		})(next)
}

// Recover turns a handler panic into the JSON fallback envelope. The
// http.ErrAbortHandler sentinel is re-raised so net/http can drop the
// connection as intended.
func Recover(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.WithField("request_id", m.GetReqID(r.Context())).Errorln(err)
				if config.GetIsDebug() {
					m.PrintPrettyStack(err)
				}
				util.FallbackEvent(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
