package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"

	"github.com/zjx20/gemini-gateway/util/middleware"
)

// NewRouter mounts every route on a chi router. Request bodies above
// maxBodyBytes are refused; <= 0 leaves them unbounded.
func NewRouter(h *Handler, maxBodyBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(m.RequestID)
	r.Use(m.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)

	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		if maxBodyBytes > 0 {
			r.Use(middleware.LimitBody(maxBodyBytes))
		}
		r.Post("/analyze/image", h.AnalyzeImage)
		r.Post("/api/text", h.Text)
		r.Post("/api/image", h.Image)
		r.Post("/api/document", h.Document)
		r.Post("/api/wellness-chat", h.WellnessChat)
		r.Post("/api/ai-health-chat", h.HealthChat)
	})
	return r
}
