package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"engagement-backend/internal/handlers"
	"engagement-backend/internal/logger"
	"engagement-backend/internal/middleware"
	"engagement-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	learningHandler *handlers.LearningHandler,
	wsHub *websocket.Hub,
	limiter *middleware.RateLimiter,
	log *logger.Logger,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1/learning", func(r chi.Router) {
		// Token comes in the query string; see Hub.HandleWebSocket.
		r.Get("/ws", wsHub.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(limiter.Middleware)

			r.Post("/session", learningHandler.Session)
			r.Post("/progress", learningHandler.UpdateProgress)
			r.Post("/complete", learningHandler.Complete)
			r.Get("/courses/{id}/progress", learningHandler.CourseProgress)
		})
	})

	return r
}
