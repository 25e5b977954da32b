package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func SetupRoutes(a *API, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			HeaderPlayerID,
			HeaderUsername,
			HeaderFirstName,
			HeaderLastName,
			HeaderPhotoURL,
		},
	})
	r.Use(c.Handler)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.svc, allowedOrigins, a.log))

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", a.Start)
		r.Post("/move", a.Move)
		r.Post("/timeOut", a.TimeOut)
		r.Get("/state", a.State)
		r.Get("/leaderboard", a.Leaderboard)
		r.Get("/events", a.Events)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}
