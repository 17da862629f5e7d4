package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Options struct {
	AllowedOrigins []string
	// Socket serves GET /ws.
	Socket http.Handler
	Logger *zap.Logger
}

func SetupRoutes(rooms RoomFinder, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: opts.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	}).Handler)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/levels", Levels(rooms))
	r.Get("/rooms/{code}", Room(rooms, opts.Logger))
	if opts.Socket != nil {
		r.Method(http.MethodGet, "/ws", opts.Socket)
	}
	return r
}
