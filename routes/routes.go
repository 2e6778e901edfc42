package routes

import (
	"net/http"

	_ "github.com/Dosada05/fight-train/docs"
	"github.com/Dosada05/fight-train/handlers"
	"github.com/Dosada05/fight-train/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func SetupRoutes(
	router chi.Router,
	auth *middleware.Authenticator,
	trainHandler *handlers.TrainHandler,
	competitorHandler *handlers.CompetitorHandler,
	webSocketHandler *handlers.WebSocketHandler,
	opts Options,
) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.WrapHandler)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Get("/leaderboard", competitorHandler.Leaderboard)
	router.Get("/trains/{trainID}", trainHandler.GetTrain)
	router.Get("/ws/trains/{trainID}", webSocketHandler.ServeWs)

	router.Route("/competitors", func(r chi.Router) {
		r.Get("/{competitorID}", competitorHandler.Get)
		r.Get("/{competitorID}/status", trainHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/", competitorHandler.Create)
			r.Get("/me", competitorHandler.Me)
			r.Patch("/{competitorID}/attributes", competitorHandler.UpdateAttributes)
		})
	})

	router.Route("/train", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Post("/join", trainHandler.Join)
		r.Post("/place", trainHandler.PlaceAt)
		r.Post("/leave", trainHandler.Leave)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.Authorize(middleware.RoleAdmin))
		r.Post("/trains/{trainID}/cars/{carIndex}/fight", trainHandler.TriggerFight)
	})
}
