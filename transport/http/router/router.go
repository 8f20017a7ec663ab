package router

import (
	"bunk/config"
	"bunk/internal/handlers/booking"
	"bunk/internal/handlers/pool"
	"bunk/transport/http/middleware"

	_ "bunk/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type DomainHandlers struct {
	Pool    pool.Handler
	Booking booking.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
	AppMiddleware  middleware.AppMiddleware
	AuthRole       middleware.AuthRole
	Config         *config.Config
}

func (r *Router) SetupRoutes(router chi.Router) {
	router.Use(r.AppMiddleware.Tracing)

	if r.Config.App.CORS.Enable {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   r.Config.App.CORS.AllowedOrigins,
			AllowedMethods:   r.Config.App.CORS.AllowedMethods,
			AllowedHeaders:   r.Config.App.CORS.AllowedHeaders,
			AllowCredentials: r.Config.App.CORS.AllowCredentials,
			MaxAge:           r.Config.App.CORS.MaxAgeSeconds,
		}))
	}

	router.Use(r.AppMiddleware.RateLimit())
	router.Use(r.AuthRole.APIKey)
	router.Use(r.AuthRole.Auth)
	router.Use(r.AuthRole.RBAC)

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	router.Route("/v1", func(routerGroup chi.Router) {
		r.DomainHandlers.Pool.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
	})
}

func New(domainHandlers DomainHandlers, appMiddleware middleware.AppMiddleware, authRole middleware.AuthRole, cfg *config.Config) Router {
	return Router{
		DomainHandlers: domainHandlers,
		AppMiddleware:  appMiddleware,
		AuthRole:       authRole,
		Config:         cfg,
	}
}
