//go:build wireinject
// +build wireinject

package di

import (
	"bunk/config"
	"bunk/infras/jwt"
	"bunk/infras/kafka"
	"bunk/infras/otel"
	"bunk/infras/postgres"
	"bunk/infras/redis"
	"bunk/infras/s3"
	bookingHandler "bunk/internal/handlers/booking"
	poolHandler "bunk/internal/handlers/pool"
	"bunk/internal/notifier"
	"bunk/internal/worker"
	"bunk/permissions"
	"bunk/shared/cache"
	"bunk/shared/keyedmutex"
	"bunk/transport/http"
	"bunk/transport/http/middleware"
	"bunk/transport/http/router"

	bookingRepository "bunk/internal/domains/booking/repository"
	bookingService "bunk/internal/domains/booking/service"
	poolRepository "bunk/internal/domains/pool/repository"
	poolService "bunk/internal/domains/pool/service"

	"github.com/google/wire"
)

var configurations = wire.NewSet(
	config.Get,
	permissions.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	jwt.New,
	kafka.New,
	s3.New,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthRoleMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
	keyedmutex.New,
)

var poolDomain = wire.NewSet(
	poolRepository.New,
	poolService.New,
)

var bookingDomain = wire.NewSet(
	bookingRepository.New,
	bookingService.New,
)

var domains = wire.NewSet(
	poolDomain,
	bookingDomain,
)

var eventing = wire.NewSet(
	notifier.New,
)

var workers = wire.NewSet(
	worker.NewSweeper,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	poolHandler.New,
	bookingHandler.New,
	router.New,
)

func InitializeService() *http.HTTP {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		domains,
		eventing,
		workers,
		routing,
		http.New,
	)

	return &http.HTTP{}
}
