// Package worker holds the background loops that run alongside the HTTP
// server.
package worker

import (
	"context"
	"time"

	"bunk/config"
	"bunk/infras/otel"
	"bunk/internal/domains/booking/service"
	"bunk/shared/constant"

	"github.com/rs/zerolog/log"
)

// Sweeper expires stale claim offers on a fixed interval so abandoned offers
// hand their seats to the next entry without waiting for a claim attempt to
// trip over them.
type Sweeper struct {
	service service.Booking
	cfg     *config.Config
	otel    otel.Otel
}

func NewSweeper(service service.Booking, cfg *config.Config, otel otel.Otel) *Sweeper {
	return &Sweeper{
		service: service,
		cfg:     cfg,
		otel:    otel,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Booking.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log.Info().Dur("interval", interval).Msg("offer sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("offer sweeper stopped")

			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelWorkerScopeName, constant.OtelWorkerScopeName+".Sweep")
	defer scope.End()

	swept, err := s.service.SweepExpiredOffers(ctx)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("offer sweep failed")

		return
	}

	if swept > 0 {
		log.Info().Int("swept", swept).Msg("expired stale claim offers")
	}
}
