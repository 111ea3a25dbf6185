package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor runs the expiry settlement sweep in the background: once at
// startup, then on a fixed interval.
type Processor struct {
	service       *Service
	sweepInterval time.Duration
}

func NewProcessor(service *Service, sweepInterval time.Duration) *Processor {
	return &Processor{
		service:       service,
		sweepInterval: sweepInterval,
	}
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("sweep_interval", p.sweepInterval).Msg("starting settlement processor")

	// Settle anything that expired while the service was down.
	if _, err := p.service.SettleExpired(time.Now()); err != nil {
		logger.Error().Err(err).Msg("initial settlement sweep failed")
	}

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if _, err := p.service.SettleExpired(time.Now()); err != nil {
				logger.Error().Err(err).Msg("settlement sweep failed")
			}
		}
	}
}
