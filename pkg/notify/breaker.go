package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker guarding the delivery
// collaborator.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerPublisher wraps a Publisher with a circuit breaker so a dead
// notification collaborator cannot slow every decision down. Notifications
// are fire-and-forget: a dropped event is logged, never surfaced.
type BreakerPublisher struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewBreakerPublisher wraps next with a breaker.
func NewBreakerPublisher(next Publisher, cfg BreakerConfig, logger *slog.Logger) *BreakerPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	settings := gobreaker.Settings{
		Name:    "notify",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.With("component", "notify-breaker"),
	}
}

// Publish implements Publisher. An open breaker short-circuits immediately.
func (p *BreakerPublisher) Publish(ctx context.Context, ev Event) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.next.Publish(ctx, ev)
	})
	if err != nil {
		p.logger.Warn("notification dropped",
			"event_id", ev.ID,
			"request_id", ev.RequestID,
			"error", err)
	}
	return err
}
