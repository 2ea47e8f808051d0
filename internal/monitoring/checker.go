package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything with a health probe, typically the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the store in the background and alerts once per outage.
type Checker struct {
	target   Pinger
	alerter  *Alerter
	interval time.Duration
	down     bool
}

// NewChecker creates a background health checker.
func NewChecker(target Pinger, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{target: target, alerter: alerter, interval: interval}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.target.Ping(pctx)
	switch {
	case err != nil && !c.down:
		c.down = true
		log.Error("monitoring: store unavailable", zap.Error(err))
		c.alerter.Send(ctx, Alert{
			Type:     AlertStoreUnavailable,
			Severity: "high",
			Message:  "store ping failed",
			Details:  map[string]any{"error": err.Error()},
		})
	case err == nil && c.down:
		c.down = false
		log.Info("monitoring: store recovered")
	}
}
