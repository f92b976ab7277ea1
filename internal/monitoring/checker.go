package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates submission health on a fixed interval and posts any
// alerts to the configured webhook.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
	interval  time.Duration
}

// NewChecker creates a checker. A non-positive interval falls back to five
// minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		lookback:  cfg.LookbackWindowHours,
		interval:  interval,
	}
}

// Run checks once at start, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring"))
	log.Info("monitoring: submission checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info("monitoring: submission checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot, evaluates it and sends what it raised.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring"))

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect snapshot", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: submissions healthy",
			zap.Int("submissions", snap.SubmissionTotal),
			zap.Float64("fail_rate", snap.FailRate),
		)
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: alerts raised",
		zap.Int("alerts", len(alerts)),
		zap.Int("sent", sent),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Strings("open_breakers", snap.OpenBreakers),
	)
	return alerts
}
